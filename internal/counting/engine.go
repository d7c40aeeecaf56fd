package counting

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// WinThreshold is the count each team is pushing toward: +100 for Up,
	// -100 for Down.
	WinThreshold int64 = 100
	// PenaltyPush is how far a rule violation moves the count toward the
	// opposing team's goal.
	PenaltyPush int64 = 5
)

// ackLiteral is acknowledged with a reaction and otherwise ignored.
const ackLiteral = "your mother"

// Engine implements the counting-game state machine. It mutates only the
// session it is handed and reports stat changes as deltas; persistence is the
// caller's responsibility, which keeps the engine independently testable.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a new game engine.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger}
}

// Process evaluates one submission against the session and applies the game
// rules. The session is mutated in place; Result.StateChanged reports whether
// anything actually changed.
func (e *Engine) Process(sess *Session, sub Submission) Result {
	if strings.EqualFold(strings.TrimSpace(sub.RawText), ackLiteral) {
		return Result{Kind: OutcomeAcknowledged}
	}

	number, err := Evaluate(sub.RawText)
	if err != nil {
		// Not a count. Chatter in a counting channel is ignored, never
		// penalized.
		return Result{Kind: OutcomeNoOp}
	}

	if sub.AuthorTeam == TeamUnassigned {
		team := ChooseTeam(sub.UpMembers, sub.DownMembers)
		e.logger.Debug("assigning author to team",
			zap.Int64("author_id", sub.AuthorID),
			zap.String("team", team.String()),
			zap.Int("up_members", sub.UpMembers),
			zap.Int("down_members", sub.DownMembers),
		)
		// The submission is consumed by the assignment; the author has to
		// count again for it to register.
		return Result{Kind: OutcomeWelcomed, Team: team}
	}

	expected := sess.CurrentNumber + 1
	if sub.AuthorTeam == TeamDown {
		expected = sess.CurrentNumber - 1
	}

	if number != expected {
		if sess.LastCounter == nil {
			// The sequence was just reset by a penalty or a win; let the
			// channel find its footing without stacking penalties.
			return Result{Kind: OutcomeSoftWarning, Number: sess.CurrentNumber}
		}
		return e.penalize(sess, sub, PenaltyWrongNumber)
	}

	if sess.LastCounter != nil && sub.AuthorID == *sess.LastCounter {
		// Correct number, same person twice in a row. Turns must rotate.
		return e.penalize(sess, sub, PenaltyRepeatAuthor)
	}

	sess.CurrentNumber = number
	author := sub.AuthorID
	sess.LastCounter = &author

	result := Result{
		Kind:         OutcomeAccepted,
		Number:       number,
		Deltas:       Deltas{Counts: 1},
		StateChanged: true,
	}

	// Wins are evaluated only on the accepted path; a penalty can push the
	// count past a goal without ending the game.
	if number >= WinThreshold || number <= -WinThreshold {
		winner := TeamUp
		if number <= -WinThreshold {
			winner = TeamDown
		}
		sess.CurrentNumber = 0
		sess.LastCounter = nil
		result.Kind = OutcomeWin
		result.Team = winner
		result.Deltas.Wins = 1
		result.Deltas.TeamWin = winner
		e.logger.Info("game won",
			zap.Int64("channel_id", sess.ChannelID),
			zap.String("team", winner.String()),
			zap.Int64("number", number),
		)
	}

	return result
}

// penalize credits the opposing team with a five-count push, clears the turn
// marker, and records the fail.
func (e *Engine) penalize(sess *Session, sub Submission, reason PenaltyReason) Result {
	if sub.AuthorTeam == TeamUp {
		sess.CurrentNumber -= PenaltyPush
	} else {
		sess.CurrentNumber += PenaltyPush
	}
	sess.LastCounter = nil

	e.logger.Debug("penalty applied",
		zap.Int64("channel_id", sess.ChannelID),
		zap.Int64("author_id", sub.AuthorID),
		zap.Int64("count", sess.CurrentNumber),
	)

	return Result{
		Kind:         OutcomePenalty,
		Reason:       reason,
		Number:       sess.CurrentNumber,
		Deltas:       Deltas{Fails: 1},
		StateChanged: true,
	}
}

// ChooseTeam balances membership: Up when it has no more members than Down,
// Down otherwise. Ties go to Up.
func ChooseTeam(upMembers, downMembers int) Team {
	if upMembers <= downMembers {
		return TeamUp
	}
	return TeamDown
}
