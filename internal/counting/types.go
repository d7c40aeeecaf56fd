package counting

// Team identifies which direction a player counts.
type Team int

const (
	TeamUnassigned Team = iota
	TeamUp
	TeamDown
)

func (t Team) String() string {
	switch t {
	case TeamUp:
		return "UP"
	case TeamDown:
		return "DOWN"
	case TeamUnassigned:
		return "UNASSIGNED"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other team. Unassigned has no opposite.
func (t Team) Opposite() Team {
	switch t {
	case TeamUp:
		return TeamDown
	case TeamDown:
		return TeamUp
	default:
		return TeamUnassigned
	}
}

// Session is the per-channel game state. Only the engine mutates it.
type Session struct {
	ChannelID     int64  `json:"channel_id"`
	GuildID       string `json:"guild_id"`
	CurrentNumber int64  `json:"current_number"`
	LastCounter   *int64 `json:"last_counter"`
	UpRoleID      int64  `json:"up_role_id"`
	DownRoleID    int64  `json:"down_role_id"`
}

// NewSession creates a fresh session starting at zero.
func NewSession(channelID int64, guildID string, upRoleID, downRoleID int64) *Session {
	return &Session{
		ChannelID:  channelID,
		GuildID:    guildID,
		UpRoleID:   upRoleID,
		DownRoleID: downRoleID,
	}
}

// Submission is one numeric message delivered by the chat adapter.
type Submission struct {
	AuthorID   int64
	RawText    string
	AuthorTeam Team

	// Current team sizes, used when the author still needs an assignment.
	UpMembers   int
	DownMembers int
}

// OutcomeKind classifies what the engine decided about a submission.
type OutcomeKind int

const (
	// OutcomeNoOp means the message was not a valid arithmetic token and is
	// silently ignored.
	OutcomeNoOp OutcomeKind = iota
	// OutcomeAcknowledged is the reaction-only response to the special
	// literal, with no game effect.
	OutcomeAcknowledged
	// OutcomeWelcomed means the author had no team yet and was assigned one;
	// the submitted number is consumed without being counted.
	OutcomeWelcomed
	// OutcomeSoftWarning means the number was wrong but the sequence had just
	// been reset, so no penalty applies.
	OutcomeSoftWarning
	// OutcomePenalty means the author broke a rule and the opposing team was
	// credited five counts.
	OutcomePenalty
	// OutcomeAccepted means the count advanced.
	OutcomeAccepted
	// OutcomeWin means the count advanced onto a goal and the game reset.
	OutcomeWin
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoOp:
		return "NOOP"
	case OutcomeAcknowledged:
		return "ACKNOWLEDGED"
	case OutcomeWelcomed:
		return "WELCOMED"
	case OutcomeSoftWarning:
		return "SOFT_WARNING"
	case OutcomePenalty:
		return "PENALTY"
	case OutcomeAccepted:
		return "ACCEPTED"
	case OutcomeWin:
		return "WIN"
	default:
		return "UNKNOWN"
	}
}

// Deltas are the stat increments produced by one processed submission. The
// caller applies them to the ledger; the engine never touches storage.
type Deltas struct {
	Counts int
	Fails  int
	Wins   int
	// TeamWin is the team whose guild win counter should increment, or
	// TeamUnassigned when nobody won.
	TeamWin Team
}

// PenaltyReason says which rule a penalized submission broke.
type PenaltyReason int

const (
	PenaltyNone PenaltyReason = iota
	// PenaltyWrongNumber: the submission did not continue the sequence.
	PenaltyWrongNumber
	// PenaltyRepeatAuthor: the same user submitted two valid numbers in a row.
	PenaltyRepeatAuthor
)

// Result is the full outcome of processing one submission.
type Result struct {
	Kind OutcomeKind
	// Reason is set for Penalty outcomes.
	Reason PenaltyReason
	// Number is the evaluated submission for Accepted/Win, or the count after
	// a penalty was applied.
	Number int64
	// Team is the welcomed team for Welcomed and the winning team for Win.
	Team   Team
	Deltas Deltas
	// StateChanged reports whether the session or stats were mutated and a
	// save is required before the outcome is durable.
	StateChanged bool
}
