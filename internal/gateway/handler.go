package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/countclash/countclash-server-go/internal/counting"
	"github.com/countclash/countclash-server-go/internal/session"
	"github.com/countclash/countclash-server-go/internal/stats"
)

// Team role names, shared with the adapter so both sides render consistently.
const (
	UpTeamName   = "Counting Up"
	DownTeamName = "Counting Down"
)

const helpText = `Available commands:
/start marks this channel as a counting channel (mod only)
/stop stops the counting in this channel (mod only)
/count checks the current count
/leaderboard shows the counting leaderboard (optional team and page)
/teamstats shows the team statistics
/switchteam switches a player's team (mod only)
/ping checks latency
/help shows this message`

// dispatch routes one authenticated event. It never lets a panic escape: a
// failed event produces an error reply, not a dead hub.
func (h *Hub) dispatch(c *Client, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while handling event",
				zap.String("client_id", c.id),
				zap.String("event_type", ev.Type),
				zap.Any("panic", r),
			)
			c.reply(Reply{Type: EventError, ID: ev.ID, OK: false, Message: "internal error"})
		}
	}()

	switch ev.Type {
	case EventMessage:
		h.handleChannelMessage(c, ev)
	case EventCommand:
		h.handleCommand(c, ev)
	default:
		c.reply(Reply{Type: EventError, ID: ev.ID, OK: false, Message: fmt.Sprintf("unknown event type %q", ev.Type)})
	}
}

func (h *Hub) handleChannelMessage(c *Client, ev Event) {
	res, err := h.manager.HandleMessage(context.Background(), session.MessageEvent{
		GuildID:     ev.GuildID,
		ChannelID:   ev.ChannelID,
		AuthorID:    ev.AuthorID,
		Content:     ev.Content,
		AuthorTeam:  parseTeam(ev.AuthorTeam),
		UpMembers:   ev.UpMembers,
		DownMembers: ev.DownMembers,
	})
	if err != nil {
		// Messages in channels without a game are not the adapter's mistake;
		// they are simply not counts.
		return
	}
	if res.Kind == counting.OutcomeNoOp {
		return
	}

	c.reply(h.renderOutcome(ev, res))
}

// renderOutcome maps an engine result to the reaction and channel text the
// adapter should produce.
func (h *Hub) renderOutcome(ev Event, res counting.Result) Outcome {
	out := Outcome{
		Type:      EventOutcome,
		ID:        ev.ID,
		ChannelID: ev.ChannelID,
		Outcome:   strings.ToLower(res.Kind.String()),
		Count:     res.Number,
		Team:      teamName(res.Team),
	}

	switch res.Kind {
	case counting.OutcomeAcknowledged:
		out.Reaction = "✅"
	case counting.OutcomeWelcomed:
		out.Message = fmt.Sprintf("Welcome <@%d>! You've been assigned to team %s! Your next count will be registered.",
			ev.AuthorID, displayTeamName(res.Team))
	case counting.OutcomeSoftWarning:
		out.Reaction = "⚠️"
		out.Message = fmt.Sprintf("<@%d> someone just ruined the count! Make sure to count the right number next time. Counting continues from %d.",
			ev.AuthorID, res.Number)
	case counting.OutcomePenalty:
		out.Reaction = "❌"
		verb := "broke the sequence"
		if res.Reason == counting.PenaltyRepeatAuthor {
			verb = "can't count twice in a row"
		}
		out.Message = fmt.Sprintf("❌ <@%d> %s! The opposing team gets %d counts. The count is now %d.",
			ev.AuthorID, verb, counting.PenaltyPush, res.Number)
	case counting.OutcomeAccepted:
		out.Reaction = "✅"
	case counting.OutcomeWin:
		out.Reaction = "🎉"
		out.Message = fmt.Sprintf("🎉 Team %s has won! The count has been reset to 0.", displayTeamName(res.Team))
	}

	return out
}

func displayTeamName(t counting.Team) string {
	if t == counting.TeamDown {
		return DownTeamName
	}
	return UpTeamName
}

func (h *Hub) handleCommand(c *Client, ev Event) {
	ctx := context.Background()

	switch ev.Command {
	case CmdStart:
		sess, err := h.manager.StartGame(ctx, session.StartRequest{
			GuildID:           ev.GuildID,
			ChannelID:         ev.ChannelID,
			UpRoleID:          ev.UpRoleID,
			DownRoleID:        ev.DownRoleID,
			CanManageChannels: ev.CanManageChannels,
		})
		if err != nil {
			c.reply(rejection(ev, err))
			return
		}
		c.reply(Reply{
			Type: EventReply, ID: ev.ID, OK: true,
			Count: sess.CurrentNumber,
			Message: fmt.Sprintf("The counting has started!\nTeam %s is counting up to %d\nTeam %s is counting down to -%d\nStart counting from 0!\n\nPlayers will be automatically assigned to teams when they first count.",
				UpTeamName, counting.WinThreshold, DownTeamName, counting.WinThreshold),
		})

	case CmdStop:
		if err := h.manager.StopGame(ctx, ev.ChannelID, ev.CanManageChannels); err != nil {
			c.reply(rejection(ev, err))
			return
		}
		c.reply(Reply{Type: EventReply, ID: ev.ID, OK: true, Message: "Counting game stopped!"})

	case CmdCount:
		sess, err := h.manager.CheckCount(ev.ChannelID)
		if err != nil {
			c.reply(rejection(ev, err))
			return
		}
		c.reply(Reply{
			Type: EventReply, ID: ev.ID, OK: true,
			Count:    sess.CurrentNumber,
			Progress: progressText(sess.CurrentNumber),
		})

	case CmdTeamStats:
		up, down := h.manager.TeamWins(ev.GuildID)
		c.reply(Reply{
			Type: EventReply, ID: ev.ID, OK: true,
			UpWins:   up,
			DownWins: down,
			Message: fmt.Sprintf("%s wins: %d | %s wins: %d | %s members: %d | %s members: %d",
				UpTeamName, up, DownTeamName, down, UpTeamName, ev.UpMembers, DownTeamName, ev.DownMembers),
		})

	case CmdSwitchTeam:
		target, err := h.manager.SwitchTeam(parseTeam(ev.Team), ev.UpMembers, ev.DownMembers, ev.CanManageRoles)
		if err != nil {
			c.reply(rejection(ev, err))
			return
		}
		c.reply(Reply{
			Type: EventReply, ID: ev.ID, OK: true,
			Team:    teamName(target),
			Message: fmt.Sprintf("<@%d> has been switched to team %s!", ev.TargetID, displayTeamName(target)),
		})

	case CmdLeaderboard:
		page := ev.Page
		if page == 0 {
			page = 1
		}
		result, err := h.manager.Leaderboard(ev.GuildID, parseTeam(ev.Team), page, memberTeamResolver(ev.MemberTeams))
		if err != nil {
			c.reply(rejection(ev, err))
			return
		}
		rows := make([]LeaderboardRow, 0, len(result.Rows))
		for _, r := range result.Rows {
			rows = append(rows, LeaderboardRow{
				Rank:   r.Rank,
				UserID: r.UserID,
				Team:   teamName(r.Team),
				Counts: r.Counts,
				Wins:   r.Wins,
				Fails:  r.Fails,
			})
		}
		c.reply(Reply{
			Type: EventReply, ID: ev.ID, OK: true,
			Page:       result.Number,
			TotalPages: result.TotalPages,
			Rows:       rows,
		})

	case CmdPing:
		c.reply(Reply{Type: EventReply, ID: ev.ID, OK: true, Message: "Pong! 🏓"})

	case CmdHelp:
		c.reply(Reply{Type: EventReply, ID: ev.ID, OK: true, Ephemeral: true, Message: helpText})

	default:
		c.reply(Reply{Type: EventError, ID: ev.ID, OK: false, Message: fmt.Sprintf("unknown command %q", ev.Command)})
	}
}

// rejection maps a manager error to an ephemeral reply.
func rejection(ev Event, err error) Reply {
	msg := "something went wrong"
	switch {
	case errors.Is(err, session.ErrNoPermission):
		msg = "You don't have permission to do that!"
	case errors.Is(err, session.ErrGameActive):
		msg = "Counting is already active in this channel!"
	case errors.Is(err, session.ErrNoActiveGame):
		msg = "No counting game is active in this channel!"
	case errors.Is(err, stats.ErrInvalidPage):
		msg = "Invalid page number!"
	case errors.Is(err, stats.ErrNoStats):
		msg = "No counting statistics available yet - go count, you fools!"
	}
	return Reply{Type: EventReply, ID: ev.ID, OK: false, Ephemeral: true, Message: msg}
}

func progressText(current int64) string {
	switch {
	case current > 0:
		return fmt.Sprintf("Team Up: %d/%d", current, counting.WinThreshold)
	case current < 0:
		return fmt.Sprintf("Team Down: %d/%d", -current, counting.WinThreshold)
	default:
		return "Game just started!"
	}
}

func memberTeamResolver(teams map[string]string) stats.TeamResolver {
	if teams == nil {
		return nil
	}
	return func(userID string) counting.Team {
		return parseTeam(teams[userID])
	}
}
