// Package gateway is the chat-adapter boundary: a websocket endpoint that
// platform adapters connect to. Adapters forward channel messages and slash
// commands as JSON events; the gateway answers with outcomes (reaction plus
// channel text) and command replies for the adapter to render.
package gateway

import "github.com/countclash/countclash-server-go/internal/counting"

// Inbound event types.
const (
	EventAuth    = "auth"
	EventMessage = "message"
	EventCommand = "command"
)

// Outbound event types.
const (
	EventOutcome = "outcome"
	EventReply   = "reply"
	EventError   = "error"
)

// Command names carried on EventCommand.
const (
	CmdStart       = "start"
	CmdStop        = "stop"
	CmdCount       = "count"
	CmdTeamStats   = "teamstats"
	CmdSwitchTeam  = "switchteam"
	CmdLeaderboard = "leaderboard"
	CmdPing        = "ping"
	CmdHelp        = "help"
)

// Event is the inbound envelope.
type Event struct {
	Type string `json:"type"`
	// ID correlates a reply with its request; echoed back verbatim.
	ID string `json:"id,omitempty"`

	// Auth.
	Token string `json:"token,omitempty"`

	// Common identity.
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID int64  `json:"channel_id,omitempty"`
	AuthorID  int64  `json:"author_id,omitempty"`

	// Message events.
	Content    string `json:"content,omitempty"`
	AuthorTeam string `json:"author_team,omitempty"` // "up", "down", or ""

	// Team membership context, supplied by the adapter.
	UpMembers   int `json:"up_members,omitempty"`
	DownMembers int `json:"down_members,omitempty"`

	// Command events.
	Command           string `json:"command,omitempty"`
	CanManageChannels bool   `json:"can_manage_channels,omitempty"`
	CanManageRoles    bool   `json:"can_manage_roles,omitempty"`
	UpRoleID          int64  `json:"up_role_id,omitempty"`
	DownRoleID        int64  `json:"down_role_id,omitempty"`
	Team              string `json:"team,omitempty"` // leaderboard filter / switch target's team
	Page              int    `json:"page,omitempty"`
	TargetID          int64  `json:"target_id,omitempty"`
	// MemberTeams maps user id to "up"/"down" for leaderboard team resolution.
	MemberTeams map[string]string `json:"member_teams,omitempty"`
}

// Outcome tells the adapter how to render a processed channel message.
type Outcome struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	ChannelID int64  `json:"channel_id"`
	Outcome   string `json:"outcome"`
	// Reaction is an emoji to add to the message, empty for none.
	Reaction string `json:"reaction,omitempty"`
	// Message is channel text to send, empty for none.
	Message string `json:"message,omitempty"`
	Count   int64  `json:"count,omitempty"`
	// Team is the welcomed or winning team, empty otherwise.
	Team string `json:"team,omitempty"`
}

// LeaderboardRow is one rendered leaderboard entry.
type LeaderboardRow struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Team   string `json:"team"`
	Counts int64  `json:"counts"`
	Wins   int64  `json:"wins"`
	Fails  int64  `json:"fails"`
}

// Reply answers a command event.
type Reply struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	OK   bool   `json:"ok"`
	// Ephemeral replies are shown only to the invoking user.
	Ephemeral bool   `json:"ephemeral,omitempty"`
	Message   string `json:"message,omitempty"`

	// Command-specific payloads.
	Count      int64            `json:"count,omitempty"`
	Progress   string           `json:"progress,omitempty"`
	UpWins     int64            `json:"up_wins,omitempty"`
	DownWins   int64            `json:"down_wins,omitempty"`
	Team       string           `json:"team,omitempty"`
	Page       int              `json:"page,omitempty"`
	TotalPages int              `json:"total_pages,omitempty"`
	Rows       []LeaderboardRow `json:"rows,omitempty"`
	// ActiveChannels is included on successful auth so the adapter can run
	// its restart-recovery pass.
	ActiveChannels []int64 `json:"active_channels,omitempty"`
}

func teamName(t counting.Team) string {
	switch t {
	case counting.TeamUp:
		return "up"
	case counting.TeamDown:
		return "down"
	default:
		return ""
	}
}

func parseTeam(s string) counting.Team {
	switch s {
	case "up":
		return counting.TeamUp
	case "down":
		return counting.TeamDown
	default:
		return counting.TeamUnassigned
	}
}
