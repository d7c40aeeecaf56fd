package stats

import (
	"errors"
	"sort"

	"github.com/countclash/countclash-server-go/internal/counting"
)

// DefaultPageSize is the number of leaderboard rows per page.
const DefaultPageSize = 10

// ErrInvalidPage is returned for a page outside [1, totalPages]. Out-of-range
// requests are rejected, never clamped.
var ErrInvalidPage = errors.New("invalid page number")

// ErrNoStats is returned when a guild has no user records to rank.
var ErrNoStats = errors.New("no counting statistics recorded yet")

// TeamResolver reports a user's current team. Team membership lives on the
// chat platform, so the adapter supplies the lookup per request.
type TeamResolver func(userID string) counting.Team

// Row is one ranked leaderboard entry.
type Row struct {
	Rank   int
	UserID string
	Team   counting.Team
	Counts int64
	Wins   int64
	Fails  int64
}

// Page is one leaderboard slice plus its pagination context.
type Page struct {
	Number     int
	TotalPages int
	Rows       []Row
}

// Leaderboard is a read-only ranked view over a ledger.
type Leaderboard struct {
	ledger   *Ledger
	pageSize int
}

// NewLeaderboard creates a leaderboard over the ledger. pageSize <= 0 falls
// back to DefaultPageSize.
func NewLeaderboard(ledger *Ledger, pageSize int) *Leaderboard {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Leaderboard{ledger: ledger, pageSize: pageSize}
}

// List ranks the guild's users by (counts, wins) descending and returns the
// requested page. Ties keep ledger insertion order (stable sort, no secondary
// key). When filter is TeamUp or TeamDown, users are filtered by their
// resolved team before pagination.
func (b *Leaderboard) List(guildID string, filter counting.Team, page int, resolve TeamResolver) (Page, error) {
	entries := b.ledger.Users(guildID)
	if len(entries) == 0 {
		return Page{}, ErrNoStats
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Counts != entries[j].Counts {
			return entries[i].Counts > entries[j].Counts
		}
		return entries[i].Wins > entries[j].Wins
	})

	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		team := counting.TeamUnassigned
		if resolve != nil {
			team = resolve(e.UserID)
		}
		if filter != counting.TeamUnassigned && team != filter {
			continue
		}
		rows = append(rows, Row{
			UserID: e.UserID,
			Team:   team,
			Counts: e.Counts,
			Wins:   e.Wins,
			Fails:  e.Fails,
		})
	}

	totalPages := (len(rows) + b.pageSize - 1) / b.pageSize
	if page < 1 || page > totalPages {
		return Page{TotalPages: totalPages}, ErrInvalidPage
	}

	start := (page - 1) * b.pageSize
	end := start + b.pageSize
	if end > len(rows) {
		end = len(rows)
	}
	paged := rows[start:end]
	for i := range paged {
		paged[i].Rank = start + i + 1
	}

	return Page{Number: page, TotalPages: totalPages, Rows: paged}, nil
}
