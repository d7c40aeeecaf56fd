// Package stats tracks durable per-guild counting statistics: per-user
// counters and team win totals. All mutation is additive; records are created
// lazily and never deleted.
package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/countclash/countclash-server-go/internal/counting"
)

// UserStats holds one user's lifetime counters within a guild.
type UserStats struct {
	Counts int64 `json:"counts"`
	Wins   int64 `json:"wins"`
	Fails  int64 `json:"fails"`
}

// GuildStats holds one guild's team win totals and its user records. User
// records keep their insertion order; the leaderboard relies on it to break
// ties the same way across restarts, so the JSON form preserves it too.
type GuildStats struct {
	UpWins   int64
	DownWins int64

	users map[string]*UserStats
	order []string
}

// NewGuildStats creates an empty guild record.
func NewGuildStats() *GuildStats {
	return &GuildStats{users: make(map[string]*UserStats)}
}

// EnsureUser returns the user's record, creating a zeroed one on first access.
func (g *GuildStats) EnsureUser(userID string) *UserStats {
	if u, ok := g.users[userID]; ok {
		return u
	}
	u := &UserStats{}
	g.users[userID] = u
	g.order = append(g.order, userID)
	return u
}

// User returns the user's record, or nil if none exists.
func (g *GuildStats) User(userID string) *UserStats {
	return g.users[userID]
}

// UserCount returns the number of tracked users.
func (g *GuildStats) UserCount() int {
	return len(g.users)
}

// UserEntry pairs a user id with a copy of its counters.
type UserEntry struct {
	UserID string
	UserStats
}

// Users returns all user records in insertion order.
func (g *GuildStats) Users() []UserEntry {
	entries := make([]UserEntry, 0, len(g.order))
	for _, id := range g.order {
		if u, ok := g.users[id]; ok {
			entries = append(entries, UserEntry{UserID: id, UserStats: *u})
		}
	}
	return entries
}

// MarshalJSON writes the guild in the persisted document shape, emitting
// users in insertion order.
func (g *GuildStats) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"users":{`)
	for i, id := range g.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(g.users[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	fmt.Fprintf(&buf, `},"up_wins":%d,"down_wins":%d}`, g.UpWins, g.DownWins)
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the persisted shape, preserving the user key order of
// the document.
func (g *GuildStats) UnmarshalJSON(data []byte) error {
	g.users = make(map[string]*UserStats)
	g.order = nil

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return err
		}
		switch key {
		case "users":
			if err := g.decodeUsers(dec); err != nil {
				return err
			}
		case "up_wins":
			if err := dec.Decode(&g.UpWins); err != nil {
				return fmt.Errorf("decode up_wins: %w", err)
			}
		case "down_wins":
			if err := dec.Decode(&g.DownWins); err != nil {
				return fmt.Errorf("decode down_wins: %w", err)
			}
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fmt.Errorf("skip field %q: %w", key, err)
			}
		}
	}
	return expectDelim(dec, '}')
}

func (g *GuildStats) decodeUsers(dec *json.Decoder) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		id, err := stringToken(dec)
		if err != nil {
			return err
		}
		var u UserStats
		if err := dec.Decode(&u); err != nil {
			return fmt.Errorf("decode user %s: %w", id, err)
		}
		g.users[id] = &u
		g.order = append(g.order, id)
	}
	return expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, d rune) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != json.Delim(d) {
		return fmt.Errorf("expected %q, got %v", d, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return s, nil
}

// GuildEntry pairs a guild id with its record.
type GuildEntry struct {
	GuildID string
	Stats   *GuildStats
}

// Ledger is the process-scoped stats container. It is safe for concurrent
// use; the session manager mutates it through the Record methods and reads
// go through snapshots.
type Ledger struct {
	mu     sync.RWMutex
	guilds map[string]*GuildStats
	order  []string
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{guilds: make(map[string]*GuildStats)}
}

// NewLedgerFrom builds a ledger from decoded guild entries, preserving their
// order.
func NewLedgerFrom(entries []GuildEntry) *Ledger {
	l := NewLedger()
	for _, e := range entries {
		l.guilds[e.GuildID] = e.Stats
		l.order = append(l.order, e.GuildID)
	}
	return l
}

func (l *Ledger) ensureGuild(guildID string) *GuildStats {
	if g, ok := l.guilds[guildID]; ok {
		return g
	}
	g := NewGuildStats()
	l.guilds[guildID] = g
	l.order = append(l.order, guildID)
	return g
}

// RecordCount credits the user with one accepted count.
func (l *Ledger) RecordCount(guildID, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureGuild(guildID).EnsureUser(userID).Counts++
}

// RecordFail credits the user with one rule violation.
func (l *Ledger) RecordFail(guildID, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureGuild(guildID).EnsureUser(userID).Fails++
}

// RecordWin credits the user with a win and increments the winning team's
// guild total.
func (l *Ledger) RecordWin(guildID, userID string, team counting.Team) {
	l.mu.Lock()
	defer l.mu.Unlock()
	g := l.ensureGuild(guildID)
	g.EnsureUser(userID).Wins++
	switch team {
	case counting.TeamUp:
		g.UpWins++
	case counting.TeamDown:
		g.DownWins++
	}
}

// Apply records the deltas produced by one engine result. Zero-valued deltas
// are a no-op.
func (l *Ledger) Apply(guildID, userID string, d counting.Deltas) {
	if d.Counts == 0 && d.Fails == 0 && d.Wins == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	g := l.ensureGuild(guildID)
	u := g.EnsureUser(userID)
	u.Counts += int64(d.Counts)
	u.Fails += int64(d.Fails)
	u.Wins += int64(d.Wins)
	switch d.TeamWin {
	case counting.TeamUp:
		g.UpWins++
	case counting.TeamDown:
		g.DownWins++
	}
}

// TeamWins returns the guild's team win totals. Both are zero for an unknown
// guild.
func (l *Ledger) TeamWins(guildID string) (upWins, downWins int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.guilds[guildID]
	if !ok {
		return 0, 0
	}
	return g.UpWins, g.DownWins
}

// Users returns the guild's user records in insertion order, or nil for an
// unknown guild.
func (l *Ledger) Users(guildID string) []UserEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.guilds[guildID]
	if !ok {
		return nil
	}
	return g.Users()
}

// Guilds returns all guild entries in insertion order. The returned stats
// pointers are live; callers that serialize them must hold off concurrent
// mutation at a higher level.
func (l *Ledger) Guilds() []GuildEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := make([]GuildEntry, 0, len(l.order))
	for _, id := range l.order {
		entries = append(entries, GuildEntry{GuildID: id, Stats: l.guilds[id]})
	}
	return entries
}
