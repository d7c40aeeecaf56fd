// Package session orchestrates counting games: it owns the authoritative
// document, routes submissions through the engine, applies stat deltas, and
// persists after every mutation.
package session

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/countclash/countclash-server-go/internal/counting"
	"github.com/countclash/countclash-server-go/internal/stats"
	"github.com/countclash/countclash-server-go/internal/store"
)

var (
	// ErrNoPermission rejects a management command from a user without the
	// required platform permission.
	ErrNoPermission = errors.New("missing permission")
	// ErrGameActive rejects starting a game in a channel that already has one.
	ErrGameActive = errors.New("counting is already active in this channel")
	// ErrNoActiveGame rejects game commands in a channel with no game.
	ErrNoActiveGame = errors.New("no counting game is active in this channel")
)

// StartRequest carries everything needed to open a game in a channel. Role
// ids come from the adapter, which owns role creation.
type StartRequest struct {
	GuildID           string
	ChannelID         int64
	UpRoleID          int64
	DownRoleID        int64
	CanManageChannels bool
}

// MessageEvent is one channel message delivered by the adapter.
type MessageEvent struct {
	GuildID     string
	ChannelID   int64
	AuthorID    int64
	Content     string
	AuthorTeam  counting.Team
	UpMembers   int
	DownMembers int
}

// Manager coordinates all active games. Events for the same channel are
// serialized through a per-channel lock; document mutation and save are
// serialized through a single document lock so concurrent channels cannot
// race the whole-document write.
type Manager struct {
	engine *counting.Engine
	board  *stats.Leaderboard
	store  store.Store
	logger *zap.Logger

	docMu sync.Mutex
	doc   *store.Document

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// NewManager creates a manager around the loaded document.
func NewManager(doc *store.Document, st store.Store, pageSize int, logger *zap.Logger) *Manager {
	return &Manager{
		engine: counting.NewEngine(logger),
		board:  stats.NewLeaderboard(doc.Stats, pageSize),
		store:  st,
		logger: logger,
		doc:    doc,
		locks:  make(map[int64]*sync.Mutex),
	}
}

func (m *Manager) channelLock(channelID int64) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[channelID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[channelID] = l
	}
	return l
}

func channelKey(channelID int64) string {
	return strconv.FormatInt(channelID, 10)
}

// persist saves the document. Persistence failures are logged and swallowed:
// the in-memory state stays authoritative and the next successful save
// catches the disk up.
func (m *Manager) persist(ctx context.Context) {
	if err := m.store.Save(ctx, m.doc); err != nil {
		m.logger.Error("failed to persist state, continuing on in-memory copy",
			zap.Error(err),
		)
	}
}

// StartGame opens a counting game in the channel.
func (m *Manager) StartGame(ctx context.Context, req StartRequest) (*counting.Session, error) {
	if !req.CanManageChannels {
		return nil, ErrNoPermission
	}

	lock := m.channelLock(req.ChannelID)
	lock.Lock()
	defer lock.Unlock()

	m.docMu.Lock()
	defer m.docMu.Unlock()

	key := channelKey(req.ChannelID)
	if _, active := m.doc.Games[key]; active {
		return nil, ErrGameActive
	}

	sess := counting.NewSession(req.ChannelID, req.GuildID, req.UpRoleID, req.DownRoleID)
	m.doc.PutGame(key, sess)
	m.persist(ctx)

	m.logger.Info("counting game started",
		zap.String("guild_id", req.GuildID),
		zap.Int64("channel_id", req.ChannelID),
	)

	snapshot := *sess
	return &snapshot, nil
}

// StopGame closes the channel's game.
func (m *Manager) StopGame(ctx context.Context, channelID int64, canManageChannels bool) error {
	if !canManageChannels {
		return ErrNoPermission
	}

	lock := m.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	m.docMu.Lock()
	defer m.docMu.Unlock()

	key := channelKey(channelID)
	if _, active := m.doc.Games[key]; !active {
		return ErrNoActiveGame
	}

	m.doc.RemoveGame(key)
	m.persist(ctx)

	m.logger.Info("counting game stopped", zap.Int64("channel_id", channelID))
	return nil
}

// HandleMessage runs one submission through the engine and makes the outcome
// durable. Channels without an active game return ErrNoActiveGame; the
// gateway ignores those silently.
func (m *Manager) HandleMessage(ctx context.Context, ev MessageEvent) (counting.Result, error) {
	lock := m.channelLock(ev.ChannelID)
	lock.Lock()
	defer lock.Unlock()

	m.docMu.Lock()
	defer m.docMu.Unlock()

	sess, active := m.doc.Games[channelKey(ev.ChannelID)]
	if !active {
		return counting.Result{}, ErrNoActiveGame
	}

	res := m.engine.Process(sess, counting.Submission{
		AuthorID:    ev.AuthorID,
		RawText:     ev.Content,
		AuthorTeam:  ev.AuthorTeam,
		UpMembers:   ev.UpMembers,
		DownMembers: ev.DownMembers,
	})

	if res.StateChanged {
		m.doc.Stats.Apply(ev.GuildID, strconv.FormatInt(ev.AuthorID, 10), res.Deltas)
		m.persist(ctx)
	}

	return res, nil
}

// CheckCount returns a copy of the channel's session.
func (m *Manager) CheckCount(channelID int64) (counting.Session, error) {
	m.docMu.Lock()
	defer m.docMu.Unlock()

	sess, active := m.doc.Games[channelKey(channelID)]
	if !active {
		return counting.Session{}, ErrNoActiveGame
	}
	return *sess, nil
}

// TeamWins returns the guild's win totals.
func (m *Manager) TeamWins(guildID string) (upWins, downWins int64) {
	return m.doc.Stats.TeamWins(guildID)
}

// SwitchTeam decides where the adapter should move a user: members of a team
// go to the opposite one, unassigned users get the balance assignment.
func (m *Manager) SwitchTeam(current counting.Team, upMembers, downMembers int, canManageRoles bool) (counting.Team, error) {
	if !canManageRoles {
		return counting.TeamUnassigned, ErrNoPermission
	}
	if current == counting.TeamUnassigned {
		return counting.ChooseTeam(upMembers, downMembers), nil
	}
	return current.Opposite(), nil
}

// Leaderboard returns one ranked page of the guild's counters.
func (m *Manager) Leaderboard(guildID string, filter counting.Team, page int, resolve stats.TeamResolver) (stats.Page, error) {
	return m.board.List(guildID, filter, page, resolve)
}

// ActiveChannels lists channels with a running game, for the adapter's
// restart-recovery pass.
func (m *Manager) ActiveChannels() []int64 {
	m.docMu.Lock()
	defer m.docMu.Unlock()

	keys := m.doc.GameChannels()
	out := make([]int64, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
