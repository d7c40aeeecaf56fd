package session

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/countclash/countclash-server-go/internal/counting"
	"github.com/countclash/countclash-server-go/internal/stats"
	"github.com/countclash/countclash-server-go/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.FileStore) {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "counting_stats.json"), zap.NewNop())
	require.NoError(t, err)
	doc, err := st.Load(context.Background())
	require.NoError(t, err)
	return NewManager(doc, st, stats.DefaultPageSize, zap.NewNop()), st
}

func startTestGame(t *testing.T, m *Manager) {
	t.Helper()
	_, err := m.StartGame(context.Background(), StartRequest{
		GuildID:           "g1",
		ChannelID:         500,
		UpRoleID:          71,
		DownRoleID:        72,
		CanManageChannels: true,
	})
	require.NoError(t, err)
}

func TestStartGame_RequiresPermission(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.StartGame(context.Background(), StartRequest{GuildID: "g1", ChannelID: 500})
	assert.ErrorIs(t, err, ErrNoPermission)
}

func TestStartGame_RejectsDuplicate(t *testing.T) {
	m, _ := newTestManager(t)
	startTestGame(t, m)

	_, err := m.StartGame(context.Background(), StartRequest{
		GuildID:           "g1",
		ChannelID:         500,
		CanManageChannels: true,
	})
	assert.ErrorIs(t, err, ErrGameActive)
}

func TestStopGame(t *testing.T) {
	m, _ := newTestManager(t)
	startTestGame(t, m)

	require.NoError(t, m.StopGame(context.Background(), 500, true))

	_, err := m.CheckCount(500)
	assert.ErrorIs(t, err, ErrNoActiveGame)
	assert.Empty(t, m.ActiveChannels())
}

func TestStopGame_Rejections(t *testing.T) {
	m, _ := newTestManager(t)

	assert.ErrorIs(t, m.StopGame(context.Background(), 500, false), ErrNoPermission)
	assert.ErrorIs(t, m.StopGame(context.Background(), 500, true), ErrNoActiveGame)
}

func TestHandleMessage_InactiveChannelIsIgnored(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.HandleMessage(context.Background(), MessageEvent{GuildID: "g1", ChannelID: 999, AuthorID: 1, Content: "1"})
	assert.ErrorIs(t, err, ErrNoActiveGame)
}

func TestHandleMessage_FullGameFlow(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	startTestGame(t, m)

	// Scenario: unassigned newcomer is welcomed, the number not counted.
	res, err := m.HandleMessage(ctx, MessageEvent{GuildID: "g1", ChannelID: 500, AuthorID: 1, Content: "1", AuthorTeam: counting.TeamUnassigned})
	require.NoError(t, err)
	assert.Equal(t, counting.OutcomeWelcomed, res.Kind)
	assert.Equal(t, counting.TeamUp, res.Team)

	sess, err := m.CheckCount(500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sess.CurrentNumber)

	// A valid count advances and is credited.
	res, err = m.HandleMessage(ctx, MessageEvent{GuildID: "g1", ChannelID: 500, AuthorID: 1, Content: "1", AuthorTeam: counting.TeamUp})
	require.NoError(t, err)
	assert.Equal(t, counting.OutcomeAccepted, res.Kind)

	// The same author counting again is penalized.
	res, err = m.HandleMessage(ctx, MessageEvent{GuildID: "g1", ChannelID: 500, AuthorID: 1, Content: "2", AuthorTeam: counting.TeamUp})
	require.NoError(t, err)
	assert.Equal(t, counting.OutcomePenalty, res.Kind)

	sess, err = m.CheckCount(500)
	require.NoError(t, err)
	assert.Equal(t, int64(-4), sess.CurrentNumber)
	assert.Nil(t, sess.LastCounter)

	users := m.doc.Stats.Users("g1")
	require.Len(t, users, 1)
	assert.Equal(t, int64(1), users[0].Counts)
	assert.Equal(t, int64(1), users[0].Fails)
}

func TestHandleMessage_WinUpdatesGuildTotals(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	startTestGame(t, m)

	// Drive the count to 99 with two alternating players.
	authors := []int64{1, 2}
	for n := int64(1); n <= 99; n++ {
		res, err := m.HandleMessage(ctx, MessageEvent{
			GuildID:    "g1",
			ChannelID:  500,
			AuthorID:   authors[n%2],
			Content:    formatInt(n),
			AuthorTeam: counting.TeamUp,
		})
		require.NoError(t, err)
		require.Equal(t, counting.OutcomeAccepted, res.Kind, "count %d", n)
	}

	// Count 99 was author 2's, so author 1 lands the winning number.
	res, err := m.HandleMessage(ctx, MessageEvent{GuildID: "g1", ChannelID: 500, AuthorID: 1, Content: "100", AuthorTeam: counting.TeamUp})
	require.NoError(t, err)
	assert.Equal(t, counting.OutcomeWin, res.Kind)
	assert.Equal(t, counting.TeamUp, res.Team)

	up, down := m.TeamWins("g1")
	assert.Equal(t, int64(1), up)
	assert.Equal(t, int64(0), down)

	sess, err := m.CheckCount(500)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sess.CurrentNumber)
	assert.Nil(t, sess.LastCounter)
}

func TestManager_StatePersistsAcrossRestart(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	startTestGame(t, m)

	res, err := m.HandleMessage(ctx, MessageEvent{GuildID: "g1", ChannelID: 500, AuthorID: 1, Content: "1", AuthorTeam: counting.TeamUp})
	require.NoError(t, err)
	require.Equal(t, counting.OutcomeAccepted, res.Kind)

	// Simulate a restart: reload the document and build a fresh manager.
	doc, err := st.Load(ctx)
	require.NoError(t, err)
	m2 := NewManager(doc, st, stats.DefaultPageSize, zap.NewNop())

	sess, err := m2.CheckCount(500)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.CurrentNumber)
	require.NotNil(t, sess.LastCounter)
	assert.Equal(t, int64(1), *sess.LastCounter)
	assert.Equal(t, []int64{500}, m2.ActiveChannels())

	// The sequence continues where it left off.
	res, err = m2.HandleMessage(ctx, MessageEvent{GuildID: "g1", ChannelID: 500, AuthorID: 2, Content: "2", AuthorTeam: counting.TeamUp})
	require.NoError(t, err)
	assert.Equal(t, counting.OutcomeAccepted, res.Kind)
}

func TestSwitchTeam(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.SwitchTeam(counting.TeamUp, 0, 0, false)
	assert.ErrorIs(t, err, ErrNoPermission)

	team, err := m.SwitchTeam(counting.TeamUp, 3, 2, true)
	require.NoError(t, err)
	assert.Equal(t, counting.TeamDown, team)

	team, err = m.SwitchTeam(counting.TeamDown, 3, 2, true)
	require.NoError(t, err)
	assert.Equal(t, counting.TeamUp, team)

	// Unassigned users get the balance assignment.
	team, err = m.SwitchTeam(counting.TeamUnassigned, 4, 2, true)
	require.NoError(t, err)
	assert.Equal(t, counting.TeamDown, team)
}

func TestLeaderboard_ThroughManager(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	startTestGame(t, m)

	require.NotNil(t, m)
	_, err := m.Leaderboard("g1", counting.TeamUnassigned, 1, nil)
	assert.ErrorIs(t, err, stats.ErrNoStats)

	res, err := m.HandleMessage(ctx, MessageEvent{GuildID: "g1", ChannelID: 500, AuthorID: 1, Content: "1", AuthorTeam: counting.TeamUp})
	require.NoError(t, err)
	require.Equal(t, counting.OutcomeAccepted, res.Kind)

	page, err := m.Leaderboard("g1", counting.TeamUnassigned, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "1", page.Rows[0].UserID)

	_, err = m.Leaderboard("g1", counting.TeamUnassigned, 2, nil)
	assert.ErrorIs(t, err, stats.ErrInvalidPage)
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
