package stats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countclash/countclash-server-go/internal/counting"
)

func TestLedger_LazyCreation(t *testing.T) {
	l := NewLedger()

	l.RecordCount("g1", "u1")

	users := l.Users("g1")
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].UserID)
	assert.Equal(t, int64(1), users[0].Counts)
	assert.Equal(t, int64(0), users[0].Wins)
	assert.Equal(t, int64(0), users[0].Fails)
}

func TestLedger_RecordWinIncrementsTeamTotal(t *testing.T) {
	l := NewLedger()

	l.RecordWin("g1", "u1", counting.TeamUp)
	l.RecordWin("g1", "u2", counting.TeamDown)
	l.RecordWin("g1", "u1", counting.TeamUp)

	up, down := l.TeamWins("g1")
	assert.Equal(t, int64(2), up)
	assert.Equal(t, int64(1), down)
	assert.Equal(t, int64(2), l.Users("g1")[0].Wins)
}

func TestLedger_RecordFail(t *testing.T) {
	l := NewLedger()

	l.RecordFail("g1", "u1")
	l.RecordFail("g1", "u1")

	assert.Equal(t, int64(2), l.Users("g1")[0].Fails)
}

func TestLedger_ApplyDeltas(t *testing.T) {
	l := NewLedger()

	l.Apply("g1", "u1", counting.Deltas{Counts: 1})
	l.Apply("g1", "u1", counting.Deltas{Counts: 1, Wins: 1, TeamWin: counting.TeamUp})
	l.Apply("g1", "u2", counting.Deltas{Fails: 1})
	l.Apply("g1", "u3", counting.Deltas{}) // no-op, must not create a record

	users := l.Users("g1")
	require.Len(t, users, 2)
	assert.Equal(t, int64(2), users[0].Counts)
	assert.Equal(t, int64(1), users[0].Wins)
	assert.Equal(t, int64(1), users[1].Fails)
	up, down := l.TeamWins("g1")
	assert.Equal(t, int64(1), up)
	assert.Equal(t, int64(0), down)
}

func TestLedger_UnknownGuild(t *testing.T) {
	l := NewLedger()

	assert.Nil(t, l.Users("missing"))
	up, down := l.TeamWins("missing")
	assert.Equal(t, int64(0), up)
	assert.Equal(t, int64(0), down)
}

func TestGuildStats_JSONRoundTripPreservesOrder(t *testing.T) {
	g := NewGuildStats()
	g.EnsureUser("30").Counts = 5
	g.EnsureUser("10").Counts = 5
	g.EnsureUser("20").Counts = 1
	g.UpWins = 3
	g.DownWins = 1

	data, err := json.Marshal(g)
	require.NoError(t, err)

	var decoded GuildStats
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, int64(3), decoded.UpWins)
	assert.Equal(t, int64(1), decoded.DownWins)
	users := decoded.Users()
	require.Len(t, users, 3)
	assert.Equal(t, "30", users[0].UserID)
	assert.Equal(t, "10", users[1].UserID)
	assert.Equal(t, "20", users[2].UserID)
	assert.Equal(t, int64(5), users[0].Counts)
}

func TestGuildStats_UnmarshalPersistedShape(t *testing.T) {
	raw := `{"users":{"111":{"counts":7,"wins":1,"fails":2}},"up_wins":4,"down_wins":0}`

	var g GuildStats
	require.NoError(t, json.Unmarshal([]byte(raw), &g))

	assert.Equal(t, int64(4), g.UpWins)
	u := g.User("111")
	require.NotNil(t, u)
	assert.Equal(t, int64(7), u.Counts)
	assert.Equal(t, int64(2), u.Fails)
}
