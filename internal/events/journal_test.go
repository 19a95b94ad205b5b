package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalkeeper/internal/db"
	"goalkeeper/internal/domain"
	"goalkeeper/internal/events"
	"goalkeeper/internal/goals"
	"goalkeeper/internal/migrate"
)

type testEnv struct {
	Journal events.Journal
	Store   *goals.Store
	Ctx     context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	j := events.Journal{DB: conn}
	s := goals.New(goals.Options{
		Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	s.Subscribe(j.Listener(ctx, zerolog.Nop(), time.Second))
	return testEnv{Journal: j, Store: s, Ctx: ctx}
}

func TestJournalMirrorsChanges(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.Store.Add("A")
	env.Store.Add("B")
	env.Store.Add("  ")
	env.Store.ToggleCompleted(a.ID)
	env.Store.Remove(a.ID)
	env.Store.Remove(a.ID)

	evts, err := env.Journal.After(env.Ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, evts, 4)
	kinds := []string{}
	for i, e := range evts {
		kinds = append(kinds, e.Kind)
		assert.Equal(t, int64(i+1), e.Seq)
	}
	assert.Equal(t, []string{"added", "added", "toggled", "removed"}, kinds)

	var removed domain.Goal
	require.NoError(t, json.Unmarshal([]byte(evts[3].Payload), &removed))
	assert.Equal(t, "A", removed.Text)
	assert.True(t, removed.Completed)
}

func TestLatestFiltersAndPaginates(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.Store.Add("A")
	for i := 0; i < 3; i++ {
		env.Store.ToggleCompleted(a.ID)
	}
	env.Store.Add("B")

	toggles, err := env.Journal.Latest(env.Ctx, events.Filter{Kind: "toggled"})
	require.NoError(t, err)
	assert.Len(t, toggles, 3)

	forA, err := env.Journal.Latest(env.Ctx, events.Filter{GoalID: a.ID})
	require.NoError(t, err)
	assert.Len(t, forA, 4)

	page, err := env.Journal.Latest(env.Ctx, events.Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].Seq)
	next, err := env.Journal.Latest(env.Ctx, events.Filter{Limit: 2, Cursor: page[1].ID})
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, int64(3), next[0].Seq)
}

func TestCounts(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.Store.Add("A")
	env.Store.Add("B")
	env.Store.Remove(a.ID)

	counts, err := env.Journal.Counts(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"added": 2, "removed": 1}, counts)
}

func TestListenerLogsFailures(t *testing.T) {
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	defer conn.Close()
	var buf bytes.Buffer
	j := events.Journal{DB: conn}
	s := goals.New(goals.Options{})
	s.Subscribe(j.Listener(context.Background(), zerolog.New(&buf), 0))

	_, ok := s.Add("no schema yet")
	assert.True(t, ok)
	assert.Contains(t, buf.String(), "journal append failed")
}
