package goals_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalkeeper/internal/domain"
	"goalkeeper/internal/goals"
)

type recorder struct {
	mu      sync.Mutex
	changes []domain.Change
}

func (r *recorder) listen(c domain.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) all() []domain.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Change(nil), r.changes...)
}

func newTestStore(t *testing.T) (*goals.Store, *recorder) {
	t.Helper()
	s := goals.New(goals.Options{
		IDs: goals.NewCounterIDs("g-"),
		Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	rec := &recorder{}
	s.Subscribe(rec.listen)
	return s, rec
}

func texts(gs []domain.Goal) []string {
	out := make([]string, 0, len(gs))
	for _, g := range gs {
		out = append(out, g.Text)
	}
	return out
}

func TestAddAppendsPendingGoal(t *testing.T) {
	s, rec := newTestStore(t)

	g, ok := s.Add("Buy milk")
	require.True(t, ok)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "Buy milk", g.Text)
	assert.False(t, g.Completed)
	assert.Equal(t, "g-1", g.ID)
	assert.Equal(t, "2024-01-01T00:00:00Z", g.CreatedAt)

	changes := rec.all()
	require.Len(t, changes, 1)
	assert.Equal(t, domain.ChangeAdded, changes[0].Kind)
	assert.Equal(t, g.ID, changes[0].GoalID)
	assert.Equal(t, int64(1), changes[0].Seq)
}

func TestAddBlankTextIsSilentNoop(t *testing.T) {
	s, rec := newTestStore(t)
	s.Add("keep")

	for _, in := range []string{"", "   ", "\t\n"} {
		_, ok := s.Add(in)
		assert.False(t, ok, "input %q", in)
	}
	assert.Equal(t, 1, s.Len())
	assert.Len(t, rec.all(), 1)
}

func TestAddKeepsTextVerbatim(t *testing.T) {
	s, _ := newTestStore(t)
	g, ok := s.Add("  padded  ")
	require.True(t, ok)
	assert.Equal(t, "  padded  ", g.Text)
}

func TestToggleIsInvolution(t *testing.T) {
	s, rec := newTestStore(t)
	g, _ := s.Add("A")

	first, ok := s.ToggleCompleted(g.ID)
	require.True(t, ok)
	assert.True(t, first.Completed)

	second, ok := s.ToggleCompleted(g.ID)
	require.True(t, ok)
	assert.False(t, second.Completed)

	got, _ := s.Get(g.ID)
	assert.Equal(t, g, got)
	assert.Len(t, rec.all(), 3)
}

func TestToggleUnknownIsNoop(t *testing.T) {
	s, rec := newTestStore(t)
	s.Add("A")
	_, ok := s.ToggleCompleted("missing")
	assert.False(t, ok)
	assert.Len(t, rec.all(), 1)
}

func TestRemoveIsIdempotent(t *testing.T) {
	s, rec := newTestStore(t)
	a, _ := s.Add("A")
	s.Add("B")

	assert.True(t, s.Remove(a.ID))
	assert.Equal(t, []string{"B"}, texts(s.Goals()))

	assert.False(t, s.Remove(a.ID))
	assert.Equal(t, []string{"B"}, texts(s.Goals()))

	changes := rec.all()
	require.Len(t, changes, 3)
	assert.Equal(t, domain.ChangeRemoved, changes[2].Kind)
	assert.Equal(t, "A", changes[2].Goal.Text)
}

func TestPartitionScenario(t *testing.T) {
	s, _ := newTestStore(t)
	a, _ := s.Add("A")
	s.Add("B")
	s.ToggleCompleted(a.ID)

	p := s.Partition()
	assert.Equal(t, []string{"B"}, texts(p.Pending))
	assert.Equal(t, []string{"A"}, texts(p.Completed))
}

func TestPartitionPreservesInsertionOrder(t *testing.T) {
	s, _ := newTestStore(t)
	var ids []string
	for _, txt := range []string{"1", "2", "3", "4", "5"} {
		g, _ := s.Add(txt)
		ids = append(ids, g.ID)
	}
	s.ToggleCompleted(ids[3])
	s.ToggleCompleted(ids[0])

	p := s.Partition()
	assert.Equal(t, []string{"2", "3", "5"}, texts(p.Pending))
	assert.Equal(t, []string{"1", "4"}, texts(p.Completed))
}

func TestPartitionEmptyStore(t *testing.T) {
	s, _ := newTestStore(t)
	p := s.Partition()
	assert.NotNil(t, p.Pending)
	assert.NotNil(t, p.Completed)
	assert.Equal(t, 0, p.Total())
}

func TestInvariantsHoldOverMixedOperations(t *testing.T) {
	s, rec := newTestStore(t)
	var live []string
	for i := 0; i < 200; i++ {
		switch i % 5 {
		case 0, 1:
			g, ok := s.Add(fmt.Sprintf("goal %d", i))
			require.True(t, ok)
			live = append(live, g.ID)
		case 2:
			if len(live) > 0 {
				s.ToggleCompleted(live[i%len(live)])
			}
		case 3:
			if len(live) > 0 {
				idx := (i * 7) % len(live)
				s.Remove(live[idx])
				live = append(live[:idx], live[idx+1:]...)
			}
		case 4:
			s.Add("   ")
		}

		all := s.Goals()
		seen := map[string]bool{}
		for _, g := range all {
			require.False(t, seen[g.ID], "duplicate id %s", g.ID)
			seen[g.ID] = true
		}
		p := s.Partition()
		require.Equal(t, len(all), p.Total())
		for _, g := range p.Pending {
			require.False(t, g.Completed)
		}
		for _, g := range p.Completed {
			require.True(t, g.Completed)
		}
	}

	changes := rec.all()
	for i, c := range changes {
		require.Equal(t, int64(i+1), c.Seq)
	}
}

func TestIDsNeverReusedAfterRemoval(t *testing.T) {
	s, _ := newTestStore(t)
	a, _ := s.Add("A")
	s.Remove(a.ID)
	b, _ := s.Add("B")
	assert.NotEqual(t, a.ID, b.ID)
}

type stuckIDs struct{}

func (stuckIDs) Next() string { return "same" }

func TestMisbehavingIDSourceStillYieldsUniqueIDs(t *testing.T) {
	s := goals.New(goals.Options{IDs: stuckIDs{}})
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		g, ok := s.Add("x")
		require.True(t, ok)
		require.False(t, seen[g.ID], "duplicate id %s", g.ID)
		seen[g.ID] = true
	}
}

func TestUUIDIDsAreDeterministicPerNamespace(t *testing.T) {
	ns := uuid.MustParse("6ba7b812-9dad-11d1-80b4-00c04fd430c8")
	a := goals.NewUUIDIDs(ns)
	b := goals.NewUUIDIDs(ns)
	first := a.Next()
	assert.Equal(t, first, b.Next())
	assert.NotEqual(t, first, a.Next())
	_, err := uuid.Parse(first)
	assert.NoError(t, err)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := goals.New(goals.Options{})
	var count int
	unsubscribe := s.Subscribe(func(domain.Change) { count++ })
	s.Add("A")
	unsubscribe()
	unsubscribe()
	s.Add("B")
	assert.Equal(t, 1, count)
}

func TestListenerMayReadStore(t *testing.T) {
	s := goals.New(goals.Options{})
	var totals []int
	s.Subscribe(func(domain.Change) { totals = append(totals, s.Partition().Total()) })
	a, _ := s.Add("A")
	s.Add("B")
	s.Remove(a.ID)
	assert.Equal(t, []int{1, 2, 1}, totals)
}

func TestReadingListenerUnderConcurrentMutations(t *testing.T) {
	s := goals.New(goals.Options{})
	var mu sync.Mutex
	var lens []int
	s.Subscribe(func(domain.Change) {
		time.Sleep(time.Millisecond)
		n := s.Len()
		_, _ = s.Get("g-1")
		mu.Lock()
		lens = append(lens, n)
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 20; i++ {
					g, _ := s.Add("x")
					s.ToggleCompleted(g.ID)
				}
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent mutations with a reading listener did not finish")
	}
	assert.Equal(t, 80, s.Len())
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, lens, 160)
}

func TestSnapshotCarriesSeq(t *testing.T) {
	s := goals.New(goals.Options{})
	p, seq := s.Snapshot()
	assert.Zero(t, seq)
	assert.Zero(t, p.Total())

	a, _ := s.Add("A")
	s.Add("B")
	s.ToggleCompleted(a.ID)
	s.Add("   ")

	p, seq = s.Snapshot()
	assert.Equal(t, int64(3), seq)
	assert.Equal(t, []string{"B"}, texts(p.Pending))
	assert.Equal(t, []string{"A"}, texts(p.Completed))
}

func TestConcurrentMutationsNotifyInOrder(t *testing.T) {
	s, rec := newTestStore(t)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				g, _ := s.Add(fmt.Sprintf("w%d-%d", w, i))
				s.ToggleCompleted(g.ID)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 200, s.Len())
	changes := rec.all()
	require.Len(t, changes, 400)
	for i, c := range changes {
		require.Equal(t, int64(i+1), c.Seq)
	}
}
