// Package goals holds the authoritative, insertion-ordered goal list and the
// only legal ways to change it.
package goals

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"goalkeeper/internal/domain"
)

// maxDraws bounds how often the store asks its IDSource for a fresh id before
// deriving one itself.
const maxDraws = 8

// Listener receives every change after it has been applied. Listeners run
// synchronously in registration order and may read the store, but must not
// mutate it.
type Listener func(domain.Change)

type Options struct {
	IDs IDSource
	Now func() time.Time
}

type listenerEntry struct {
	id int
	fn Listener
}

// Store is safe for concurrent use. Mutations are serialized and their
// notifications are delivered in Change.Seq order.
//
// Lock order is notifyMu, then mu. A mutator holds notifyMu until its
// listeners return; mu is released before they run.
type Store struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	ids       IDSource
	now       func() time.Time
	items     []domain.Goal
	issued    map[string]struct{}
	seq       int64
	listeners []listenerEntry
	nextLID   int
}

func New(opts Options) *Store {
	if opts.IDs == nil {
		opts.IDs = NewCounterIDs("g-")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		ids:    opts.IDs,
		now:    opts.Now,
		issued: map[string]struct{}{},
	}
}

// Add appends a pending goal. Blank or whitespace-only text is silently
// ignored and reported as false.
func (s *Store) Add(text string) (domain.Goal, bool) {
	if strings.TrimSpace(text) == "" {
		return domain.Goal{}, false
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Lock()
	g := domain.Goal{
		ID:        s.nextID(),
		Text:      text,
		Completed: false,
		CreatedAt: s.timestamp(),
	}
	s.items = append(s.items, g)
	s.commit(domain.ChangeAdded, g)
	return g, true
}

// Remove deletes the goal with the given id. Unknown ids are a no-op.
func (s *Store) Remove(id string) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	g := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.commit(domain.ChangeRemoved, g)
	return true
}

// ToggleCompleted flips the completed flag. Unknown ids are a no-op.
func (s *Store) ToggleCompleted(id string) (domain.Goal, bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return domain.Goal{}, false
	}
	s.items[idx].Completed = !s.items[idx].Completed
	g := s.items[idx]
	s.commit(domain.ChangeToggled, g)
	return g, true
}

// Partition projects the current list into pending and completed goals.
func (s *Store) Partition() domain.Partition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partition()
}

// Snapshot returns the partition together with the seq of the last change
// it reflects. Changes with a higher seq are not part of it.
func (s *Store) Snapshot() (domain.Partition, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partition(), s.seq
}

func (s *Store) partition() domain.Partition {
	p := domain.Partition{Pending: []domain.Goal{}, Completed: []domain.Goal{}}
	for _, g := range s.items {
		if g.Completed {
			p.Completed = append(p.Completed, g)
		} else {
			p.Pending = append(p.Pending, g)
		}
	}
	return p
}

// Goals returns a copy of the list in insertion order.
func (s *Store) Goals() []domain.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Goal, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Get(id string) (domain.Goal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return domain.Goal{}, false
	}
	return s.items[idx], true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Subscribe registers fn for change notifications and returns a function
// that removes it again.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	s.nextLID++
	id := s.nextLID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// commit must be called with s.notifyMu and s.mu held; it releases mu
// before notifying.
func (s *Store) commit(kind domain.ChangeKind, g domain.Goal) {
	s.seq++
	change := domain.Change{
		Seq:    s.seq,
		Kind:   kind,
		GoalID: g.ID,
		Goal:   g,
		TS:     s.timestamp(),
	}
	listeners := make([]Listener, len(s.listeners))
	for i, l := range s.listeners {
		listeners[i] = l.fn
	}
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(change)
	}
}

func (s *Store) indexOf(id string) int {
	for i, g := range s.items {
		if g.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) nextID() string {
	var id string
	for i := 0; i < maxDraws; i++ {
		id = s.ids.Next()
		if s.claim(id) {
			return id
		}
	}
	for n := s.seq + 1; ; n++ {
		candidate := id + "~" + strconv.FormatInt(n, 10)
		if s.claim(candidate) {
			return candidate
		}
	}
}

func (s *Store) claim(id string) bool {
	if id == "" {
		return false
	}
	if _, dup := s.issued[id]; dup {
		return false
	}
	s.issued[id] = struct{}{}
	return true
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
