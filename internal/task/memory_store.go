package task

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/brand-guardian/internal/auditerr"
)

// #region memory-store

type record struct {
	mu          sync.Mutex
	task        Task
	transitions []Transition
}

// MemoryStore keeps tasks in process memory. Each record has its own lock, so
// updates to different tasks never contend.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*record), now: time.Now}
}

func (s *MemoryStore) lookup(id string) (*record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, auditerr.New(auditerr.KindNotFound, "task %s not found", id)
	}
	return rec, nil
}

// #endregion memory-store

// #region create

// Create stores a new QUEUED task.
func (s *MemoryStore) Create(t Task) error {
	if err := validateNew(t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[t.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, t.ID)
	}
	s.records[t.ID] = &record{
		task:        t.Clone(),
		transitions: []Transition{{TaskID: t.ID, To: StatusQueued, Note: t.Progress, At: t.CreatedAt}},
	}
	return nil
}

// #endregion create

// #region read

// Get returns a snapshot of the task.
func (s *MemoryStore) Get(id string) (Task, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return Task{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.task.Clone(), nil
}

// List returns snapshots of every task, oldest first.
func (s *MemoryStore) List() ([]Task, error) {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	out := make([]Task, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.task.Clone())
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Transitions returns the recorded status changes of a task.
func (s *MemoryStore) Transitions(id string) ([]Transition, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]Transition(nil), rec.transitions...), nil
}

// #endregion read

// #region update

// Update applies fn to the task under its lock.
func (s *MemoryStore) Update(id string, fn func(*Task) error) (Task, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return Task{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	next, tr, err := applyUpdate(rec.task, fn, s.now())
	if err != nil {
		return Task{}, err
	}
	rec.task = next
	if tr != nil {
		rec.transitions = append(rec.transitions, *tr)
	}
	return next.Clone(), nil
}

// #endregion update

// #region evict

// EvictExpired removes terminal tasks whose TerminalAt is at least ttl before now.
func (s *MemoryStore) EvictExpired(now time.Time, ttl time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, rec := range s.records {
		rec.mu.Lock()
		gone := expired(rec.task, now, ttl)
		rec.mu.Unlock()
		if gone {
			delete(s.records, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted, nil
}

// #endregion evict
