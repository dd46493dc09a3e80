package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/store"
)

// MemoryStore keeps task records in memory. It backs tests and
// single-process development runs. CreateFn and UpdateFn can be replaced to
// inject failures or observe writes.
type MemoryStore struct {
	mutex   sync.RWMutex
	records map[uuid.UUID]*Record
	now     func() time.Time

	CreateFn func(ctx context.Context, rec *Record) error
	UpdateFn func(ctx context.Context, rec *Record) error
}

// NewMemoryStore creates an empty MemoryStore with default implementations
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		records: make(map[uuid.UUID]*Record),
		now:     func() time.Time { return time.Now().UTC() },
	}

	s.CreateFn = func(_ context.Context, rec *Record) error {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		if _, exists := s.records[rec.ID]; exists {
			return fmt.Errorf("%w: task %s", store.ErrDuplicate, rec.ID)
		}
		if err := s.checkInFlight(rec); err != nil {
			return err
		}
		now := s.now()
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		s.records[rec.ID] = rec.Clone()
		return nil
	}

	s.UpdateFn = func(_ context.Context, rec *Record) error {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		if _, exists := s.records[rec.ID]; !exists {
			return store.ErrTaskNotFound
		}
		if err := s.checkInFlight(rec); err != nil {
			return err
		}
		rec.UpdatedAt = s.now()
		s.records[rec.ID] = rec.Clone()
		return nil
	}

	return s
}

// checkInFlight rejects rec if it would become a second in-flight exclusive
// record. Callers hold the write lock.
func (s *MemoryStore) checkInFlight(rec *Record) error {
	if !rec.Exclusive() || !rec.Status.InFlight() {
		return nil
	}
	for _, other := range s.records {
		if rec.ConflictsWith(other) {
			return fmt.Errorf("%w: task %s is %s", ErrTaskInFlight, other.ID, other.Status)
		}
	}
	return nil
}

// SetClock replaces the time source used for timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	return s.CreateFn(ctx, rec)
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, rec *Record) error {
	return s.UpdateFn(ctx, rec)
}

// Put stores rec as is, keeping its timestamps. Tests use it to seed
// records in arbitrary states.
func (s *MemoryStore) Put(rec *Record) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.records[rec.ID] = rec.Clone()
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return rec.Clone(), nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]*Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []*Record
	for _, rec := range s.records {
		if f.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	SortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CountByStatus implements Store.
func (s *MemoryStore) CountByStatus(_ context.Context) (map[Status]int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	counts := make(map[Status]int, len(Statuses))
	for _, rec := range s.records {
		counts[rec.Status]++
	}
	return counts, nil
}

// SortNewestFirst orders records by creation time, newest first, breaking
// ties by id so the order is stable.
func SortNewestFirst(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID.String() < recs[j].ID.String()
	})
}
