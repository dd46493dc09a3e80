package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type scheduled struct {
	id uuid.UUID
	at time.Time
}

// recordingScheduler remembers every Schedule call instead of arming timers.
type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduled
}

func (s *recordingScheduler) Schedule(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scheduled{id: id, at: at})
}

func (s *recordingScheduler) Stop() {}

func (s *recordingScheduler) Calls() []scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduled(nil), s.calls...)
}

// statusRecorder wraps a MemoryStore and remembers every status written by
// Update, in order.
func statusRecorder(s *MemoryStore) func() []Status {
	var mu sync.Mutex
	var statuses []Status
	orig := s.UpdateFn
	s.UpdateFn = func(ctx context.Context, rec *Record) error {
		mu.Lock()
		statuses = append(statuses, rec.Status)
		mu.Unlock()
		return orig(ctx, rec)
	}
	return func() []Status {
		mu.Lock()
		defer mu.Unlock()
		return append([]Status(nil), statuses...)
	}
}

type testDispatcher struct {
	*Dispatcher
	store     *MemoryStore
	clock     *fakeClock
	scheduler *recordingScheduler
}

func newTestDispatcher(config Config) *testDispatcher {
	store := NewMemoryStore()
	clock := newFakeClock()
	store.SetClock(clock.Now)

	d := NewDispatcher(store, config, testLogger())
	sched := &recordingScheduler{}
	d.SetScheduler(sched)
	d.SetClock(clock.Now)

	return &testDispatcher{Dispatcher: d, store: store, clock: clock, scheduler: sched}
}
