package task

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler arranges for a task id to be handed back at a later time.
type Scheduler interface {
	Schedule(id uuid.UUID, at time.Time)
	Stop()
}

// TimerScheduler fires a callback for each scheduled id using one timer per
// id. Scheduling an id again replaces its timer. Timers do not survive a
// restart; the dispatcher re-arms pending records on Start.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[uuid.UUID]*time.Timer
	fire    func(id uuid.UUID)
	now     func() time.Time
	stopped bool
}

// NewTimerScheduler creates a scheduler that calls fire when a timer expires.
func NewTimerScheduler(fire func(id uuid.UUID)) *TimerScheduler {
	return &TimerScheduler{
		timers: make(map[uuid.UUID]*time.Timer),
		fire:   fire,
		now:    time.Now,
	}
}

// Schedule arms a timer for id at the given time. Past times fire immediately.
func (s *TimerScheduler) Schedule(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}

	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			s.fire(id)
		}
	})
}

// Pending returns the number of armed timers.
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every armed timer.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
