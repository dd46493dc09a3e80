package task

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTimerScheduler_Fires(t *testing.T) {
	t.Parallel()

	fired := make(chan uuid.UUID, 1)
	s := NewTimerScheduler(func(id uuid.UUID) { fired <- id })
	defer s.Stop()

	id := uuid.New()
	s.Schedule(id, time.Now().Add(5*time.Millisecond))

	select {
	case got := <-fired:
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, time.Millisecond)
}

func TestTimerScheduler_RescheduleReplaces(t *testing.T) {
	t.Parallel()

	s := NewTimerScheduler(func(uuid.UUID) {})
	defer s.Stop()

	id := uuid.New()
	s.Schedule(id, time.Now().Add(time.Hour))
	s.Schedule(id, time.Now().Add(2*time.Hour))

	assert.Equal(t, 1, s.Pending())
}

func TestTimerScheduler_StopCancels(t *testing.T) {
	t.Parallel()

	fired := make(chan uuid.UUID, 1)
	s := NewTimerScheduler(func(id uuid.UUID) { fired <- id })

	s.Schedule(uuid.New(), time.Now().Add(20*time.Millisecond))
	s.Stop()
	s.Schedule(uuid.New(), time.Now())

	select {
	case <-fired:
		t.Fatal("stopped scheduler fired")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Zero(t, s.Pending())
}
