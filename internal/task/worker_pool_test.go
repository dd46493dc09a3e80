package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_ProcessesIDs(t *testing.T) {
	t.Parallel()

	q := NewTaskQueue(10, testLogger())
	var mu sync.Mutex
	seen := make(map[uuid.UUID]bool)
	handler := func(_ context.Context, id uuid.UUID) error {
		mu.Lock()
		defer mu.Unlock()
		seen[id] = true
		return nil
	}

	pool := NewWorkerPool(q, handler, WorkerPoolConfig{WorkerCount: 3}, testLogger())
	pool.Start(context.Background())
	defer pool.Stop()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(id))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(ids)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerPool_ErrorHandler(t *testing.T) {
	t.Parallel()

	q := NewTaskQueue(1, testLogger())
	failures := make(chan uuid.UUID, 1)
	pool := NewWorkerPool(q, func(context.Context, uuid.UUID) error {
		return errors.New("store unavailable")
	}, DefaultWorkerPoolConfig(), testLogger())
	pool.SetErrorHandler(func(id uuid.UUID, err error) {
		assert.EqualError(t, err, "store unavailable")
		failures <- id
	})
	pool.Start(context.Background())
	defer pool.Stop()

	id := uuid.New()
	require.NoError(t, q.Enqueue(id))

	select {
	case got := <-failures:
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("error handler was not called")
	}
}

func TestWorkerPool_HandlerContextOutlivesCaller(t *testing.T) {
	t.Parallel()

	q := NewTaskQueue(1, testLogger())
	errs := make(chan error, 1)
	pool := NewWorkerPool(q, func(ctx context.Context, _ uuid.UUID) error {
		errs <- ctx.Err()
		return nil
	}, WorkerPoolConfig{WorkerCount: 0}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	cancel()
	defer pool.Stop()

	require.NoError(t, q.Enqueue(uuid.New()))
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}
}
