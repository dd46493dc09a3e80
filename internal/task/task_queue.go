package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Common errors returned by the TaskQueue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// TaskQueueReader provides read-only access to queued task ids.
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming task ids
	GetChannel() <-chan uuid.UUID
}

// TaskQueueWriter provides write access to the task queue.
type TaskQueueWriter interface {
	// Enqueue adds a task id to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(id uuid.UUID) error

	// Close closes the task queue, preventing further task submission
	Close()
}

// TaskQueue is a bounded in-memory queue of task ids. Records themselves
// stay in the Store; workers load them by id.
type TaskQueue struct {
	mu     sync.RWMutex
	ids    chan uuid.UUID
	logger *slog.Logger
	closed bool
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size <= 0 {
		size = 1
	}
	return &TaskQueue{
		ids:    make(chan uuid.UUID, size),
		logger: logger,
	}
}

// Enqueue adds a task id to the queue without blocking.
func (q *TaskQueue) Enqueue(id uuid.UUID) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ids <- id:
		q.logger.Debug("task enqueued",
			"task_id", id,
			"queue_len", len(q.ids),
			"queue_cap", cap(q.ids))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.ids))
	}
}

// Close closes the task queue, preventing further task submission
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ids)
		q.logger.Info("task queue closed")
	}
}

// GetChannel returns a read-only channel for consuming task ids
func (q *TaskQueue) GetChannel() <-chan uuid.UUID {
	return q.ids
}

// Len returns the number of queued ids.
func (q *TaskQueue) Len() int {
	return len(q.ids)
}

// Cap returns the queue capacity.
func (q *TaskQueue) Cap() int {
	return cap(q.ids)
}
