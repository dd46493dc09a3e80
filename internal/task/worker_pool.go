package task

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// HandlerFunc processes one queued task id.
type HandlerFunc func(ctx context.Context, id uuid.UUID) error

// WorkerPool manages a pool of worker goroutines that process task ids
// from a task queue. It handles graceful shutdown and worker lifecycle.
type WorkerPool struct {
	// taskQueue provides read access to the ids to be processed
	taskQueue TaskQueueReader

	// workerCount is the number of concurrent workers to start
	workerCount int

	handler HandlerFunc

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx context.Context

	// cancel is the function to call to cancel the context
	cancel context.CancelFunc

	logger *slog.Logger

	// errorHandler is called when the handler returns an error
	// If nil, errors are only logged
	errorHandler func(id uuid.UUID, err error)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 2,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(
	taskQueue TaskQueueReader,
	handler HandlerFunc,
	config WorkerPoolConfig,
	logger *slog.Logger,
) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		taskQueue:   taskQueue,
		workerCount: workerCount,
		handler:     handler,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// SetErrorHandler allows setting a custom error handler for handler failures
func (p *WorkerPool) SetErrorHandler(handler func(id uuid.UUID, err error)) {
	p.errorHandler = handler
}

// Start launches the workers. base supplies request-scoped values to the
// handler; its cancellation is ignored so that a task in progress finishes
// during shutdown.
func (p *WorkerPool) Start(base context.Context) {
	taskCtx := context.WithoutCancel(base)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(taskCtx, i)
	}
	p.logger.Info("worker pool started", "worker_count", p.workerCount)
}

// Stop signals the workers to exit and waits for running tasks to finish.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) worker(taskCtx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case taskID, ok := <-p.taskQueue.GetChannel():
			if !ok {
				p.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}

			if err := p.handler(taskCtx, taskID); err != nil {
				p.logger.Error("task handler failed",
					"task_id", taskID,
					"worker_id", id,
					"error", err)
				if p.errorHandler != nil {
					p.errorHandler(taskID, err)
				}
			}
		}
	}
}
