package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/redact"
)

// Config holds configuration for the dispatcher
type Config struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// MaxAttempts is the attempt ceiling; the attempt that reaches it is
	// the last one.
	MaxAttempts int

	// BackoffBase and BackoffFactor define the retry delay, see Backoff.
	BackoffBase   time.Duration
	BackoffFactor int

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered stuck and reset
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often the monitor looks for stuck
	// and due tasks. If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		WorkerCount:            2,
		QueueSize:              100,
		MaxAttempts:            3,
		BackoffBase:            5 * time.Minute,
		BackoffFactor:          4,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// FailureHook is called once after a record ends in the failed status.
type FailureHook func(ctx context.Context, rec *Record, err error)

// Dispatcher persists, queues and runs tasks, and owns their status
// transitions.
type Dispatcher struct {
	store      Store
	queue      *TaskQueue
	pool       *WorkerPool
	scheduler  Scheduler
	processors map[Type]Processor
	config     Config
	logger     *slog.Logger
	now        func() time.Time

	failureHook FailureHook

	inFlightMu sync.Mutex
	inFlight   map[uuid.UUID]struct{}

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewDispatcher creates a dispatcher. Processors must be registered before
// Start.
func NewDispatcher(store Store, config Config, logger *slog.Logger) *Dispatcher {
	def := DefaultConfig()
	if config.StuckTaskCheckInterval <= 0 {
		config.StuckTaskCheckInterval = def.StuckTaskCheckInterval
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = def.BackoffBase
	}
	if config.BackoffFactor <= 0 {
		config.BackoffFactor = def.BackoffFactor
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		store:      store,
		queue:      NewTaskQueue(config.QueueSize, logger),
		processors: make(map[Type]Processor),
		config:     config,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		inFlight:   make(map[uuid.UUID]struct{}),
		ctx:        ctx,
		cancelFunc: cancel,
	}
	d.scheduler = NewTimerScheduler(d.enqueueScheduled)
	d.pool = NewWorkerPool(d.queue, d.Process, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)
	return d
}

// Register binds a processor to a task type.
func (d *Dispatcher) Register(t Type, p Processor) {
	d.processors[t] = p
}

// SetFailureHook installs fn to be told about terminal failures.
func (d *Dispatcher) SetFailureHook(fn FailureHook) {
	d.failureHook = fn
}

// SetScheduler replaces the retry scheduler.
func (d *Dispatcher) SetScheduler(s Scheduler) {
	d.scheduler = s
}

// SetClock replaces the time source.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Submit stores a new pending record and queues it. If the queue is full
// the record stays pending for the monitor to pick up and the returned
// error wraps ErrQueueFull alongside a valid id. The store enforces the
// one-in-flight rule, so a concurrent duplicate interaction fails with
// ErrTaskInFlight and no id.
func (d *Dispatcher) Submit(ctx context.Context, t Type, input any, refs Refs) (uuid.UUID, error) {
	if _, ok := d.processors[t]; !ok {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode task input: %w", err)
	}

	now := d.now()
	rec := &Record{
		ID:        uuid.New(),
		Type:      t,
		Status:    StatusPending,
		InputData: raw,
		Refs:      refs,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Save the record first so it can be recovered whatever happens next
	if err := d.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrTaskInFlight) {
			return uuid.Nil, err
		}
		return uuid.Nil, fmt.Errorf("failed to save task: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info("task submitted", "task_id", rec.ID, "task_type", t)

	if err := d.queue.Enqueue(rec.ID); err != nil {
		log.Warn("task saved but not queued", "task_id", rec.ID, "task_type", t, "error", err)
		return rec.ID, err
	}
	return rec.ID, nil
}

// Status returns the externally visible state of a task.
func (d *Dispatcher) Status(ctx context.Context, id uuid.UUID) (*StatusView, error) {
	rec, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.View(), nil
}

// Get returns the full record.
func (d *Dispatcher) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return d.store.Get(ctx, id)
}

// EnsureNoInFlight returns ErrTaskInFlight if a pending or processing task
// of type t exists for the same user and lesson as refs. It is a fast path
// for handlers; Submit is where the rule is actually enforced.
func (d *Dispatcher) EnsureNoInFlight(ctx context.Context, t Type, refs Refs) error {
	recs, err := d.store.List(ctx, Filter{
		Types:    []Type{t},
		Statuses: []Status{StatusPending, StatusProcessing},
		UserID:   refs.UserID,
		LessonID: refs.LessonID,
		Limit:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to check in-flight tasks: %w", err)
	}
	if len(recs) > 0 {
		return fmt.Errorf("%w: task %s is %s", ErrTaskInFlight, recs[0].ID, recs[0].Status)
	}
	return nil
}

// Process runs one attempt of the task with the given id. Processor
// failures are recorded on the task and do not produce an error; the
// returned error reports a missing record or a store failure.
func (d *Dispatcher) Process(ctx context.Context, id uuid.UUID) error {
	if !d.acquire(id) {
		d.logger.Debug("task already being processed", "task_id", id)
		return nil
	}
	defer d.release(id)

	rec, err := d.store.Get(ctx, id)
	if err != nil {
		d.logger.Error("cannot load task for processing", "task_id", id, "error", err)
		return fmt.Errorf("failed to load task %s: %w", id, err)
	}

	now := d.now()
	if rec.Status != StatusPending {
		d.logger.Debug("skipping task that is not pending", "task_id", id, "status", rec.Status)
		return nil
	}
	if !rec.Due(now) {
		d.logger.Debug("task picked up before its retry time", "task_id", id, "next_attempt_at", rec.NextAttemptAt)
		d.scheduler.Schedule(id, *rec.NextAttemptAt)
		return nil
	}

	log := d.logger.With("task_id", rec.ID, "task_type", rec.Type)

	rec.Status = StatusProcessing
	rec.AttemptCount++
	rec.NextAttemptAt = nil
	if err := d.store.Update(ctx, rec); err != nil {
		log.Error("failed to update task status to processing", "error", err)
		return fmt.Errorf("failed to mark task %s processing: %w", id, err)
	}
	log = log.With("attempt", rec.AttemptCount)
	log.Info("processing task")

	proc, ok := d.processors[rec.Type]
	if !ok {
		return d.fail(ctx, log, rec, fmt.Errorf("%w: %q", ErrUnknownType, rec.Type))
	}

	result, procErr := d.run(logger.WithLogger(ctx, log), proc, rec)

	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			procErr = errors.Join(procErr, Permanentf("failed to encode task result: %w", err))
		} else {
			rec.ResultData = raw
		}
	}

	if procErr == nil {
		rec.Status = StatusCompleted
		rec.ErrorMessage = ""
		if err := d.store.Update(ctx, rec); err != nil {
			log.Error("failed to update task status to completed", "error", err)
			return fmt.Errorf("failed to mark task %s completed: %w", id, err)
		}
		log.Info("task completed successfully")
		return nil
	}

	if IsPermanent(procErr) || rec.AttemptCount >= d.config.MaxAttempts {
		return d.fail(ctx, log, rec, procErr)
	}
	return d.retry(ctx, log, rec, procErr)
}

// run calls the processor, turning a panic into a permanent failure.
func (d *Dispatcher) run(ctx context.Context, proc Processor, rec *Record) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("processor panicked", "panic", r, "stack", string(debug.Stack()))
			result = nil
			err = Permanentf("processor panicked: %v", r)
		}
	}()
	return proc.Process(ctx, rec.Clone())
}

func (d *Dispatcher) retry(ctx context.Context, log *slog.Logger, rec *Record, cause error) error {
	delay := Backoff(rec.AttemptCount, d.config.BackoffBase, d.config.BackoffFactor)
	next := d.now().Add(delay)

	rec.Status = StatusPending
	rec.ErrorMessage = redact.Error(cause)
	rec.NextAttemptAt = &next
	if err := d.store.Update(ctx, rec); err != nil {
		log.Error("failed to reschedule task", "error", err)
		return fmt.Errorf("failed to reschedule task %s: %w", rec.ID, err)
	}

	log.Warn("task attempt failed, retry scheduled",
		"error", cause,
		"max_attempts", d.config.MaxAttempts,
		"retry_in", delay)
	d.scheduler.Schedule(rec.ID, next)
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, rec *Record, cause error) error {
	rec.Status = StatusFailed
	rec.ErrorMessage = redact.Error(cause)
	rec.NextAttemptAt = nil
	if err := d.store.Update(ctx, rec); err != nil {
		log.Error("failed to update task status to failed", "error", err)
		return fmt.Errorf("failed to mark task %s failed: %w", rec.ID, err)
	}

	log.Error("task failed", "error", cause, "permanent", IsPermanent(cause))
	if d.failureHook != nil {
		d.failureHook(logger.WithLogger(ctx, log), rec.Clone(), cause)
	}
	return nil
}

func (d *Dispatcher) acquire(id uuid.UUID) bool {
	d.inFlightMu.Lock()
	defer d.inFlightMu.Unlock()
	if _, busy := d.inFlight[id]; busy {
		return false
	}
	d.inFlight[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id uuid.UUID) {
	d.inFlightMu.Lock()
	defer d.inFlightMu.Unlock()
	delete(d.inFlight, id)
}

func (d *Dispatcher) enqueueScheduled(id uuid.UUID) {
	if err := d.queue.Enqueue(id); err != nil {
		d.logger.Warn("could not queue task for retry, leaving it to the monitor",
			"task_id", id,
			"error", err)
	}
}

// Start recovers unfinished tasks and starts the workers and the monitor.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	d.pool.Start(ctx)

	d.wg.Add(1)
	go d.monitor()

	d.logger.Info("task dispatcher started",
		"worker_count", d.config.WorkerCount,
		"queue_size", d.queue.Cap(),
		"max_attempts", d.config.MaxAttempts)
	return nil
}

// Stop gracefully shuts down the dispatcher. Tasks already running finish
// first; queued ids are dropped and recovered on the next Start.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.cancelFunc()
		d.wg.Wait()
		d.scheduler.Stop()
		d.pool.Stop()
		d.queue.Close()
		d.logger.Info("task dispatcher stopped")
	})
}

// Recover queues pending tasks that are due, re-arms retries that are not,
// and resets tasks stuck in processing.
func (d *Dispatcher) Recover(ctx context.Context) error {
	now := d.now()

	pending, err := d.store.List(ctx, Filter{Statuses: []Status{StatusPending}})
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	stuck, err := d.resetStuck(ctx, now)
	if err != nil {
		return err
	}

	d.logger.Info("recovering unfinished tasks",
		"pending_count", len(pending),
		"stuck_count", stuck)

	// Oldest first so earlier submissions run earlier
	for i := len(pending) - 1; i >= 0; i-- {
		rec := pending[i]
		if !rec.Due(now) {
			d.scheduler.Schedule(rec.ID, *rec.NextAttemptAt)
			continue
		}
		if err := d.queue.Enqueue(rec.ID); err != nil {
			d.logger.Error("failed to requeue pending task",
				"task_id", rec.ID,
				"task_type", rec.Type,
				"error", err)
		}
	}
	return nil
}

// resetStuck moves processing tasks older than StuckTaskAge back to pending
// and queues them. It returns how many were reset.
func (d *Dispatcher) resetStuck(ctx context.Context, now time.Time) (int, error) {
	stuck, err := d.store.List(ctx, Filter{
		Statuses:      []Status{StatusProcessing},
		UpdatedBefore: now.Add(-d.config.StuckTaskAge),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get processing tasks: %w", err)
	}

	reset := 0
	for _, rec := range stuck {
		rec.Status = StatusPending
		rec.ErrorMessage = "reset after being stuck in processing state"
		rec.NextAttemptAt = nil
		if err := d.store.Update(ctx, rec); err != nil {
			d.logger.Error("failed to reset stuck task status",
				"task_id", rec.ID,
				"task_type", rec.Type,
				"error", err)
			continue
		}
		reset++
		if err := d.queue.Enqueue(rec.ID); err != nil {
			d.logger.Error("failed to requeue stuck task",
				"task_id", rec.ID,
				"task_type", rec.Type,
				"error", err)
		}
	}
	return reset, nil
}

// monitor periodically resets stuck tasks and queues pending tasks whose
// retry time has passed, covering retries requested by other processes and
// submissions that found the queue full.
func (d *Dispatcher) monitor() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.sweep(context.Background())
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context) {
	now := d.now()

	if n, err := d.resetStuck(ctx, now); err != nil {
		d.logger.Error("failed to check for stuck tasks", "error", err)
	} else if n > 0 {
		d.logger.Info("reset stuck tasks", "count", n)
	}

	due, err := d.store.List(ctx, Filter{
		Statuses:      []Status{StatusPending},
		DueBefore:     now,
		UpdatedBefore: now.Add(-d.config.StuckTaskCheckInterval),
	})
	if err != nil {
		d.logger.Error("failed to check for due tasks", "error", err)
		return
	}
	for i := len(due) - 1; i >= 0; i-- {
		if err := d.queue.Enqueue(due[i].ID); err != nil {
			d.logger.Warn("failed to queue due task", "task_id", due[i].ID, "error", err)
			return
		}
	}
}

// QueueStats summarizes the task backlog.
type QueueStats struct {
	Counts        map[Status]int `json:"counts"`
	Queued        int            `json:"queued"`
	QueueCapacity int            `json:"queue_capacity"`
}

// Stats returns record counts by status and the in-memory queue depth.
func (d *Dispatcher) Stats(ctx context.Context) (*QueueStats, error) {
	counts, err := d.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	return &QueueStats{
		Counts:        counts,
		Queued:        d.queue.Len(),
		QueueCapacity: d.queue.Cap(),
	}, nil
}
