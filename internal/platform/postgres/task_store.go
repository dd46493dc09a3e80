package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/store"
	"github.com/phrazzld/techtree-api/internal/task"
)

// interactionInFlightIndex is the partial unique index that allows one
// pending or processing lesson interaction per user and lesson.
const interactionInFlightIndex = "idx_tasks_interaction_in_flight"

const taskColumns = `id, task_type, status, input_data, result_data, error_message, attempt_count,
	syllabus_id, lesson_id, user_id, next_attempt_at, created_at, updated_at`

// TaskStore implements task.Store on the tasks table.
type TaskStore struct {
	db     store.DBTX
	logger *slog.Logger
	now    func() time.Time
}

var _ task.Store = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore. A nil logger falls back to slog.Default.
func NewTaskStore(db store.DBTX, logger *slog.Logger) *TaskStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts rec, stamping CreatedAt when unset and UpdatedAt always.
func (s *TaskStore) Create(ctx context.Context, rec *task.Record) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Type),
		string(rec.Status),
		nullJSON(rec.InputData),
		nullJSON(rec.ResultData),
		nullString(rec.ErrorMessage),
		rec.AttemptCount,
		nullUUID(rec.SyllabusID),
		nullUUID(rec.LessonID),
		nullUUID(rec.UserID),
		nullTime(rec.NextAttemptAt),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if IsConstraintViolation(err, interactionInFlightIndex) {
		log.Info("interaction already in flight",
			slog.String("task_id", rec.ID.String()))
		return fmt.Errorf("%w: %v", task.ErrTaskInFlight, err)
	}
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", rec.ID.String()),
			slog.String("task_type", string(rec.Type)))
		return fmt.Errorf("failed to create task: %w", MapError(err))
	}

	log.Debug("task created",
		slog.String("task_id", rec.ID.String()),
		slog.String("task_type", string(rec.Type)))
	return nil
}

// Get returns the record with id or store.ErrTaskNotFound.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*task.Record, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	rec, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	return rec, nil
}

// Update overwrites every mutable column of rec and sets UpdatedAt.
func (s *TaskStore) Update(ctx context.Context, rec *task.Record) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rec.UpdatedAt = s.now()

	query := `
		UPDATE tasks
		SET status = $2, input_data = $3, result_data = $4, error_message = $5,
			attempt_count = $6, next_attempt_at = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Status),
		nullJSON(rec.InputData),
		nullJSON(rec.ResultData),
		nullString(rec.ErrorMessage),
		rec.AttemptCount,
		nullTime(rec.NextAttemptAt),
		rec.UpdatedAt,
	)
	if IsConstraintViolation(err, interactionInFlightIndex) {
		log.Info("interaction already in flight",
			slog.String("task_id", rec.ID.String()),
			slog.String("status", string(rec.Status)))
		return fmt.Errorf("%w: %v", task.ErrTaskInFlight, err)
	}
	if err != nil {
		log.Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", rec.ID.String()),
			slog.String("status", string(rec.Status)))
		return fmt.Errorf("failed to update task: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// List returns records matching f, newest first.
func (s *TaskStore) List(ctx context.Context, f task.Filter) ([]*task.Record, error) {
	where, args := taskConditions(f)

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list tasks",
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []*task.Record
	for rows.Next() {
		rec, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return records, nil
}

// CountByStatus returns the number of records per status.
func (s *TaskStore) CountByStatus(ctx context.Context) (map[task.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[task.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[task.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task counts: %w", err)
	}
	return counts, nil
}

// taskConditions translates f into SQL predicates with positional args.
func taskConditions(f task.Filter) ([]string, []any) {
	var where []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	in := func(column string, values []string) {
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = arg(v)
		}
		where = append(where, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	}

	if len(f.Types) > 0 {
		values := make([]string, len(f.Types))
		for i, t := range f.Types {
			values[i] = string(t)
		}
		in("task_type", values)
	}
	if len(f.Statuses) > 0 {
		values := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			values[i] = string(st)
		}
		in("status", values)
	}
	if f.SyllabusID != nil {
		where = append(where, "syllabus_id = "+arg(*f.SyllabusID))
	}
	if f.LessonID != nil {
		where = append(where, "lesson_id = "+arg(*f.LessonID))
	}
	if f.UserID != nil {
		where = append(where, "user_id = "+arg(*f.UserID))
	}
	if !f.UpdatedBefore.IsZero() {
		where = append(where, "updated_at < "+arg(f.UpdatedBefore))
	}
	if !f.DueBefore.IsZero() {
		where = append(where, "(next_attempt_at IS NULL OR next_attempt_at <= "+arg(f.DueBefore)+")")
	}
	return where, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Record, error) {
	var (
		rec          task.Record
		taskType     string
		status       string
		input        []byte
		result       []byte
		errorMessage sql.NullString
		syllabusID   uuid.NullUUID
		lessonID     uuid.NullUUID
		userID       uuid.NullUUID
		nextAttempt  sql.NullTime
	)

	err := row.Scan(
		&rec.ID,
		&taskType,
		&status,
		&input,
		&result,
		&errorMessage,
		&rec.AttemptCount,
		&syllabusID,
		&lessonID,
		&userID,
		&nextAttempt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Type = task.Type(taskType)
	rec.Status = task.Status(status)
	if len(input) > 0 {
		rec.InputData = json.RawMessage(input)
	}
	if len(result) > 0 {
		rec.ResultData = json.RawMessage(result)
	}
	rec.ErrorMessage = errorMessage.String
	rec.SyllabusID = uuidPtr(syllabusID)
	rec.LessonID = uuidPtr(lessonID)
	rec.UserID = uuidPtr(userID)
	if nextAttempt.Valid {
		t := nextAttempt.Time.UTC()
		rec.NextAttemptAt = &t
	}
	return &rec, nil
}
