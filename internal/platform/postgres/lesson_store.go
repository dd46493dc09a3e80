package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/store"
)

// LessonStore implements store.LessonStore.
type LessonStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.LessonStore = (*LessonStore)(nil)

// NewLessonStore creates a LessonStore. A nil logger falls back to slog.Default.
func NewLessonStore(db store.DBTX, logger *slog.Logger) *LessonStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LessonStore{db: db, logger: logger.With(slog.String("component", "lesson_store"))}
}

// GetLessonContext returns the lesson joined with its module and syllabus.
func (s *LessonStore) GetLessonContext(ctx context.Context, lessonID uuid.UUID) (*domain.LessonContext, error) {
	query := `
		SELECT l.id, l.module_id, l.lesson_index, l.title, l.summary, l.duration_minutes,
			m.title, s.id, s.topic, s.level
		FROM lessons l
		JOIN modules m ON m.id = l.module_id
		JOIN syllabi s ON s.id = m.syllabus_id
		WHERE l.id = $1
	`

	var lc domain.LessonContext
	var level string
	err := s.db.QueryRowContext(ctx, query, lessonID).Scan(
		&lc.Lesson.ID,
		&lc.Lesson.ModuleID,
		&lc.Lesson.Index,
		&lc.Lesson.Title,
		&lc.Lesson.Summary,
		&lc.Lesson.Duration,
		&lc.ModuleTitle,
		&lc.SyllabusID,
		&lc.Topic,
		&level,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrLessonNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get lesson",
			slog.String("error", err.Error()),
			slog.String("lesson_id", lessonID.String()))
		return nil, fmt.Errorf("failed to get lesson: %w", MapError(err))
	}
	lc.Level = domain.Difficulty(level)
	return &lc, nil
}

// GetCompletedContent returns the lesson's content when it is completed, or
// nil when there is none.
func (s *LessonStore) GetCompletedContent(ctx context.Context, lessonID uuid.UUID) (*domain.LessonContent, error) {
	query := `
		SELECT id, lesson_id, status, exposition, error_message, created_at, updated_at
		FROM lesson_contents
		WHERE lesson_id = $1 AND status = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var c domain.LessonContent
	var status string
	var errMsg sql.NullString
	err := s.db.QueryRowContext(ctx, query, lessonID, string(domain.LessonContentCompleted)).Scan(
		&c.ID,
		&c.LessonID,
		&status,
		&c.Exposition,
		&errMsg,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lesson content: %w", MapError(err))
	}
	c.Status = domain.LessonContentStatus(status)
	c.Error = errMsg.String
	return &c, nil
}

// SaveContent upserts the single content row of the lesson.
func (s *LessonStore) SaveContent(ctx context.Context, content *domain.LessonContent) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if content.ID == uuid.Nil {
		content.ID = uuid.New()
	}
	now := time.Now().UTC()
	if content.CreatedAt.IsZero() {
		content.CreatedAt = now
	}
	content.UpdatedAt = now

	query := `
		INSERT INTO lesson_contents (id, lesson_id, status, exposition, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (lesson_id) DO UPDATE
		SET status = EXCLUDED.status,
			exposition = EXCLUDED.exposition,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		content.ID,
		content.LessonID,
		string(content.Status),
		content.Exposition,
		nullString(content.Error),
		content.CreatedAt,
		content.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to save lesson content",
			slog.String("error", err.Error()),
			slog.String("lesson_id", content.LessonID.String()),
			slog.String("status", string(content.Status)))
		return fmt.Errorf("failed to save lesson content: %w", MapError(err))
	}
	return nil
}
