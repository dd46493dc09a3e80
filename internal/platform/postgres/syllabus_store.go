package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/store"
)

// SyllabusStore implements store.SyllabusStore. It needs a *sql.DB because
// a syllabus and its outline are written in one transaction.
type SyllabusStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.SyllabusStore = (*SyllabusStore)(nil)

// NewSyllabusStore creates a SyllabusStore. A nil logger falls back to slog.Default.
func NewSyllabusStore(db *sql.DB, logger *slog.Logger) *SyllabusStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyllabusStore{db: db, logger: logger.With(slog.String("component", "syllabus_store"))}
}

// CreateSyllabus inserts the syllabus, its modules and its lessons.
func (s *SyllabusStore) CreateSyllabus(ctx context.Context, syl *domain.Syllabus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := syl.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO syllabi (id, user_id, topic, level, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			syl.ID, nullUUID(syl.UserID), syl.Topic, string(syl.Level), syl.CreatedAt, syl.UpdatedAt)
		if err != nil {
			return MapError(err)
		}

		for _, m := range syl.Modules {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO modules (id, syllabus_id, module_index, title, summary)
				VALUES ($1, $2, $3, $4, $5)`,
				m.ID, syl.ID, m.Index, m.Title, m.Summary)
			if err != nil {
				return MapError(err)
			}
			for _, l := range m.Lessons {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO lessons (id, module_id, lesson_index, title, summary, duration_minutes)
					VALUES ($1, $2, $3, $4, $5, $6)`,
					l.ID, m.ID, l.Index, l.Title, l.Summary, l.Duration)
				if err != nil {
					return MapError(err)
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to create syllabus",
			slog.String("error", err.Error()),
			slog.String("syllabus_id", syl.ID.String()),
			slog.String("topic", syl.Topic))
		return fmt.Errorf("failed to create syllabus: %w", err)
	}

	log.Info("syllabus created",
		slog.String("syllabus_id", syl.ID.String()),
		slog.Int("modules", len(syl.Modules)))
	return nil
}

// GetSyllabus loads the syllabus and its outline in index order.
func (s *SyllabusStore) GetSyllabus(ctx context.Context, id uuid.UUID) (*domain.Syllabus, error) {
	var syl domain.Syllabus
	var userID uuid.NullUUID
	var level string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, topic, level, created_at, updated_at
		FROM syllabi WHERE id = $1`, id).
		Scan(&syl.ID, &userID, &syl.Topic, &level, &syl.CreatedAt, &syl.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSyllabusNotFound
		}
		return nil, fmt.Errorf("failed to get syllabus: %w", MapError(err))
	}
	syl.UserID = uuidPtr(userID)
	syl.Level = domain.Difficulty(level)

	if err := s.loadOutline(ctx, &syl); err != nil {
		return nil, err
	}
	return &syl, nil
}

// FindSyllabus returns the newest syllabus for the user, topic and level.
// Topic matching ignores case.
func (s *SyllabusStore) FindSyllabus(ctx context.Context, userID *uuid.UUID, topic string, level domain.Difficulty) (*domain.Syllabus, error) {
	query := `
		SELECT id FROM syllabi
		WHERE LOWER(topic) = LOWER($1) AND level = $2 AND user_id IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`
	args := []any{topic, string(level)}
	if userID != nil {
		query = `
			SELECT id FROM syllabi
			WHERE LOWER(topic) = LOWER($1) AND level = $2 AND user_id = $3
			ORDER BY created_at DESC
			LIMIT 1
		`
		args = append(args, *userID)
	}

	var id uuid.UUID
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSyllabusNotFound
		}
		return nil, fmt.Errorf("failed to find syllabus: %w", MapError(err))
	}
	return s.GetSyllabus(ctx, id)
}

func (s *SyllabusStore) loadOutline(ctx context.Context, syl *domain.Syllabus) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.module_index, m.title, m.summary,
			l.id, l.lesson_index, l.title, l.summary, l.duration_minutes
		FROM modules m
		LEFT JOIN lessons l ON l.module_id = m.id
		WHERE m.syllabus_id = $1
		ORDER BY m.module_index, l.lesson_index`, syl.ID)
	if err != nil {
		return fmt.Errorf("failed to load syllabus outline: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			m        domain.Module
			lessonID uuid.NullUUID
			index    sql.NullInt32
			title    sql.NullString
			summary  sql.NullString
			duration sql.NullInt32
		)
		if err := rows.Scan(&m.ID, &m.Index, &m.Title, &m.Summary,
			&lessonID, &index, &title, &summary, &duration); err != nil {
			return fmt.Errorf("failed to scan syllabus outline: %w", err)
		}

		if n := len(syl.Modules); n == 0 || syl.Modules[n-1].ID != m.ID {
			m.SyllabusID = syl.ID
			syl.Modules = append(syl.Modules, m)
		}
		if lessonID.Valid {
			last := &syl.Modules[len(syl.Modules)-1]
			last.Lessons = append(last.Lessons, domain.Lesson{
				ID:       lessonID.UUID,
				ModuleID: m.ID,
				Index:    int(index.Int32),
				Title:    title.String,
				Summary:  summary.String,
				Duration: int(duration.Int32),
			})
		}
	}
	return rows.Err()
}
