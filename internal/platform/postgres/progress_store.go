package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/store"
)

// ProgressStore implements store.ProgressStore on user_progress and
// conversation_messages.
type ProgressStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.ProgressStore = (*ProgressStore)(nil)

// NewProgressStore creates a ProgressStore. A nil logger falls back to slog.Default.
func NewProgressStore(db store.DBTX, logger *slog.Logger) *ProgressStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressStore{db: db, logger: logger.With(slog.String("component", "progress_store"))}
}

// GetState returns the stored interaction state, or nil for an empty slot.
func (s *ProgressStore) GetState(ctx context.Context, userID, lessonID uuid.UUID) (json.RawMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT lesson_state FROM user_progress
		WHERE user_id = $1 AND lesson_id = $2`, userID, lessonID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lesson state: %w", MapError(err))
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// SaveState replaces the slot's content.
func (s *ProgressStore) SaveState(ctx context.Context, userID, lessonID uuid.UUID, state json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_progress (user_id, lesson_id, lesson_state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, lesson_id) DO UPDATE
		SET lesson_state = EXCLUDED.lesson_state, updated_at = EXCLUDED.updated_at`,
		userID, lessonID, nullJSON(state), time.Now().UTC())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to save lesson state",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()),
			slog.String("lesson_id", lessonID.String()))
		return fmt.Errorf("failed to save lesson state: %w", MapError(err))
	}
	return nil
}

// AppendMessage inserts one chat turn.
func (s *ProgressStore) AppendMessage(ctx context.Context, msg *domain.ConversationMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, user_id, lesson_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.UserID, msg.LessonID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append conversation message: %w", MapError(err))
	}
	return nil
}

// RecentMessages returns up to limit latest turns, oldest first.
func (s *ProgressStore) RecentMessages(ctx context.Context, userID, lessonID uuid.UUID, limit int) ([]domain.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, lesson_id, role, content, created_at
		FROM conversation_messages
		WHERE user_id = $1 AND lesson_id = $2
		ORDER BY created_at DESC
		LIMIT $3`, userID, lessonID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var msgs []domain.ConversationMessage
	for rows.Next() {
		var m domain.ConversationMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.LessonID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}

	slices.Reverse(msgs)
	return msgs, nil
}
