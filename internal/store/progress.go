package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
)

// ProgressStore holds per-(user, lesson) learner state: the interaction
// state slot and the lesson chat history.
type ProgressStore interface {
	// GetState returns the stored state blob, or nil when the slot is empty.
	GetState(ctx context.Context, userID, lessonID uuid.UUID) (json.RawMessage, error)

	// SaveState overwrites the slot with state in full.
	SaveState(ctx context.Context, userID, lessonID uuid.UUID, state json.RawMessage) error

	// AppendMessage records one chat turn.
	AppendMessage(ctx context.Context, msg *domain.ConversationMessage) error

	// RecentMessages returns up to limit of the latest chat turns, oldest first.
	RecentMessages(ctx context.Context, userID, lessonID uuid.UUID, limit int) ([]domain.ConversationMessage, error)
}
