package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
)

// LessonStore provides lesson lookups and generated lesson content.
type LessonStore interface {
	// GetLessonContext returns the lesson with its syllabus topic and level.
	// Returns ErrLessonNotFound if the lesson does not exist.
	GetLessonContext(ctx context.Context, lessonID uuid.UUID) (*domain.LessonContext, error)

	// GetCompletedContent returns the most recent completed content for the
	// lesson, or nil when there is none.
	GetCompletedContent(ctx context.Context, lessonID uuid.UUID) (*domain.LessonContent, error)

	// SaveContent inserts or replaces the content row for content.LessonID.
	SaveContent(ctx context.Context, content *domain.LessonContent) error
}

// SyllabusStore persists generated syllabi with their modules and lessons.
type SyllabusStore interface {
	// CreateSyllabus stores the syllabus and its whole outline atomically.
	CreateSyllabus(ctx context.Context, s *domain.Syllabus) error

	// GetSyllabus returns the syllabus with modules and lessons in index order.
	// Returns ErrSyllabusNotFound if it does not exist.
	GetSyllabus(ctx context.Context, id uuid.UUID) (*domain.Syllabus, error)

	// FindSyllabus returns the user's latest syllabus for topic and level.
	// Returns ErrSyllabusNotFound when none exists.
	FindSyllabus(ctx context.Context, userID *uuid.UUID, topic string, level domain.Difficulty) (*domain.Syllabus, error)
}
