package domain

import (
	"time"

	"github.com/google/uuid"
)

// LessonContentStatus tracks generation of a lesson's exposition.
type LessonContentStatus string

// Possible lesson content status values
const (
	LessonContentGenerating LessonContentStatus = "generating"
	LessonContentCompleted  LessonContentStatus = "completed"
	LessonContentFailed     LessonContentStatus = "failed"
)

// LessonContent is the generated exposition for a lesson.
type LessonContent struct {
	ID         uuid.UUID           `json:"id"`
	LessonID   uuid.UUID           `json:"lesson_id"`
	Status     LessonContentStatus `json:"status"`
	Exposition string              `json:"exposition"`
	// Error holds the reason generation failed.
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LessonContext is a lesson together with the syllabus facts prompts need.
type LessonContext struct {
	Lesson      Lesson     `json:"lesson"`
	ModuleTitle string     `json:"module_title"`
	SyllabusID  uuid.UUID  `json:"syllabus_id"`
	Topic       string     `json:"topic"`
	Level       Difficulty `json:"level"`
}
