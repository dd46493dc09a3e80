package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Syllabus is a generated course outline for one topic at one level.
type Syllabus struct {
	ID        uuid.UUID  `json:"id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Topic     string     `json:"topic"`
	Level     Difficulty `json:"level"`
	Modules   []Module   `json:"modules"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Module groups lessons inside a syllabus.
type Module struct {
	ID         uuid.UUID `json:"id"`
	SyllabusID uuid.UUID `json:"syllabus_id"`
	Index      int       `json:"module_index"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	Lessons    []Lesson  `json:"lessons"`
}

// Lesson is the unit a user studies and is quizzed on.
type Lesson struct {
	ID       uuid.UUID `json:"id"`
	ModuleID uuid.UUID `json:"module_id"`
	Index    int       `json:"lesson_index"`
	Title    string    `json:"title"`
	Summary  string    `json:"summary"`
	Duration int       `json:"duration_minutes"`
}

// NewSyllabus builds a syllabus with fresh ids for itself and every module
// and lesson, assigning indexes in the given order.
func NewSyllabus(userID *uuid.UUID, topic string, level Difficulty, modules []Module) (*Syllabus, error) {
	now := time.Now().UTC()
	s := &Syllabus{
		ID:        uuid.New(),
		UserID:    userID,
		Topic:     strings.TrimSpace(topic),
		Level:     level,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for i, m := range modules {
		m.ID = uuid.New()
		m.SyllabusID = s.ID
		m.Index = i
		lessons := make([]Lesson, len(m.Lessons))
		for j, l := range m.Lessons {
			l.ID = uuid.New()
			l.ModuleID = m.ID
			l.Index = j
			lessons[j] = l
		}
		m.Lessons = lessons
		s.Modules = append(s.Modules, m)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the syllabus has a topic, a known level and at least one
// lesson.
func (s *Syllabus) Validate() error {
	if s.Topic == "" {
		return fmt.Errorf("%w: syllabus topic is empty", ErrValidation)
	}
	if !s.Level.Valid() {
		return fmt.Errorf("%w: syllabus level %q", ErrValidation, s.Level)
	}
	if s.FirstLesson() == nil {
		return fmt.Errorf("%w: syllabus has no lessons", ErrValidation)
	}
	for _, m := range s.Modules {
		if strings.TrimSpace(m.Title) == "" {
			return fmt.Errorf("%w: module %d has no title", ErrValidation, m.Index)
		}
	}
	return nil
}

// FirstLesson returns lesson 0 of module 0, or nil.
func (s *Syllabus) FirstLesson() *Lesson {
	if len(s.Modules) == 0 || len(s.Modules[0].Lessons) == 0 {
		return nil
	}
	return &s.Modules[0].Lessons[0]
}
