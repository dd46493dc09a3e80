package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/llm"
	"github.com/phrazzld/techtree-api/internal/store"
	"github.com/phrazzld/techtree-api/internal/task"
)

// Submitter creates follow-up tasks.
type Submitter interface {
	Submit(ctx context.Context, t task.Type, input any, refs task.Refs) (uuid.UUID, error)
}

// SyllabusInput is the input_data of a syllabus_generation task.
type SyllabusInput struct {
	Topic          string `json:"topic"`
	KnowledgeLevel string `json:"knowledge_level"`
}

// SyllabusResult is the result of a syllabus_generation task.
type SyllabusResult struct {
	Syllabus       *domain.Syllabus `json:"syllabus"`
	SyllabusID     uuid.UUID        `json:"syllabus_id"`
	Topic          string           `json:"topic"`
	KnowledgeLevel string           `json:"knowledge_level"`
	// Existing is true when a stored syllabus was reused.
	Existing bool `json:"existing"`
	// ContentTaskID is the lesson_content task started for the first lesson.
	ContentTaskID *uuid.UUID `json:"content_task_id,omitempty"`
}

var syllabusSchema = &llm.Schema{
	Name:        "syllabus",
	Description: "A course outline of modules and lessons",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"modules": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":   map[string]any{"type": "string"},
						"summary": map[string]any{"type": "string"},
						"lessons": map[string]any{
							"type":     "array",
							"minItems": 1,
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"title":            map[string]any{"type": "string"},
									"summary":          map[string]any{"type": "string"},
									"duration_minutes": map[string]any{"type": "integer"},
								},
								"required": []string{"title", "summary"},
							},
						},
					},
					"required": []string{"title", "lessons"},
				},
			},
		},
		"required": []string{"modules"},
	},
}

type syllabusOutline struct {
	Modules []struct {
		Title   string `json:"title"`
		Summary string `json:"summary"`
		Lessons []struct {
			Title    string `json:"title"`
			Summary  string `json:"summary"`
			Duration int    `json:"duration_minutes"`
		} `json:"lessons"`
	} `json:"modules"`
}

// Syllabus processes syllabus_generation tasks.
type Syllabus struct {
	syllabi   store.SyllabusStore
	lessons   store.LessonStore
	provider  llm.Provider
	submitter Submitter
	logger    *slog.Logger
}

// NewSyllabus creates the syllabus generation processor.
func NewSyllabus(
	syllabi store.SyllabusStore,
	lessons store.LessonStore,
	provider llm.Provider,
	submitter Submitter,
	logger *slog.Logger,
) (*Syllabus, error) {
	if syllabi == nil || lessons == nil {
		return nil, ErrNilStore
	}
	if provider == nil {
		return nil, ErrNilProvider
	}
	if submitter == nil {
		return nil, ErrNilSubmitter
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &Syllabus{
		syllabi:   syllabi,
		lessons:   lessons,
		provider:  provider,
		submitter: submitter,
		logger:    logger.With("processor", task.TypeSyllabusGeneration),
	}, nil
}

// Process implements task.Processor.
func (p *Syllabus) Process(ctx context.Context, rec *task.Record) (any, error) {
	var in SyllabusInput
	if err := rec.DecodeInput(&in); err != nil {
		return nil, task.Permanentf("%w: %w", ErrInvalidInput, err)
	}
	topic := strings.TrimSpace(in.Topic)
	if topic == "" || strings.TrimSpace(in.KnowledgeLevel) == "" {
		return nil, task.Permanentf("%w: topic and knowledge_level are required", ErrInvalidInput)
	}
	level, err := domain.ParseDifficulty(in.KnowledgeLevel)
	if err != nil {
		return nil, task.Permanentf("%w: %w", ErrInvalidInput, err)
	}
	log := p.logger.With("topic", topic, "level", level, "task_id", rec.ID)

	// 1. Reuse a stored syllabus for the same user, topic and level
	existing := true
	syl, err := p.syllabi.FindSyllabus(ctx, rec.UserID, topic, level)
	if errors.Is(err, store.ErrSyllabusNotFound) {
		existing = false
		syl, err = p.generate(ctx, rec.UserID, topic, level)
	}
	if err != nil {
		return nil, err
	}
	log = log.With("syllabus_id", syl.ID)
	log.Info("syllabus ready", "existing", existing, "modules", len(syl.Modules))

	result := SyllabusResult{
		Syllabus:       syl,
		SyllabusID:     syl.ID,
		Topic:          topic,
		KnowledgeLevel: string(level),
		Existing:       existing,
	}

	// 2. Start content generation for the first lesson. Failures here do
	// not fail the syllabus.
	if id, err := p.startFirstLesson(ctx, syl, rec.UserID); err != nil {
		log.Error("failed to start first lesson content generation", "error", err)
	} else if id != uuid.Nil {
		result.ContentTaskID = &id
	}
	return result, nil
}

func (p *Syllabus) generate(ctx context.Context, userID *uuid.UUID, topic string, level domain.Difficulty) (*domain.Syllabus, error) {
	prompt, err := render(syllabusPrompt, map[string]any{"Topic": topic, "Level": level})
	if err != nil {
		return nil, task.Permanent(err)
	}

	var out syllabusOutline
	ctx = llm.WithPurpose(ctx, "syllabus_generation")
	if err := llm.GenerateInto(ctx, p.provider, llm.UserPrompt(prompt, syllabusSchema, 4096), &out); err != nil {
		return nil, fmt.Errorf("failed to generate syllabus: %w", err)
	}

	modules := make([]domain.Module, 0, len(out.Modules))
	for _, m := range out.Modules {
		mod := domain.Module{Title: strings.TrimSpace(m.Title), Summary: m.Summary}
		for _, l := range m.Lessons {
			mod.Lessons = append(mod.Lessons, domain.Lesson{
				Title:    strings.TrimSpace(l.Title),
				Summary:  l.Summary,
				Duration: l.Duration,
			})
		}
		modules = append(modules, mod)
	}

	syl, err := domain.NewSyllabus(userID, topic, level, modules)
	if err != nil {
		return nil, task.Permanentf("generated syllabus is invalid: %w", err)
	}
	if err := p.syllabi.CreateSyllabus(ctx, syl); err != nil {
		return nil, fmt.Errorf("failed to save syllabus: %w", err)
	}
	return syl, nil
}

// startFirstLesson submits lesson_content for lesson 0 of module 0 unless
// it already has completed content. It returns uuid.Nil when nothing was
// submitted.
func (p *Syllabus) startFirstLesson(ctx context.Context, syl *domain.Syllabus, userID *uuid.UUID) (uuid.UUID, error) {
	first := syl.FirstLesson()
	if first == nil {
		return uuid.Nil, nil
	}
	content, err := p.lessons.GetCompletedContent(ctx, first.ID)
	if err != nil {
		return uuid.Nil, err
	}
	if content != nil {
		return uuid.Nil, nil
	}

	syllabusID, lessonID := syl.ID, first.ID
	id, err := p.submitter.Submit(ctx, task.TypeLessonContent, ContentInput{LessonID: lessonID}, task.Refs{
		SyllabusID: &syllabusID,
		LessonID:   &lessonID,
		UserID:     userID,
	})
	if errors.Is(err, task.ErrQueueFull) {
		return id, nil
	}
	return id, err
}
