package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/llm"
	"github.com/phrazzld/techtree-api/internal/store"
	"github.com/phrazzld/techtree-api/internal/task"
)

// ContentInput is the input_data of a lesson_content task.
type ContentInput struct {
	LessonID uuid.UUID `json:"lesson_id"`
}

// ContentResult is the result of a lesson_content task.
type ContentResult struct {
	LessonID   uuid.UUID `json:"lesson_id"`
	Exposition string    `json:"exposition"`
	WordCount  int       `json:"word_count"`
}

var contentSchema = &llm.Schema{
	Name:        "lesson-content",
	Description: "The exposition of one lesson",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"exposition": map[string]any{"type": "string", "minLength": 1},
		},
		"required":             []string{"exposition"},
		"additionalProperties": false,
	},
}

// LessonContent processes lesson_content tasks.
type LessonContent struct {
	lessons  store.LessonStore
	syllabi  store.SyllabusStore
	provider llm.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewLessonContent creates the lesson content processor.
func NewLessonContent(
	lessons store.LessonStore,
	syllabi store.SyllabusStore,
	provider llm.Provider,
	logger *slog.Logger,
) (*LessonContent, error) {
	if lessons == nil || syllabi == nil {
		return nil, ErrNilStore
	}
	if provider == nil {
		return nil, ErrNilProvider
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &LessonContent{
		lessons:  lessons,
		syllabi:  syllabi,
		provider: provider,
		logger:   logger.With("processor", task.TypeLessonContent),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Process implements task.Processor.
func (p *LessonContent) Process(ctx context.Context, rec *task.Record) (any, error) {
	var in ContentInput
	if err := rec.DecodeInput(&in); err != nil {
		return nil, task.Permanentf("%w: %w", ErrInvalidInput, err)
	}
	if in.LessonID == uuid.Nil && rec.LessonID != nil {
		in.LessonID = *rec.LessonID
	}
	if in.LessonID == uuid.Nil {
		return nil, task.Permanentf("%w: lesson_id is required", ErrInvalidInput)
	}
	log := p.logger.With("lesson_id", in.LessonID, "task_id", rec.ID)

	// 1. Look up the lesson
	lc, err := p.lessons.GetLessonContext(ctx, in.LessonID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, task.Permanent(err)
		}
		return nil, fmt.Errorf("failed to load lesson: %w", err)
	}

	// 2. Mark the content as generating
	content := &domain.LessonContent{
		ID:        uuid.New(),
		LessonID:  in.LessonID,
		Status:    domain.LessonContentGenerating,
		CreatedAt: p.now(),
		UpdatedAt: p.now(),
	}
	if err := p.lessons.SaveContent(ctx, content); err != nil {
		return nil, fmt.Errorf("failed to mark lesson content generating: %w", err)
	}

	// 3. Generate the exposition
	outline := "(outline unavailable)"
	if syl, err := p.syllabi.GetSyllabus(ctx, lc.SyllabusID); err == nil {
		outline = formatOutline(syl)
	} else {
		log.Warn("could not load syllabus outline", "syllabus_id", lc.SyllabusID, "error", err)
	}
	levels := make([]string, len(domain.DifficultyLevels))
	for i, d := range domain.DifficultyLevels {
		levels[i] = string(d)
	}
	wordCount := lc.Level.LessonWordBudget()
	prompt, err := render(lessonContentPrompt, map[string]any{
		"Topic":     lc.Topic,
		"Level":     lc.Level,
		"Levels":    strings.Join(levels, ", "),
		"Title":     lc.Lesson.Title,
		"WordCount": wordCount,
		"Outline":   outline,
	})
	if err != nil {
		return nil, task.Permanent(err)
	}

	var out struct {
		Exposition string `json:"exposition"`
	}
	maxTokens := wordCount * 4
	genErr := llm.GenerateInto(llm.WithPurpose(ctx, "lesson_content"), p.provider,
		llm.UserPrompt(prompt, contentSchema, maxTokens), &out)
	if genErr == nil && strings.TrimSpace(out.Exposition) == "" {
		genErr = &llm.ErrInvalidResponse{Err: errors.New("empty exposition")}
	}

	// 4. Store the outcome
	content.UpdatedAt = p.now()
	if genErr != nil {
		content.Status = domain.LessonContentFailed
		content.Error = genErr.Error()
		if err := p.lessons.SaveContent(ctx, content); err != nil {
			log.Error("failed to mark lesson content failed", "error", err)
		}
		var invalid *llm.ErrInvalidResponse
		if errors.As(genErr, &invalid) {
			return nil, task.Permanentf("failed to generate lesson content: %w", genErr)
		}
		return nil, fmt.Errorf("failed to generate lesson content: %w", genErr)
	}

	content.Status = domain.LessonContentCompleted
	content.Exposition = strings.TrimSpace(out.Exposition)
	if err := p.lessons.SaveContent(ctx, content); err != nil {
		return nil, fmt.Errorf("failed to save lesson content: %w", err)
	}

	words := len(strings.Fields(content.Exposition))
	log.Info("lesson content generated", "words", words, "word_budget", wordCount)
	return ContentResult{LessonID: in.LessonID, Exposition: content.Exposition, WordCount: words}, nil
}

func formatOutline(s *domain.Syllabus) string {
	var b strings.Builder
	for _, m := range s.Modules {
		fmt.Fprintf(&b, "Module %d: %s\n", m.Index+1, m.Title)
		for _, l := range m.Lessons {
			fmt.Fprintf(&b, "  Lesson %d: %s\n", l.Index+1, l.Title)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
