package quiz

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/store/memstore"
)

// fakeGenerator hands out numbered questions and grades answers from a
// scripted list of verdicts. Incorrect answers miss every subtopic of the
// question.
type fakeGenerator struct {
	mu sync.Mutex

	// questionOut overrides the next generated questions, in order.
	questionOut []map[string]any
	// verdicts scripts EvaluateAnswer; answers beyond the list are correct.
	verdicts []bool
	genErr   error
	evalErr  error

	questionCalls int
	retryCalls    int
	evalCalls     int
	lastRequest   QuestionRequest
}

func sampleQuestion(n int, subtopics ...string) map[string]any {
	if len(subtopics) == 0 {
		subtopics = []string{fmt.Sprintf("topic-%d", n)}
	}
	subs := make([]any, len(subtopics))
	for i, s := range subtopics {
		subs[i] = s
	}
	return map[string]any{
		"question_text":  fmt.Sprintf("Question %d?", n),
		"options":        []any{"A", "B", "C", "D"},
		"correct_answer": "A",
		"subtopics":      subs,
		"difficulty":     "Beginner",
	}
}

func (f *fakeGenerator) nextQuestion(req QuestionRequest) (map[string]any, error) {
	f.lastRequest = req
	if f.genErr != nil {
		return nil, f.genErr
	}
	if len(f.questionOut) > 0 {
		q := f.questionOut[0]
		f.questionOut = f.questionOut[1:]
		return q, nil
	}
	return sampleQuestion(f.questionCalls + f.retryCalls), nil
}

func (f *fakeGenerator) GenerateQuestion(_ context.Context, req QuestionRequest) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionCalls++
	return f.nextQuestion(req)
}

func (f *fakeGenerator) RetryQuestion(_ context.Context, req QuestionRequest) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retryCalls++
	return f.nextQuestion(req)
}

func (f *fakeGenerator) EvaluateAnswer(_ context.Context, req EvaluationRequest) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	correct := true
	if f.evalCalls < len(f.verdicts) {
		correct = f.verdicts[f.evalCalls]
	}
	f.evalCalls++

	missed := []any{}
	covered := []any{}
	for _, s := range req.Subtopics {
		if correct {
			covered = append(covered, s)
		} else {
			missed = append(missed, s)
		}
	}
	feedback := "Correct."
	if !correct {
		feedback = "Not quite."
	}
	return map[string]any{
		"is_correct":        correct,
		"feedback":          feedback,
		"subtopics_covered": covered,
		"subtopics_missed":  missed,
		"prompt_for_detail": false,
	}, nil
}

var errLLMDown = errors.New("llm down")

type fixture struct {
	graph    *Graph
	gen      *fakeGenerator
	lessons  *memstore.Store
	lessonID uuid.UUID
	userID   uuid.UUID
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	lessons := memstore.New()
	lessonID := uuid.New()
	lessons.AddLesson(domain.LessonContext{
		Lesson:     domain.Lesson{ID: lessonID, Title: "Goroutines"},
		Topic:      "Go",
		Level:      domain.DifficultyBeginner,
		SyllabusID: uuid.New(),
	})
	err := lessons.SaveContent(context.Background(), &domain.LessonContent{
		LessonID:   lessonID,
		Status:     domain.LessonContentCompleted,
		Exposition: "Goroutines are lightweight threads managed by the Go runtime.",
	})
	if err != nil {
		t.Fatalf("seed content: %v", err)
	}

	gen := &fakeGenerator{}
	return &fixture{
		graph:    NewGraph(gen, lessons, cfg),
		gen:      gen,
		lessons:  lessons,
		lessonID: lessonID,
		userID:   uuid.New(),
	}
}

func testContext() context.Context {
	l := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger.WithLogger(context.Background(), l)
}
