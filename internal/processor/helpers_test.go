package processor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/llm"
	"github.com/phrazzld/techtree-api/internal/notify"
	"github.com/phrazzld/techtree-api/internal/store/memstore"
	"github.com/phrazzld/techtree-api/internal/task"
	"github.com/stretchr/testify/require"
)

type published struct {
	group string
	msg   notify.Message
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *recordingPublisher) Publish(_ context.Context, group string, msg notify.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{group: group, msg: msg})
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.sent))
	for i, s := range p.sent {
		out[i] = s.msg.Type
	}
	return out
}

func (p *recordingPublisher) Last() published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[len(p.sent)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store      *memstore.Store
	mock       *llm.MockProvider
	pub        *recordingPublisher
	relay      *notify.Relay
	userID     uuid.UUID
	lessonID   uuid.UUID
	syllabusID uuid.UUID
}

// newFixture seeds one lesson at level Early Learner with completed content.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:      memstore.New(),
		mock:       llm.NewMockProvider(),
		pub:        &recordingPublisher{},
		userID:     uuid.New(),
		lessonID:   uuid.New(),
		syllabusID: uuid.New(),
	}
	f.relay = notify.NewRelay(f.pub, 5, time.Second, discardLogger())
	f.store.AddLesson(domain.LessonContext{
		Lesson:      domain.Lesson{ID: f.lessonID, Title: "Channels", Summary: "Passing values between goroutines"},
		ModuleTitle: "Concurrency",
		SyllabusID:  f.syllabusID,
		Topic:       "Go",
		Level:       domain.DifficultyEarlyLearner,
	})
	require.NoError(t, f.store.SaveContent(context.Background(), &domain.LessonContent{
		LessonID:   f.lessonID,
		Status:     domain.LessonContentCompleted,
		Exposition: "Channels connect goroutines.",
	}))
	return f
}

func (f *fixture) record(t *testing.T, typ task.Type, input any) *task.Record {
	t.Helper()
	raw, err := json.Marshal(input)
	require.NoError(t, err)
	userID, lessonID := f.userID, f.lessonID
	return &task.Record{
		ID:        uuid.New(),
		Type:      typ,
		Status:    task.StatusProcessing,
		InputData: raw,
		Refs:      task.Refs{UserID: &userID, LessonID: &lessonID},
	}
}

func (f *fixture) savedState(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := f.store.GetState(context.Background(), f.userID, f.lessonID)
	require.NoError(t, err)
	return raw
}

func questionResponse(n int) llm.MockResponse {
	return llm.JSONResponse(map[string]any{
		"question_text":  "Question " + string(rune('0'+n)) + "?",
		"options":        []string{"A", "B", "C", "D"},
		"correct_answer": "A",
		"subtopics":      []string{"buffering"},
		"difficulty":     "Early Learner",
	})
}

func evaluationResponse(correct bool) llm.MockResponse {
	missed := []string{}
	if !correct {
		missed = []string{"buffering"}
	}
	return llm.JSONResponse(map[string]any{
		"is_correct":        correct,
		"feedback":          "feedback",
		"subtopics_covered": []string{},
		"subtopics_missed":  missed,
		"prompt_for_detail": false,
	})
}
