package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/notify"
	"github.com/phrazzld/techtree-api/internal/quiz"
	"github.com/phrazzld/techtree-api/internal/service/auth"
	"github.com/phrazzld/techtree-api/internal/store/memstore"
	"github.com/phrazzld/techtree-api/internal/task"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness wires the router to an unstarted dispatcher so submitted tasks
// stay pending and can be inspected.
type harness struct {
	t        *testing.T
	tasks    *task.MemoryStore
	dispatch *task.Dispatcher
	store    *memstore.Store
	hub      *notify.Hub
	router   http.Handler
	userID   uuid.UUID
	lessonID uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		tasks:    task.NewMemoryStore(),
		store:    memstore.New(),
		hub:      notify.NewHub(8, discardLogger()),
		userID:   uuid.New(),
		lessonID: uuid.New(),
	}

	h.dispatch = task.NewDispatcher(h.tasks, task.DefaultConfig(), discardLogger())
	noop := task.ProcessorFunc(func(context.Context, *task.Record) (any, error) { return nil, nil })
	for _, typ := range task.Types {
		h.dispatch.Register(typ, noop)
	}

	h.store.AddLesson(domain.LessonContext{
		Lesson:      domain.Lesson{ID: h.lessonID, Title: "Goroutines"},
		ModuleTitle: "Concurrency",
		SyllabusID:  uuid.New(),
		Topic:       "Go",
		Level:       domain.DifficultyEarlyLearner,
	})

	h.router = NewRouter(RouterDeps{
		Tasks:          h.dispatch,
		Lessons:        h.store,
		Progress:       h.store,
		Events:         h.hub,
		JWT:            auth.NewMockJWTService(h.userID),
		Logger:         discardLogger(),
		RequestTimeout: 5 * time.Second,
		Heartbeat:      50 * time.Millisecond,
	})
	return h
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

// accepted decodes a 202 response and returns the stored record.
func (h *harness) accepted(rec *httptest.ResponseRecorder) *task.Record {
	h.t.Helper()
	require.Equal(h.t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp TaskAcceptedResponse
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	stored, err := h.tasks.Get(context.Background(), resp.TaskID)
	require.NoError(h.t, err)
	return stored
}

// seedPendingQuestion stores a quiz state waiting for an answer.
func (h *harness) seedPendingQuestion() {
	h.t.Helper()
	st := quiz.NewSession(h.lessonID, h.userID, domain.DifficultyEarlyLearner)
	st.QuestionsAsked = []quiz.Question{{QuestionText: "What starts a goroutine?", CorrectAnswer: "go"}}
	st.WaitingForUserInput = true
	raw, err := st.Encode()
	require.NoError(h.t, err)
	require.NoError(h.t, h.store.SaveState(context.Background(), h.userID, h.lessonID, raw))
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}
