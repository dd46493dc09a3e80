package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/processor"
	"github.com/phrazzld/techtree-api/internal/quiz"
	"github.com/phrazzld/techtree-api/internal/store"
	"github.com/phrazzld/techtree-api/internal/task"
)

// LessonHandler accepts lesson content, quiz and chat requests. Every
// request becomes a task; results arrive over the event stream and the
// task status endpoint.
type LessonHandler struct {
	tasks    TaskService
	lessons  store.LessonStore
	progress store.ProgressStore
	logger   *slog.Logger
}

// NewLessonHandler creates a new LessonHandler
func NewLessonHandler(
	tasks TaskService,
	lessons store.LessonStore,
	progress store.ProgressStore,
	logger *slog.Logger,
) *LessonHandler {
	return &LessonHandler{
		tasks:    tasks,
		lessons:  lessons,
		progress: progress,
		logger:   logger.With("handler", "lesson"),
	}
}

// GenerateContent handles POST /api/lessons/{lessonID}/content
func (h *LessonHandler) GenerateContent(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, lessonID, ok := h.lessonRequest(w, r, log)
	if !ok {
		return
	}

	refs := task.Refs{UserID: &userID, LessonID: &lessonID}
	submitTask(w, r, h.tasks, log, task.TypeLessonContent, processor.ContentInput{LessonID: lessonID}, refs)
}

// StartQuiz handles POST /api/lessons/{lessonID}/quiz
func (h *LessonHandler) StartQuiz(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, lessonID, ok := h.lessonRequest(w, r, log)
	if !ok {
		return
	}

	refs := task.Refs{UserID: &userID, LessonID: &lessonID}
	if !h.ensureIdle(w, r, refs) {
		return
	}

	input := processor.InteractionInput{SubmissionType: processor.SubmissionQuizStart}
	submitTask(w, r, h.tasks, log, task.TypeLessonInteraction, input, refs)
}

// SubmitAnswer handles POST /api/lessons/{lessonID}/quiz/answers
func (h *LessonHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, lessonID, ok := handleUserIDAndPathUUID(w, r, "lessonID", log)
	if !ok {
		return
	}

	var req SubmitAnswerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	refs := task.Refs{UserID: &userID, LessonID: &lessonID}
	if !h.ensureIdle(w, r, refs) {
		return
	}

	raw, err := h.progress.GetState(r.Context(), userID, lessonID)
	if err != nil {
		log.Error("failed to load quiz state", "lesson_id", lessonID, "error", err)
		HandleAPIError(w, r, err, "Failed to load quiz state")
		return
	}
	st, err := quiz.DecodeState(raw)
	if err != nil {
		log.Error("stored quiz state is unreadable", "lesson_id", lessonID, "error", err)
		HandleAPIError(w, r, err, "Failed to load quiz state")
		return
	}
	if !st.AwaitingAnswer() {
		HandleAPIError(w, r, ErrNoPendingQuestion, "")
		return
	}

	answer := req.Answer
	input := processor.InteractionInput{
		SubmissionType: processor.SubmissionQuizAnswer,
		UserAnswer:     &answer,
	}
	submitTask(w, r, h.tasks, log, task.TypeLessonInteraction, input, refs)
}

// Chat handles POST /api/lessons/{lessonID}/chat
func (h *LessonHandler) Chat(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, lessonID, ok := handleUserIDAndPathUUID(w, r, "lessonID", log)
	if !ok {
		return
	}

	var req ChatRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	refs := task.Refs{UserID: &userID, LessonID: &lessonID}
	if !h.ensureIdle(w, r, refs) {
		return
	}

	input := processor.InteractionInput{
		SubmissionType: processor.SubmissionChat,
		UserMessage:    req.Message,
	}
	submitTask(w, r, h.tasks, log, task.TypeLessonInteraction, input, refs)
}

// lessonRequest resolves the caller and checks the lesson exists.
func (h *LessonHandler) lessonRequest(
	w http.ResponseWriter,
	r *http.Request,
	log *slog.Logger,
) (uuid.UUID, uuid.UUID, bool) {
	userID, lessonID, ok := handleUserIDAndPathUUID(w, r, "lessonID", log)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	if _, err := h.lessons.GetLessonContext(r.Context(), lessonID); err != nil {
		if !store.IsNotFoundError(err) {
			log.Error("failed to load lesson", "lesson_id", lessonID, "error", err)
		}
		HandleAPIError(w, r, err, "")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, lessonID, true
}

// ensureIdle writes 409 when an interaction task for the learner and
// lesson is still pending or processing.
func (h *LessonHandler) ensureIdle(w http.ResponseWriter, r *http.Request, refs task.Refs) bool {
	if err := h.tasks.EnsureNoInFlight(r.Context(), task.TypeLessonInteraction, refs); err != nil {
		HandleAPIError(w, r, fmt.Errorf("lesson interaction: %w", err), "")
		return false
	}
	return true
}
