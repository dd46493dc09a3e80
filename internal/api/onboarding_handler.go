package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/processor"
	"github.com/phrazzld/techtree-api/internal/task"
)

// OnboardingHandler accepts placement assessment steps.
type OnboardingHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

// NewOnboardingHandler creates a new OnboardingHandler
func NewOnboardingHandler(tasks TaskService, logger *slog.Logger) *OnboardingHandler {
	return &OnboardingHandler{
		tasks:  tasks,
		logger: logger.With("handler", "onboarding"),
	}
}

// AssessmentStep handles POST /api/onboarding/assessments
func (h *OnboardingHandler) AssessmentStep(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := handleUserID(w, r, log)
	if !ok {
		return
	}

	var req OnboardingRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	input := processor.OnboardingInput{
		Topic:           req.Topic,
		AssessmentState: req.AssessmentState,
		Answer:          req.Answer,
		Skip:            req.Skip,
	}
	submitTask(w, r, h.tasks, log, task.TypeOnboardingAssessment, input, task.Refs{UserID: &userID})
}
