package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/processor"
	"github.com/phrazzld/techtree-api/internal/task"
)

// SyllabusHandler accepts syllabus generation requests.
type SyllabusHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

// NewSyllabusHandler creates a new SyllabusHandler
func NewSyllabusHandler(tasks TaskService, logger *slog.Logger) *SyllabusHandler {
	return &SyllabusHandler{
		tasks:  tasks,
		logger: logger.With("handler", "syllabus"),
	}
}

// CreateSyllabus handles POST /api/syllabi
func (h *SyllabusHandler) CreateSyllabus(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := handleUserID(w, r, log)
	if !ok {
		return
	}

	var req CreateSyllabusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	level, err := domain.ParseDifficulty(req.KnowledgeLevel)
	if err != nil {
		HandleAPIError(w, r, err, "Invalid knowledge_level")
		return
	}

	input := processor.SyllabusInput{Topic: req.Topic, KnowledgeLevel: string(level)}
	submitTask(w, r, h.tasks, log, task.TypeSyllabusGeneration, input, task.Refs{UserID: &userID})
}
