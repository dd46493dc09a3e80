package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/api/shared"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/task"
)

// TaskService is the part of the task dispatcher the handlers use.
type TaskService interface {
	Submit(ctx context.Context, t task.Type, input any, refs task.Refs) (uuid.UUID, error)
	EnsureNoInFlight(ctx context.Context, t task.Type, refs task.Refs) error
	Get(ctx context.Context, id uuid.UUID) (*task.Record, error)
}

var _ TaskService = (*task.Dispatcher)(nil)

// TaskHandler serves task status lookups.
type TaskHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tasks TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With("handler", "task"),
	}
}

// GetTask handles GET /api/tasks/{taskID}
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, taskID, ok := handleUserIDAndPathUUID(w, r, "taskID", log)
	if !ok {
		return
	}

	rec, err := h.tasks.Get(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	// Tasks without an owner are operator-submitted and visible to everyone
	if rec.UserID != nil && *rec.UserID != userID {
		log.Warn("task requested by another user",
			"task_id", taskID,
			"user_id", userID)
		HandleAPIError(w, r, ErrTaskNotOwned, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, rec.View())
}

// submitTask submits a task and writes 202 with its id. A full queue still
// yields a stored pending record, which the stuck-task monitor picks up, so
// it is reported as accepted.
func submitTask(
	w http.ResponseWriter,
	r *http.Request,
	tasks TaskService,
	log *slog.Logger,
	t task.Type,
	input any,
	refs task.Refs,
) {
	id, err := tasks.Submit(r.Context(), t, input, refs)
	if errors.Is(err, task.ErrTaskInFlight) {
		log.Info("task rejected while another is in flight", "task_type", t)
		HandleAPIError(w, r, err, "")
		return
	}
	if err != nil && !(errors.Is(err, task.ErrQueueFull) && id != uuid.Nil) {
		log.Error("failed to submit task", "task_type", t, "error", err)
		HandleAPIError(w, r, err, "Failed to submit task")
		return
	}
	if err != nil {
		log.Warn("task accepted while queue is full", "task_id", id, "task_type", t)
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskAcceptedResponse{TaskID: id})
}
