package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/service/auth"
	"github.com/phrazzld/techtree-api/internal/store"
	"github.com/phrazzld/techtree-api/internal/task"
	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedMsg    string
	}{
		{"nil error", nil, http.StatusInternalServerError, "An unexpected error occurred"},
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized, "Invalid token"},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized, "Token expired"},
		{"wrapped auth error", fmt.Errorf("authenticate: %w", auth.ErrWrongTokenType), http.StatusUnauthorized, "Invalid token"},
		{"missing user", domain.ErrUnauthorized, http.StatusUnauthorized, "Authentication required"},
		{"task not owned", ErrTaskNotOwned, http.StatusForbidden, "You do not have access to this task"},
		{"task not found", store.ErrTaskNotFound, http.StatusNotFound, "Task not found"},
		{"lesson not found", fmt.Errorf("load: %w", store.ErrLessonNotFound), http.StatusNotFound, "Lesson not found"},
		{"syllabus not found", store.ErrSyllabusNotFound, http.StatusNotFound, "Syllabus not found"},
		{"generic not found", store.ErrNotFound, http.StatusNotFound, "Resource not found"},
		{"in flight", fmt.Errorf("lesson interaction: %w", task.ErrTaskInFlight), http.StatusConflict, "A request for this lesson is already being processed"},
		{"no pending question", ErrNoPendingQuestion, http.StatusConflict, "No question is awaiting an answer"},
		{"invalid id", domain.ErrInvalidID, http.StatusBadRequest, "Invalid ID format"},
		{"validation", domain.ErrValidation, http.StatusBadRequest, "Invalid request data"},
		{"invalid entity", store.ErrInvalidEntity, http.StatusBadRequest, "Invalid request data"},
		{"unknown type", task.ErrUnknownType, http.StatusBadRequest, "Unsupported task type"},
		{"queue closed", task.ErrQueueClosed, http.StatusServiceUnavailable, "Service is shutting down"},
		{"unexpected", errors.New("connection reset by peer"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedStatus, MapErrorToStatusCode(tt.err))
			assert.Equal(t, tt.expectedMsg, GetSafeErrorMessage(tt.err))
		})
	}
}

func TestHandleAPIError(t *testing.T) {
	t.Run("mapped message", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/tasks/x", nil)

		HandleAPIError(rec, req, fmt.Errorf("select failed on postgres://u:secret@db: %w", store.ErrTaskNotFound), "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Task not found", errorBody(t, rec))
		assert.NotContains(t, rec.Body.String(), "secret")
	})

	t.Run("override message keeps mapped status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/syllabi", nil)

		HandleAPIError(rec, req, task.ErrQueueClosed, "Failed to submit task")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "Failed to submit task", errorBody(t, rec))
	})
}

func TestSanitizeValidationError(t *testing.T) {
	v := validator.New()

	tests := []struct {
		name     string
		req      any
		expected string
	}{
		{"required", ChatRequest{}, "Invalid Message: required field"},
		{"max", CreateSyllabusRequest{Topic: string(make([]byte, 201)), KnowledgeLevel: "Beginner"}, "Invalid Topic: too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.req)
			assert.Equal(t, tt.expected, SanitizeValidationError(err))
		})
	}

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("something else")))
}
