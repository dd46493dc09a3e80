package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/api/shared"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requestWithParam(name, value string, userID any) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rctx := chi.NewRouteContext()
	if name != "" {
		rctx.URLParams.Add(name, value)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if userID != nil {
		ctx = context.WithValue(ctx, shared.UserIDContextKey, userID)
	}
	return req.WithContext(ctx)
}

func TestGetUserIDFromContext(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name   string
		value  any
		wantOK bool
	}{
		{"valid", id, true},
		{"missing", nil, false},
		{"nil uuid", uuid.Nil, false},
		{"wrong type", id.String(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := getUserIDFromContext(requestWithParam("", "", tt.value))
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, id, got)
			} else {
				assert.Equal(t, uuid.Nil, got)
			}
		})
	}
}

func TestGetPathUUID(t *testing.T) {
	id := uuid.New()

	got, err := getPathUUID(requestWithParam("lessonID", id.String(), nil), "lessonID")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = getPathUUID(requestWithParam("lessonID", "nope", nil), "lessonID")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = getPathUUID(requestWithParam("", "", nil), "lessonID")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestHandleUserIDAndPathUUID(t *testing.T) {
	userID := uuid.New()
	lessonID := uuid.New()

	t.Run("success", func(t *testing.T) {
		rec := httptest.NewRecorder()
		gotUser, gotLesson, ok := handleUserIDAndPathUUID(rec, requestWithParam("lessonID", lessonID.String(), userID), "lessonID", nil)

		assert.True(t, ok)
		assert.Equal(t, userID, gotUser)
		assert.Equal(t, lessonID, gotLesson)
	})

	t.Run("missing user", func(t *testing.T) {
		rec := httptest.NewRecorder()
		_, _, ok := handleUserIDAndPathUUID(rec, requestWithParam("lessonID", lessonID.String(), nil), "lessonID", nil)

		assert.False(t, ok)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad path id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		_, _, ok := handleUserIDAndPathUUID(rec, requestWithParam("lessonID", "123", userID), "lessonID", nil)

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
