package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/config"
	"github.com/phrazzld/techtree-api/internal/service/auth"
	"github.com/phrazzld/techtree-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRuntime(store *task.MemoryStore) *runtime {
	return &runtime{
		loadConfig: func() (*config.Config, error) {
			return &config.Config{
				Auth: config.AuthConfig{
					JWTSecret:     "thisisasecretkeythatis32charslong!!",
					TokenLifetime: time.Hour,
				},
			}, nil
		},
		openDB: func(context.Context, *config.Config, *slog.Logger) (*sql.DB, error) {
			return nil, errors.New("no database in tests")
		},
		openTasks: func(context.Context, *config.Config, *slog.Logger) (task.Store, func() error, error) {
			return store, func() error { return nil }, nil
		},
		now: func() time.Time { return testNow },
	}
}

func execute(t *testing.T, rt *runtime, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(rt)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, s *task.MemoryStore, typ task.Type, status task.Status, msg string) *task.Record {
	t.Helper()
	lessonID := uuid.New()
	rec := &task.Record{
		ID:           uuid.New(),
		Type:         typ,
		Status:       status,
		Refs:         task.Refs{LessonID: &lessonID},
		AttemptCount: 1,
		ErrorMessage: msg,
		CreatedAt:    testNow.Add(-time.Hour),
		UpdatedAt:    testNow.Add(-time.Minute),
	}
	s.Put(rec)
	return rec
}

func TestTasksList(t *testing.T) {
	s := task.NewMemoryStore()
	failed := seed(t, s, task.TypeLessonContent, task.StatusFailed, "model refused")
	done := seed(t, s, task.TypeSyllabusGeneration, task.StatusCompleted, "")

	t.Run("all", func(t *testing.T) {
		out, err := execute(t, testRuntime(s), "tasks", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "STATUS")
		assert.Contains(t, out, failed.ID.String())
		assert.Contains(t, out, done.ID.String())
		assert.Contains(t, out, "model refused")
	})

	t.Run("filtered by status", func(t *testing.T) {
		out, err := execute(t, testRuntime(s), "tasks", "list", "--status", "failed")
		require.NoError(t, err)
		assert.Contains(t, out, failed.ID.String())
		assert.NotContains(t, out, done.ID.String())
	})

	t.Run("no matches", func(t *testing.T) {
		out, err := execute(t, testRuntime(s), "tasks", "list", "--type", string(task.TypeOnboardingAssessment))
		require.NoError(t, err)
		assert.Equal(t, "No tasks found.\n", out)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := execute(t, testRuntime(s), "tasks", "list", "--status", "stalled")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown status")
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := execute(t, testRuntime(s), "tasks", "list", "--type", "flashcards")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown task type")
	})
}

func TestTasksShow(t *testing.T) {
	s := task.NewMemoryStore()
	rec := seed(t, s, task.TypeLessonInteraction, task.StatusPending, "")

	out, err := execute(t, testRuntime(s), "tasks", "show", rec.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, rec.ID.String())
	assert.Contains(t, out, string(task.TypeLessonInteraction))

	_, err = execute(t, testRuntime(s), "tasks", "show", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid task id")

	_, err = execute(t, testRuntime(s), "tasks", "show", uuid.NewString())
	require.Error(t, err)
}

func TestTasksRetry(t *testing.T) {
	s := task.NewMemoryStore()
	s.SetClock(func() time.Time { return testNow })
	failed := seed(t, s, task.TypeLessonContent, task.StatusFailed, "boom")
	done := seed(t, s, task.TypeLessonContent, task.StatusCompleted, "")

	out, err := execute(t, testRuntime(s), "tasks", "retry", failed.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "is pending again")

	got, err := s.Get(context.Background(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, got.Status)
	assert.Zero(t, got.AttemptCount)
	assert.Empty(t, got.ErrorMessage)

	_, err = execute(t, testRuntime(s), "tasks", "retry", done.ID.String())
	require.ErrorIs(t, err, task.ErrNotFailed)
}

func TestStats(t *testing.T) {
	s := task.NewMemoryStore()
	seed(t, s, task.TypeLessonContent, task.StatusFailed, "x")
	seed(t, s, task.TypeLessonContent, task.StatusPending, "")
	seed(t, s, task.TypeLessonContent, task.StatusPending, "")

	out, err := execute(t, testRuntime(s), "stats")
	require.NoError(t, err)

	lines := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		require.Len(t, fields, 2)
		lines[fields[0]] = fields[1]
	}
	assert.Equal(t, "2", lines["pending"])
	assert.Equal(t, "1", lines["failed"])
	assert.Equal(t, "0", lines["completed"])
	assert.Equal(t, "3", lines["total"])
}

func TestMigrate(t *testing.T) {
	_, err := execute(t, testRuntime(task.NewMemoryStore()), "migrate", "sideways")
	require.Error(t, err)

	_, err = execute(t, testRuntime(task.NewMemoryStore()), "migrate", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open database")
}

func TestToken(t *testing.T) {
	rt := testRuntime(task.NewMemoryStore())
	userID := uuid.New()

	out, err := execute(t, rt, "token", userID.String())
	require.NoError(t, err)

	cfg, _ := rt.loadConfig()
	svc, err := auth.NewJWTService(cfg.Auth)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)

	_, err = execute(t, rt, "token", "nobody")
	require.Error(t, err)
}
