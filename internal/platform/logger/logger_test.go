package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/techtree-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, ok := ParseLevel(tt.name)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestSetupWritesJSONAtConfiguredLevel(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	buf := &TestLogBuffer{}
	l := setup(config.ServerConfig{LogLevel: "warn"}, buf)

	l.Info("dropped")
	l.Warn("kept", "task_id", "abc")
	slog.Error("via default")

	entries, err := buf.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "kept", entries[0]["msg"])
	assert.Equal(t, "abc", entries[0]["task_id"])
	assert.Equal(t, "via default", entries[1]["msg"])
}

func TestFromContext(t *testing.T) {
	t.Run("falls back to default", func(t *testing.T) {
		assert.Same(t, slog.Default(), FromContext(context.Background()))
	})

	t.Run("returns attached logger", func(t *testing.T) {
		l, buf := NewCaptureLogger()
		ctx := WithLogger(context.Background(), l.With("request_id", "r-1"))

		FromContext(ctx).Info("hello")

		entries, err := buf.Entries()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "r-1", entries[0]["request_id"])
	})
}
