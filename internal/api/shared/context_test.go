package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy unavailable") }

func TestSetAndGetTraceID(t *testing.T) {
	ctx := SetTraceID(context.Background())

	traceID := GetTraceID(ctx)
	assert.Len(t, traceID, 2*TraceIDLength)
	_, err := hex.DecodeString(traceID)
	assert.NoError(t, err)

	assert.NotEqual(t, traceID, GetTraceID(SetTraceID(context.Background())))
}

func TestGetTraceIDWithInvalidContext(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Empty(t, GetTraceID(context.WithValue(context.Background(), TraceIDKey, 42)))
}

func TestGenerateTraceIDFallback(t *testing.T) {
	tests := []struct {
		name string
		src  io.Reader
	}{
		{name: "read error", src: failingReader{}},
		{name: "short read", src: io.LimitReader(rand.Reader, TraceIDLength/2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traceID := generateTraceID(tt.src)
			assert.Len(t, traceID, 2*TraceIDLength)
			_, err := hex.DecodeString(traceID)
			assert.NoError(t, err)
		})
	}
}

func TestFallbackTraceIDUniqueness(t *testing.T) {
	const iterations = 100
	seen := make(map[string]bool, iterations)
	for i := 0; i < iterations; i++ {
		id := generateFallbackTraceID()
		require.Len(t, id, 2*TraceIDLength)
		assert.False(t, seen[id], "fallback trace IDs should not repeat")
		seen[id] = true
	}
}
