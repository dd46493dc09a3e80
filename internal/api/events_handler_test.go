package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/techtree-api/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsStream(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	url := srv.URL + "/api/lessons/" + h.lessonID.String() + "/events?access_token=test-token"
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	group := notify.GroupForLesson(h.lessonID)
	require.Eventually(t, func() bool { return h.hub.Subscribers(group) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, h.hub.Publish(context.Background(), group, notify.Message{
		Type:    notify.TypeLessonChat,
		Payload: notify.ChatPayload{Role: "assistant", Content: "Channels synchronize goroutines."},
	}))

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var event, data string
	var sawPing bool
	deadline := time.After(2 * time.Second)
	for event == "" || data == "" || !sawPing {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream ended early")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == ": ping":
				sawPing = true
			}
		case <-deadline:
			t.Fatalf("timed out: event=%q data=%q ping=%v", event, data, sawPing)
		}
	}

	assert.Equal(t, notify.TypeLessonChat, event)
	assert.JSONEq(t, `{"role":"assistant","content":"Channels synchronize goroutines."}`, data)
}

func TestEventsStreamRejectsBadLessonID(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/lessons/xyz/events", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
