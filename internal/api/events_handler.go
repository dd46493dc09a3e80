package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/techtree-api/internal/api/shared"
	"github.com/phrazzld/techtree-api/internal/notify"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
)

// DefaultHeartbeatInterval keeps idle event streams open through proxies.
const DefaultHeartbeatInterval = 25 * time.Second

// Subscriber hands out per-group message streams.
type Subscriber interface {
	Subscribe(group string) (<-chan notify.Message, func())
}

var _ Subscriber = (*notify.Hub)(nil)

// EventsHandler streams relay messages for a lesson as server-sent events.
type EventsHandler struct {
	hub       Subscriber
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventsHandler creates a new EventsHandler. A non-positive heartbeat
// uses DefaultHeartbeatInterval.
func NewEventsHandler(hub Subscriber, heartbeat time.Duration, logger *slog.Logger) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &EventsHandler{
		hub:       hub,
		heartbeat: heartbeat,
		logger:    logger.With("handler", "events"),
	}
}

// Stream handles GET /api/lessons/{lessonID}/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, lessonID, ok := handleUserIDAndPathUUID(w, r, "lessonID", log)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	group := notify.GroupForLesson(lessonID)
	msgs, cancel := h.hub.Subscribe(group)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log.Debug("event stream opened", "user_id", userID, "group", group)
	defer log.Debug("event stream closed", "user_id", userID, "group", group)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-msgs:
			if !open {
				return
			}
			if err := writeEvent(w, msg); err != nil {
				log.Debug("failed to write event", "group", group, "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes msg as one SSE event named after its type.
func writeEvent(w http.ResponseWriter, msg notify.Message) error {
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
	return err
}
