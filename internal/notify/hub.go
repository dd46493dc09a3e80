package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Hub is an in-process Publisher that fans messages out to subscribers of a
// group. A subscriber whose buffer is full misses the message.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
	logger *slog.Logger
}

type subscription struct {
	ch   chan Message
	once sync.Once
}

// NewHub creates a hub whose subscriber channels hold buffer messages.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: buffer,
		logger: logger.With("component", "notify_hub"),
	}
}

// Subscribe registers a subscriber for group. The returned cancel function
// unregisters it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(group string) (<-chan Message, func()) {
	sub := &subscription{ch: make(chan Message, h.buffer)}

	h.mu.Lock()
	if h.subs[group] == nil {
		h.subs[group] = make(map[*subscription]struct{})
	}
	h.subs[group][sub] = struct{}{}
	count := len(h.subs[group])
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "group", group, "subscriber_count", count)

	cancel := func() {
		h.mu.Lock()
		delete(h.subs[group], sub)
		if len(h.subs[group]) == 0 {
			delete(h.subs, group)
		}
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
	return sub.ch, cancel
}

// Subscribers returns the number of subscribers of group.
func (h *Hub) Subscribers(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[group])
}

// Publish delivers msg to the current subscribers of group without blocking.
func (h *Hub) Publish(_ context.Context, group string, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.subs[group]
	if len(subs) == 0 {
		h.logger.Debug("no subscribers for group", "group", group, "type", msg.Type)
		return nil
	}

	for sub := range subs {
		select {
		case sub.ch <- msg:
		default:
			h.logger.Warn("subscriber buffer full, dropping message",
				"group", group,
				"type", msg.Type)
		}
	}
	return nil
}
