// Package kafka publishes relay notifications to a Kafka topic. The message
// key is the notification group so every message for a lesson lands on the
// same partition in order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/techtree-api/internal/notify"
	kgo "github.com/segmentio/kafka-go"
)

// Writer is the part of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// envelope is the record value written to the topic.
type envelope struct {
	Group   string `json:"group"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	SentAt  int64  `json:"sent_at"`
}

// Publisher implements notify.Publisher.
type Publisher struct {
	writer  Writer
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

var _ notify.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher writing to topic on the comma separated
// brokers.
func NewPublisher(brokersCSV, topic string, timeout time.Duration, logger *slog.Logger) (*Publisher, error) {
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	w := &kgo.Writer{
		Addr:                   kgo.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kgo.Hash{},
		RequiredAcks:           kgo.RequireOne,
		AllowAutoTopicCreation: true,
	}
	logger.Info("using kafka notification publisher", "brokers", brokers, "topic", topic)
	return NewPublisherWithWriter(w, timeout, logger), nil
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w Writer, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Publisher{
		writer:  w,
		timeout: timeout,
		logger:  logger.With("component", "kafka_publisher"),
		now:     time.Now,
	}
}

// Publish writes msg keyed by group.
func (p *Publisher) Publish(ctx context.Context, group string, msg notify.Message) error {
	now := p.now()
	b, err := json.Marshal(envelope{
		Group:   group,
		Type:    msg.Type,
		Payload: msg.Payload,
		SentAt:  now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(group),
		Value: b,
		Time:  now,
		Headers: []kgo.Header{
			{Key: "type", Value: []byte(msg.Type)},
		},
	}); err != nil {
		return fmt.Errorf("failed to write notification to kafka: %w", err)
	}

	p.logger.Debug("notification written", "group", group, "type", msg.Type)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error { return p.writer.Close() }

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
