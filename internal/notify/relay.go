package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/quiz"
)

// Publisher delivers a message to every subscriber of group.
type Publisher interface {
	Publish(ctx context.Context, group string, msg Message) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, group string, msg Message) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, group string, msg Message) error {
	return f(ctx, group, msg)
}

// Relay publishes quiz and task notifications. Publish failures are logged
// and never returned: delivery is best effort.
type Relay struct {
	pub            Publisher
	totalQuestions int
	timeout        time.Duration
	logger         *slog.Logger
}

// NewRelay creates a relay. totalQuestions is reported in quiz payloads;
// timeout bounds each publish (zero means no bound).
func NewRelay(pub Publisher, totalQuestions int, timeout time.Duration, logger *slog.Logger) *Relay {
	return &Relay{
		pub:            pub,
		totalQuestions: totalQuestions,
		timeout:        timeout,
		logger:         logger.With("component", "notify_relay"),
	}
}

// Notify classifies st and publishes at most one message to the lesson's
// group. It returns the kind it chose.
func (r *Relay) Notify(ctx context.Context, lessonID uuid.UUID, st quiz.State) Kind {
	kind := Classify(st)
	msg, ok := Build(st, r.totalQuestions)
	if !ok {
		r.logger.Debug("no notification for quiz state",
			"lesson_id", lessonID,
			"questions", len(st.QuestionsAsked),
			"answers", len(st.AnswersGiven))
		return kind
	}
	r.send(ctx, GroupForLesson(lessonID), msg)
	return kind
}

// Chat publishes a tutor reply to the lesson's group.
func (r *Relay) Chat(ctx context.Context, lessonID uuid.UUID, reply string) {
	r.send(ctx, GroupForLesson(lessonID), Message{
		Type:    TypeLessonChat,
		Payload: ChatPayload{Role: "assistant", Content: reply},
	})
}

// QuizError publishes a quiz.error message outside of a graph invocation,
// for instance when the session state could not be saved.
func (r *Relay) QuizError(ctx context.Context, lessonID uuid.UUID, errMsg string) {
	r.send(ctx, GroupForLesson(lessonID), Message{Type: TypeQuizError, Payload: ErrorPayload{Error: errMsg}})
}

// TaskFailed publishes a task.failed message to the lesson's group.
func (r *Relay) TaskFailed(ctx context.Context, lessonID, taskID uuid.UUID, taskType, errMsg string) {
	r.send(ctx, GroupForLesson(lessonID), Message{
		Type:    TypeTaskFailed,
		Payload: TaskFailedPayload{TaskID: taskID, TaskType: taskType, Error: errMsg},
	})
}

func (r *Relay) send(ctx context.Context, group string, msg Message) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.pub.Publish(ctx, group, msg); err != nil {
		r.logger.Error("failed to publish notification",
			"error", err,
			"group", group,
			"type", msg.Type)
		return
	}
	r.logger.Info("notification published", "group", group, "type", msg.Type)
}

// Fanout publishes to every publisher in order. All publishers are tried; the
// first error is returned.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, group string, msg Message) error {
	var firstErr error
	for _, p := range f {
		if err := p.Publish(ctx, group, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
