package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/quiz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	group string
	msg   Message
}

// recordingPublisher keeps every published message.
type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, group string, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{group: group, msg: msg})
	return p.err
}

func (p *recordingPublisher) Sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRelay_Notify(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	relay := NewRelay(pub, 5, time.Second, discardLogger())
	lessonID := uuid.New()

	kind := relay.Notify(context.Background(), lessonID, quiz.State{
		QuestionsAsked:       []quiz.Question{question("q1")},
		CurrentQuestionIndex: 1,
	})

	assert.Equal(t, KindQuestion, kind)
	sent := pub.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, GroupForLesson(lessonID), sent[0].group)
	assert.Equal(t, TypeQuizQuestion, sent[0].msg.Type)
}

func TestRelay_NotifyNothingToSay(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	relay := NewRelay(pub, 5, 0, discardLogger())

	right := quiz.Evaluation{IsCorrect: true}
	kind := relay.Notify(context.Background(), uuid.New(), quiz.State{
		QuestionsAsked: []quiz.Question{question("q1")},
		AnswersGiven:   []quiz.Evaluation{right},
		LastEvaluation: &right,
	})

	assert.Equal(t, KindNone, kind)
	assert.Empty(t, pub.Sent())
}

func TestRelay_PublishErrorIsLoggedNotReturned(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{err: errors.New("broker down")}
	log, buf := logger.NewCaptureLogger()
	relay := NewRelay(pub, 5, time.Second, log)

	kind := relay.Notify(context.Background(), uuid.New(), quiz.State{ErrorMessage: "boom"})

	assert.Equal(t, KindError, kind)
	assert.Contains(t, buf.String(), "failed to publish notification")
	assert.Contains(t, buf.String(), "broker down")
}

func TestRelay_ChatAndFailures(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	relay := NewRelay(pub, 5, 0, discardLogger())
	lessonID, taskID := uuid.New(), uuid.New()

	relay.Chat(context.Background(), lessonID, "Closures capture variables.")
	relay.QuizError(context.Background(), lessonID, "failed to save quiz state")
	relay.TaskFailed(context.Background(), lessonID, taskID, "lesson_interaction", "provider unavailable")

	sent := pub.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, Message{Type: TypeLessonChat, Payload: ChatPayload{Role: "assistant", Content: "Closures capture variables."}}, sent[0].msg)
	assert.Equal(t, Message{Type: TypeQuizError, Payload: ErrorPayload{Error: "failed to save quiz state"}}, sent[1].msg)
	assert.Equal(t, Message{Type: TypeTaskFailed, Payload: TaskFailedPayload{TaskID: taskID, TaskType: "lesson_interaction", Error: "provider unavailable"}}, sent[2].msg)
	for _, s := range sent {
		assert.Equal(t, GroupForLesson(lessonID), s.group)
	}
}

func TestFanout(t *testing.T) {
	t.Parallel()

	ok := &recordingPublisher{}
	failing := &recordingPublisher{err: errors.New("first failure")}
	alsoFailing := &recordingPublisher{err: errors.New("second failure")}

	err := Fanout{failing, ok, alsoFailing}.Publish(context.Background(), "g", Message{Type: TypeLessonChat})

	assert.EqualError(t, err, "first failure")
	assert.Len(t, ok.Sent(), 1)
	assert.Len(t, alsoFailing.Sent(), 1)
}
