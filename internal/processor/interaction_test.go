package processor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/llm"
	"github.com/phrazzld/techtree-api/internal/notify"
	"github.com/phrazzld/techtree-api/internal/quiz"
	"github.com/phrazzld/techtree-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInteraction(t *testing.T, f *fixture, graph Invoker) *Interaction {
	t.Helper()
	if graph == nil {
		graph = quiz.NewGraph(quiz.NewLLMGenerator(f.mock), f.store, quiz.DefaultConfig())
	}
	p, err := NewInteraction(graph, f.store, f.store, f.mock, f.relay, discardLogger())
	require.NoError(t, err)
	return p
}

// invokerFunc lets tests stand in for the quiz graph.
type invokerFunc func(ctx context.Context, st quiz.State) (quiz.State, quiz.NodeID, error)

func (fn invokerFunc) Invoke(ctx context.Context, st quiz.State) (quiz.State, quiz.NodeID, error) {
	return fn(ctx, st)
}

func answer(s string) *string { return &s }

func TestInteraction_QuizStartAsksFirstQuestion(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResponse(questionResponse(1))
	p := newInteraction(t, f, nil)

	out, err := p.Process(context.Background(), f.record(t, task.TypeLessonInteraction,
		InteractionInput{SubmissionType: SubmissionQuizStart}))
	require.NoError(t, err)

	res, ok := out.(QuizResult)
	require.True(t, ok)
	assert.False(t, res.QuizComplete)
	require.NotNil(t, res.CurrentQuestion)
	assert.Equal(t, "Question 1?", res.CurrentQuestion.QuestionText)
	assert.Equal(t, domain.DifficultyEarlyLearner, res.UpdatedState.Difficulty, "difficulty comes from the syllabus level")
	assert.True(t, res.UpdatedState.WaitingForUserInput)

	st, err := quiz.DecodeState(f.savedState(t))
	require.NoError(t, err)
	assert.Len(t, st.QuestionsAsked, 1)
	assert.Nil(t, st.UserAnswer)

	assert.Equal(t, []string{notify.TypeQuizQuestion}, f.pub.Types())
	assert.Equal(t, notify.GroupForLesson(f.lessonID), f.pub.Last().group)
}

func TestInteraction_QuizAnswerContinuesSession(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResponse(questionResponse(1))
	p := newInteraction(t, f, nil)
	ctx := context.Background()

	_, err := p.Process(ctx, f.record(t, task.TypeLessonInteraction, InteractionInput{SubmissionType: SubmissionQuizStart}))
	require.NoError(t, err)

	f.mock.AddResponse(evaluationResponse(true))
	f.mock.AddResponse(questionResponse(2))
	out, err := p.Process(ctx, f.record(t, task.TypeLessonInteraction,
		InteractionInput{SubmissionType: SubmissionQuizAnswer, UserAnswer: answer("A")}))
	require.NoError(t, err)

	res := out.(QuizResult)
	assert.Len(t, res.UpdatedState.AnswersGiven, 1)
	assert.Len(t, res.UpdatedState.QuestionsAsked, 2)
	require.NotNil(t, res.LastEvaluation)
	assert.True(t, res.LastEvaluation.IsCorrect)
	assert.Equal(t, "A", res.LastEvaluation.UserAnswer)

	st, err := quiz.DecodeState(f.savedState(t))
	require.NoError(t, err)
	assert.Len(t, st.AnswersGiven, 1)
	assert.Nil(t, st.UserAnswer)
	assert.Equal(t, []string{notify.TypeQuizQuestion, notify.TypeQuizQuestion}, f.pub.Types())
}

func TestInteraction_ReplayedAnswerIsNotGradedAgain(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResponse(questionResponse(1))
	p := newInteraction(t, f, nil)
	ctx := context.Background()

	_, err := p.Process(ctx, f.record(t, task.TypeLessonInteraction, InteractionInput{SubmissionType: SubmissionQuizStart}))
	require.NoError(t, err)

	f.mock.AddResponse(evaluationResponse(true))
	f.mock.AddResponse(questionResponse(2))
	rec := f.record(t, task.TypeLessonInteraction,
		InteractionInput{SubmissionType: SubmissionQuizAnswer, UserAnswer: answer("A")})
	first, err := p.Process(ctx, rec)
	require.NoError(t, err)
	calls := f.mock.CallCount()

	// The same task runs again, as after a stuck task is reset.
	again, err := p.Process(ctx, rec)
	require.NoError(t, err)

	assert.Equal(t, calls, f.mock.CallCount(), "no further model calls")
	want, err := json.Marshal(first)
	require.NoError(t, err)
	got, err := json.Marshal(again)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))

	st, err := quiz.DecodeState(f.savedState(t))
	require.NoError(t, err)
	assert.Len(t, st.AnswersGiven, 1)
	assert.Len(t, st.QuestionsAsked, 2)
	assert.Equal(t, first.(QuizResult).UpdatedState.CurrentQuestionIndex, st.CurrentQuestionIndex)
	require.NotNil(t, st.LastTaskID)
	assert.Equal(t, rec.ID, *st.LastTaskID)
	assert.Len(t, f.pub.Types(), 3, "the stored state is announced again")

	// A different task with the same answer does advance the quiz.
	f.mock.AddResponse(evaluationResponse(true))
	f.mock.AddResponse(questionResponse(3))
	_, err = p.Process(ctx, f.record(t, task.TypeLessonInteraction,
		InteractionInput{SubmissionType: SubmissionQuizAnswer, UserAnswer: answer("A")}))
	require.NoError(t, err)
	st, err = quiz.DecodeState(f.savedState(t))
	require.NoError(t, err)
	assert.Len(t, st.AnswersGiven, 2)
}

func TestInteraction_ReplayedStartKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResponse(questionResponse(1))
	p := newInteraction(t, f, nil)
	ctx := context.Background()

	rec := f.record(t, task.TypeLessonInteraction, InteractionInput{SubmissionType: SubmissionQuizStart})
	_, err := p.Process(ctx, rec)
	require.NoError(t, err)

	out, err := p.Process(ctx, rec)
	require.NoError(t, err)

	res := out.(QuizResult)
	require.NotNil(t, res.CurrentQuestion)
	assert.Equal(t, "Question 1?", res.CurrentQuestion.QuestionText)
	assert.Equal(t, 1, f.mock.CallCount())
}

func TestInteraction_AnswerOnEmptySlotAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	var seen quiz.State
	p := newInteraction(t, f, invokerFunc(func(_ context.Context, st quiz.State) (quiz.State, quiz.NodeID, error) {
		seen = st
		return st, quiz.NodeRecordResult, nil
	}))

	_, err := p.Process(context.Background(), f.record(t, task.TypeLessonInteraction,
		InteractionInput{SubmissionType: SubmissionQuizAnswer, UserAnswer: answer("B")}))
	require.NoError(t, err)

	assert.Equal(t, f.lessonID, seen.LessonID)
	assert.Equal(t, f.userID, seen.UserID)
	assert.Equal(t, domain.DifficultyEarlyLearner, seen.Difficulty)
	require.NotNil(t, seen.UserAnswer)
	assert.Equal(t, "B", *seen.UserAnswer)
}

func TestInteraction_SoftErrorFailsTaskAfterNotifying(t *testing.T) {
	f := newFixture(t)
	missing := uuid.New()
	p := newInteraction(t, f, nil)
	rec := f.record(t, task.TypeLessonInteraction, InteractionInput{SubmissionType: SubmissionQuizStart})
	rec.LessonID = &missing

	out, err := p.Process(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, task.IsPermanent(err))
	assert.ErrorIs(t, err, ErrQuizState)

	res := out.(QuizResult)
	assert.Contains(t, res.Error, "not found")
	assert.True(t, res.QuizComplete)
	assert.Equal(t, []string{notify.TypeQuizError}, f.pub.Types())
	assert.Equal(t, 0, f.mock.CallCount())
}

func TestInteraction_SaveFailureIsPermanent(t *testing.T) {
	f := newFixture(t)
	f.mock.AddResponse(questionResponse(1))
	boom := errors.New("disk full")
	f.store.SaveStateFn = func(context.Context, uuid.UUID, uuid.UUID, json.RawMessage) error { return boom }
	p := newInteraction(t, f, nil)

	out, err := p.Process(context.Background(), f.record(t, task.TypeLessonInteraction,
		InteractionInput{SubmissionType: SubmissionQuizStart}))
	assert.Nil(t, out)
	assert.ErrorIs(t, err, boom)
	assert.True(t, task.IsPermanent(err))
	assert.NotErrorIs(t, err, ErrQuizState)
	assert.Empty(t, f.pub.Types(), "nothing is announced for an unsaved state")
}

func TestInteraction_DriverErrors(t *testing.T) {
	f := newFixture(t)
	start := InteractionInput{SubmissionType: SubmissionQuizStart}

	p := newInteraction(t, f, invokerFunc(func(_ context.Context, st quiz.State) (quiz.State, quiz.NodeID, error) {
		return st, quiz.NodeInitialize, context.Canceled
	}))
	_, err := p.Process(context.Background(), f.record(t, task.TypeLessonInteraction, start))
	require.Error(t, err)
	assert.False(t, task.IsPermanent(err), "an interrupted invocation is retried")

	p = newInteraction(t, f, invokerFunc(func(_ context.Context, st quiz.State) (quiz.State, quiz.NodeID, error) {
		return st, quiz.NodeGenerateQuestion, quiz.ErrStepBudgetExceeded
	}))
	_, err = p.Process(context.Background(), f.record(t, task.TypeLessonInteraction, start))
	assert.True(t, task.IsPermanent(err))
}

func TestInteraction_InvalidInput(t *testing.T) {
	f := newFixture(t)
	p := newInteraction(t, f, nil)

	tests := []struct {
		name  string
		input InteractionInput
	}{
		{"unknown submission type", InteractionInput{SubmissionType: "dance"}},
		{"answer without text", InteractionInput{SubmissionType: SubmissionQuizAnswer, UserAnswer: answer("  ")}},
		{"answer missing", InteractionInput{SubmissionType: SubmissionQuizAnswer}},
		{"chat without message", InteractionInput{SubmissionType: SubmissionChat}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), f.record(t, task.TypeLessonInteraction, tc.input))
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.True(t, task.IsPermanent(err))
		})
	}

	rec := f.record(t, task.TypeLessonInteraction, InteractionInput{SubmissionType: SubmissionQuizStart})
	rec.UserID = nil
	_, err := p.Process(context.Background(), rec)
	assert.ErrorIs(t, err, ErrMissingRefs)
	assert.True(t, task.IsPermanent(err))
}

func TestInteraction_Chat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AppendMessage(ctx, &domain.ConversationMessage{
		UserID: f.userID, LessonID: f.lessonID, Role: domain.RoleUser, Content: "hi",
	}))
	require.NoError(t, f.store.AppendMessage(ctx, &domain.ConversationMessage{
		UserID: f.userID, LessonID: f.lessonID, Role: domain.RoleAssistant, Content: "hello",
	}))
	f.mock.AddResponse(llm.JSONResponse(map[string]any{"response": "A channel is a typed pipe."}))
	p := newInteraction(t, f, nil)

	out, err := p.Process(ctx, f.record(t, task.TypeLessonInteraction,
		InteractionInput{SubmissionType: SubmissionChat, UserMessage: "What is a channel?"}))
	require.NoError(t, err)
	assert.Equal(t, ChatResult{Response: "A channel is a typed pipe."}, out)

	req, ok := f.mock.LastCall()
	require.True(t, ok)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, llm.RoleAssistant, req.Messages[1].Role)
	assert.Equal(t, "What is a channel?", req.Messages[2].Content)
	assert.Contains(t, req.System, "Channels connect goroutines.")

	history, err := f.store.RecentMessages(ctx, f.userID, f.lessonID, 10)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, domain.RoleAssistant, history[3].Role)
	assert.Equal(t, []string{notify.TypeLessonChat}, f.pub.Types())
}

func TestInteraction_ChatProviderErrorStoresNothing(t *testing.T) {
	f := newFixture(t)
	p := newInteraction(t, f, nil)

	_, err := p.Process(context.Background(), f.record(t, task.TypeLessonInteraction,
		InteractionInput{SubmissionType: SubmissionChat, UserMessage: "hello?"}))
	require.Error(t, err)
	assert.False(t, task.IsPermanent(err))

	history, err := f.store.RecentMessages(context.Background(), f.userID, f.lessonID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}
