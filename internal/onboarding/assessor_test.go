package onboarding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	scores    []float64
	genErr    error
	evalErr   error
	questions int
	evals     int
	lastAsked []string
	lastLevel int
}

func (f *fakeGenerator) GenerateQuestion(_ context.Context, _ string, difficulty int, asked []string) (string, error) {
	if f.genErr != nil {
		return "", f.genErr
	}
	f.questions++
	f.lastAsked = asked
	f.lastLevel = difficulty
	return fmt.Sprintf("Question %d?", f.questions), nil
}

func (f *fakeGenerator) EvaluateAnswer(_ context.Context, _, _, _ string) (float64, string, error) {
	if f.evalErr != nil {
		return 0, "", f.evalErr
	}
	score := ScoreCorrect
	if f.evals < len(f.scores) {
		score = f.scores[f.evals]
	}
	f.evals++
	return score, "graded", nil
}

func newAssessor(gen Generator) *Assessor {
	return NewAssessor(gen, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStep_FirstQuestion(t *testing.T) {
	gen := &fakeGenerator{}
	a, err := newAssessor(gen).Step(context.Background(), New("Go"), Input{})
	require.NoError(t, err)

	assert.Equal(t, "Question 1?", a.CurrentQuestion)
	assert.Equal(t, []string{"Question 1?"}, a.Questions)
	assert.Equal(t, []int{DefaultDifficulty}, a.QuestionDifficulties)
	assert.True(t, a.Awaiting())
	assert.Equal(t, 0, gen.evals)
}

func TestStep_AnswerThenNextQuestion(t *testing.T) {
	gen := &fakeGenerator{}
	s := newAssessor(gen)
	ctx := context.Background()

	a, err := s.Step(ctx, New("Go"), Input{})
	require.NoError(t, err)
	a, err = s.Step(ctx, a, Input{Answer: "goroutines"})
	require.NoError(t, err)

	assert.Equal(t, []string{"goroutines"}, a.Answers)
	assert.Equal(t, []float64{1}, a.Evaluations)
	assert.Equal(t, "graded", a.Feedback)
	assert.Equal(t, "Question 2?", a.CurrentQuestion)
	assert.Equal(t, []string{"Question 1?"}, gen.lastAsked[:1])
}

func TestStep_EmptyInputRepresentsQuestion(t *testing.T) {
	gen := &fakeGenerator{}
	s := newAssessor(gen)
	a, err := s.Step(context.Background(), New("Go"), Input{})
	require.NoError(t, err)

	again, err := s.Step(context.Background(), a, Input{Answer: "   "})
	require.NoError(t, err)
	assert.Equal(t, a.CurrentQuestion, again.CurrentQuestion)
	assert.Equal(t, 1, gen.questions)
	assert.Equal(t, 0, gen.evals)
}

func TestStep_RunsToCompletion(t *testing.T) {
	gen := &fakeGenerator{}
	s := newAssessor(gen)
	a, err := s.Step(context.Background(), New("Go"), Input{})
	require.NoError(t, err)

	for !a.IsComplete {
		a, err = s.Step(context.Background(), a, Input{Answer: "yes"})
		require.NoError(t, err)
	}
	assert.Len(t, a.Answers, MaxQuestions)
	assert.Equal(t, MaxQuestions, gen.questions)
	assert.Equal(t, 100.0, a.Score)
	assert.Equal(t, "Advanced", string(a.KnowledgeLevel))
}

func TestStep_CompletedIsUnchanged(t *testing.T) {
	gen := &fakeGenerator{}
	a := New("Go")
	a.Finalize()
	out, err := newAssessor(gen).Step(context.Background(), a, Input{Answer: "x"})
	require.NoError(t, err)
	assert.Equal(t, a, out)
	assert.Equal(t, 0, gen.questions)
}

func TestStep_Errors(t *testing.T) {
	boom := errors.New("llm down")

	_, err := newAssessor(&fakeGenerator{}).Step(context.Background(), Assessment{}, Input{})
	assert.ErrorIs(t, err, ErrMissingTopic)

	_, err = newAssessor(&fakeGenerator{genErr: boom}).Step(context.Background(), New("Go"), Input{})
	assert.ErrorIs(t, err, boom)

	a := New("Go")
	a.AddQuestion("pending?", 1)
	out, err := newAssessor(&fakeGenerator{evalErr: boom}).Step(context.Background(), a, Input{Answer: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, a, out, "failed step leaves the assessment unchanged")
}

func TestStep_DoesNotMutateInput(t *testing.T) {
	s := newAssessor(&fakeGenerator{})
	a, err := s.Step(context.Background(), New("Go"), Input{})
	require.NoError(t, err)
	before := a.clone()

	_, err = s.Step(context.Background(), a, Input{Skip: true})
	require.NoError(t, err)
	assert.Equal(t, before, a)
}
