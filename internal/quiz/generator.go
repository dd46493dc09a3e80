package quiz

import (
	"context"
	"fmt"
	"text/template"

	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/llm"
)

// QuestionRequest carries what question generation is grounded on.
type QuestionRequest struct {
	LessonContent      string
	Difficulty         domain.Difficulty
	PreviousSubtopics  []string
	IncorrectSubtopics []string
}

// EvaluationRequest carries one answer to grade.
type EvaluationRequest struct {
	QuestionText  string
	CorrectAnswer string
	UserAnswer    string
	Subtopics     []string
}

// Generator produces the structured outputs the quiz nodes consume. The
// returned maps are decoded JSON objects; nodes check them for the keys
// they need.
type Generator interface {
	GenerateQuestion(ctx context.Context, req QuestionRequest) (map[string]any, error)
	RetryQuestion(ctx context.Context, req QuestionRequest) (map[string]any, error)
	EvaluateAnswer(ctx context.Context, req EvaluationRequest) (map[string]any, error)
}

var questionSchema = &llm.Schema{
	Name:        "quiz-question",
	Description: "A multiple-choice quiz question",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question_text":  map[string]any{"type": "string"},
			"options":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 2},
			"correct_answer": map[string]any{"type": "string"},
			"subtopics":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"difficulty":     map[string]any{"type": "string"},
		},
		"required":             []string{"question_text", "options", "correct_answer", "subtopics", "difficulty"},
		"additionalProperties": false,
	},
}

var evaluationSchema = &llm.Schema{
	Name:        "quiz-evaluation",
	Description: "The evaluation of a learner's answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_correct":        map[string]any{"type": "boolean"},
			"feedback":          map[string]any{"type": "string"},
			"subtopics_covered": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"subtopics_missed":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"prompt_for_detail": map[string]any{"type": "boolean"},
		},
		"required":             []string{"is_correct", "feedback", "subtopics_covered", "subtopics_missed", "prompt_for_detail"},
		"additionalProperties": false,
	},
}

const (
	questionMaxTokens   = 1024
	evaluationMaxTokens = 1024
)

// LLMGenerator implements Generator on top of an llm.Provider.
type LLMGenerator struct {
	provider llm.Provider
}

// NewLLMGenerator creates a generator backed by provider.
func NewLLMGenerator(provider llm.Provider) *LLMGenerator {
	return &LLMGenerator{provider: provider}
}

func (g *LLMGenerator) GenerateQuestion(ctx context.Context, req QuestionRequest) (map[string]any, error) {
	return g.run(llm.WithPurpose(ctx, "quiz_question"), generateQuestionPrompt, req, questionSchema, questionMaxTokens)
}

func (g *LLMGenerator) RetryQuestion(ctx context.Context, req QuestionRequest) (map[string]any, error) {
	return g.run(llm.WithPurpose(ctx, "quiz_retry_question"), retryQuestionPrompt, req, questionSchema, questionMaxTokens)
}

func (g *LLMGenerator) EvaluateAnswer(ctx context.Context, req EvaluationRequest) (map[string]any, error) {
	return g.run(llm.WithPurpose(ctx, "quiz_evaluation"), evaluateAnswerPrompt, req, evaluationSchema, evaluationMaxTokens)
}

func (g *LLMGenerator) run(ctx context.Context, t *template.Template, data any, schema *llm.Schema, maxTokens int) (map[string]any, error) {
	prompt, err := render(t, data)
	if err != nil {
		return nil, fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return llm.GenerateObject(ctx, g.provider, llm.UserPrompt(prompt, schema, maxTokens))
}
