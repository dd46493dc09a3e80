package onboarding

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/llm"
)

// Generator asks questions and grades answers for an assessment.
type Generator interface {
	GenerateQuestion(ctx context.Context, topic string, difficulty int, asked []string) (string, error)
	EvaluateAnswer(ctx context.Context, topic, question, answer string) (score float64, feedback string, err error)
}

var questionSchema = &llm.Schema{
	Name:        "onboarding-question",
	Description: "A short-answer knowledge assessment question",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{"type": "string", "minLength": 1},
		},
		"required":             []string{"question"},
		"additionalProperties": false,
	},
}

var evaluationSchema = &llm.Schema{
	Name:        "onboarding-evaluation",
	Description: "The grade of a short answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":    map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"feedback": map[string]any{"type": "string"},
		},
		"required":             []string{"score", "feedback"},
		"additionalProperties": false,
	},
}

var (
	questionPrompt = template.Must(template.New("onboarding_question").Parse(`
You are an expert tutor assessing how well a learner knows {{.Topic}}.
Ask one question on the topic that needs only a short answer. Do not ask a
question whose answer is the name of the topic, and do not repeat a question
that was already asked.

The question should be at {{.DifficultyName}} difficulty ({{.Difficulty}} on a
scale from 0 to 3).

Questions already asked:
{{range .Asked}}- {{.}}
{{else}}(none)
{{end}}
Respond with a JSON object with the key "question".
`))

	evaluationPrompt = template.Must(template.New("onboarding_evaluation").Parse(`
You are an expert tutor in {{.Topic}}. Grade the learner's short answer.

Question: {{.Question}}
Answer: {{.Answer}}

Classify the answer as correct (1), partially correct (0.5) or incorrect (0).
"I don't know" and similar answers are incorrect; give the correct answer as
feedback. Keep feedback to one or two sentences.

Respond with a JSON object with the keys "score" and "feedback".
`))
)

// LLMGenerator implements Generator on an llm.Provider.
type LLMGenerator struct {
	provider llm.Provider
}

// NewLLMGenerator creates a generator backed by provider.
func NewLLMGenerator(provider llm.Provider) *LLMGenerator {
	return &LLMGenerator{provider: provider}
}

func (g *LLMGenerator) GenerateQuestion(ctx context.Context, topic string, difficulty int, asked []string) (string, error) {
	name := domain.DifficultyBeginner
	if d, ok := domain.DifficultyFromValue(difficulty); ok {
		name = d
	}
	prompt, err := render(questionPrompt, map[string]any{
		"Topic":          topic,
		"Difficulty":     difficulty,
		"DifficultyName": name,
		"Asked":          asked,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Question string `json:"question"`
	}
	ctx = llm.WithPurpose(ctx, "onboarding_question")
	if err := llm.GenerateInto(ctx, g.provider, llm.UserPrompt(prompt, questionSchema, 512), &out); err != nil {
		return "", err
	}
	q := strings.TrimSpace(out.Question)
	if q == "" {
		return "", fmt.Errorf("empty assessment question")
	}
	return q, nil
}

func (g *LLMGenerator) EvaluateAnswer(ctx context.Context, topic, question, answer string) (float64, string, error) {
	prompt, err := render(evaluationPrompt, map[string]any{
		"Topic":    topic,
		"Question": question,
		"Answer":   answer,
	})
	if err != nil {
		return 0, "", err
	}

	var out struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	ctx = llm.WithPurpose(ctx, "onboarding_evaluation")
	if err := llm.GenerateInto(ctx, g.provider, llm.UserPrompt(prompt, evaluationSchema, 512), &out); err != nil {
		return 0, "", err
	}
	return clampScore(out.Score), out.Feedback, nil
}

// clampScore snaps a score to the nearest allowed value.
func clampScore(s float64) float64 {
	switch {
	case s >= 0.75:
		return ScoreCorrect
	case s >= 0.25:
		return ScorePartial
	default:
		return ScoreIncorrect
	}
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
