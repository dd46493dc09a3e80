package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/techtree-api/internal/onboarding"
	"github.com/phrazzld/techtree-api/internal/task"
)

// OnboardingInput is the input_data of an onboarding_assessment task.
type OnboardingInput struct {
	Topic           string                 `json:"topic"`
	AssessmentState *onboarding.Assessment `json:"assessment_state,omitempty"`
	Answer          string                 `json:"answer,omitempty"`
	Skip            bool                   `json:"skip,omitempty"`
}

// OnboardingResult is the result of an onboarding_assessment task.
type OnboardingResult struct {
	AssessmentState onboarding.Assessment `json:"assessment_state"`
	Question        string                `json:"question,omitempty"`
	Difficulty      int                   `json:"difficulty"`
	IsComplete      bool                  `json:"is_complete"`
	Feedback        string                `json:"feedback,omitempty"`
	KnowledgeLevel  string                `json:"knowledge_level,omitempty"`
}

// Onboarding processes onboarding_assessment tasks.
type Onboarding struct {
	assessor *onboarding.Assessor
	logger   *slog.Logger
}

// NewOnboarding creates the onboarding assessment processor.
func NewOnboarding(assessor *onboarding.Assessor, logger *slog.Logger) (*Onboarding, error) {
	if assessor == nil {
		return nil, ErrNilProvider
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &Onboarding{assessor: assessor, logger: logger.With("processor", task.TypeOnboardingAssessment)}, nil
}

// Process implements task.Processor.
func (p *Onboarding) Process(ctx context.Context, rec *task.Record) (any, error) {
	var in OnboardingInput
	if err := rec.DecodeInput(&in); err != nil {
		return nil, task.Permanentf("%w: %w", ErrInvalidInput, err)
	}

	a := onboarding.New(in.Topic)
	if in.AssessmentState != nil {
		a = *in.AssessmentState
		if strings.TrimSpace(a.Topic) == "" {
			a.Topic = strings.TrimSpace(in.Topic)
		}
	}
	if a.Topic == "" {
		return nil, task.Permanentf("%w: %w", ErrInvalidInput, onboarding.ErrMissingTopic)
	}

	next, err := p.assessor.Step(ctx, a, onboarding.Input{Answer: in.Answer, Skip: in.Skip})
	if err != nil {
		return nil, fmt.Errorf("assessment step failed: %w", err)
	}

	p.logger.Debug("assessment advanced",
		"task_id", rec.ID,
		"topic", next.Topic,
		"answered", len(next.Answers),
		"complete", next.IsComplete)

	return OnboardingResult{
		AssessmentState: next,
		Question:        next.CurrentQuestion,
		Difficulty:      next.CurrentQuestionDifficulty,
		IsComplete:      next.IsComplete,
		Feedback:        next.Feedback,
		KnowledgeLevel:  string(next.KnowledgeLevel),
	}, nil
}
