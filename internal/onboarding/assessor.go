package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Input is one learner action.
type Input struct {
	Answer string
	Skip   bool
}

// Assessor advances assessments with a Generator.
type Assessor struct {
	gen    Generator
	logger *slog.Logger
}

// NewAssessor creates an Assessor.
func NewAssessor(gen Generator, logger *slog.Logger) *Assessor {
	return &Assessor{gen: gen, logger: logger.With("component", "onboarding_assessor")}
}

// Step applies in to a, then asks the next question unless the assessment
// finished. An input with neither answer nor skip re-presents the pending
// question. Generator errors leave a unchanged.
func (s *Assessor) Step(ctx context.Context, a Assessment, in Input) (Assessment, error) {
	if strings.TrimSpace(a.Topic) == "" {
		return a, ErrMissingTopic
	}
	if a.IsComplete {
		return a, nil
	}

	next := a.clone()
	answer := strings.TrimSpace(in.Answer)

	if next.Awaiting() {
		switch {
		case in.Skip:
			next.ApplySkip()
		case answer != "":
			score, feedback, err := s.gen.EvaluateAnswer(ctx, next.Topic, next.CurrentQuestion, answer)
			if err != nil {
				return a, fmt.Errorf("evaluate assessment answer: %w", err)
			}
			next.ApplyAnswer(answer, score, feedback)
		default:
			return next, nil
		}
	}

	if next.IsComplete {
		s.logger.Info("assessment complete",
			"topic", next.Topic,
			"level", next.KnowledgeLevel,
			"score", next.Score,
			"answers", len(next.Answers),
			"stopped_early", next.StoppedEarly)
		return next, nil
	}

	question, err := s.gen.GenerateQuestion(ctx, next.Topic, next.TargetDifficulty, next.Questions)
	if err != nil {
		return a, fmt.Errorf("generate assessment question: %w", err)
	}
	next.AddQuestion(question, next.TargetDifficulty)

	s.logger.Debug("assessment question asked",
		"topic", next.Topic,
		"question_number", len(next.Questions),
		"difficulty", next.TargetDifficulty)
	return next, nil
}

func (a Assessment) clone() Assessment {
	a.Questions = append([]string(nil), a.Questions...)
	a.QuestionDifficulties = append([]int(nil), a.QuestionDifficulties...)
	a.Answers = append([]string(nil), a.Answers...)
	a.Evaluations = append([]float64(nil), a.Evaluations...)
	return a
}
