package onboarding

import (
	"errors"
	"strings"

	"github.com/phrazzld/techtree-api/internal/domain"
)

const (
	// MaxQuestions bounds the length of an assessment.
	MaxQuestions = 10

	// DefaultDifficulty is the level the first question targets.
	DefaultDifficulty = 1

	// SkippedAnswer is recorded in place of a skipped answer.
	SkippedAnswer = "[SKIPPED]"

	minDifficulty = 0
)

var maxDifficulty = len(domain.DifficultyLevels) - 1

// Score values the evaluator may assign.
const (
	ScoreIncorrect = 0.0
	ScorePartial   = 0.5
	ScoreCorrect   = 1.0
)

// ErrMissingTopic is returned when an assessment has no topic.
var ErrMissingTopic = errors.New("assessment topic is required")

// Assessment is the whole state of one onboarding assessment.
type Assessment struct {
	Topic                string    `json:"topic"`
	Questions            []string  `json:"questions_asked"`
	QuestionDifficulties []int     `json:"question_difficulties"`
	Answers              []string  `json:"answers"`
	Evaluations          []float64 `json:"answer_evaluations"`

	// CurrentQuestion is the question awaiting an answer, if any.
	CurrentQuestion           string `json:"current_question,omitempty"`
	CurrentQuestionDifficulty int    `json:"current_question_difficulty"`

	TargetDifficulty   int `json:"current_target_difficulty"`
	ConsecutiveCorrect int `json:"consecutive_correct_at_current_difficulty"`
	ConsecutiveWrong   int `json:"consecutive_wrong_at_current_difficulty"`

	Feedback       string            `json:"feedback,omitempty"`
	IsComplete     bool              `json:"is_complete"`
	KnowledgeLevel domain.Difficulty `json:"knowledge_level,omitempty"`
	Score          float64           `json:"score"`

	// StoppedEarly is set when two zero scores at the lowest level ended
	// the assessment.
	StoppedEarly bool `json:"stopped_early,omitempty"`
}

// New starts an assessment for topic.
func New(topic string) Assessment {
	return Assessment{Topic: strings.TrimSpace(topic), TargetDifficulty: DefaultDifficulty}
}

// Awaiting reports whether a question is waiting for an answer.
func (a Assessment) Awaiting() bool {
	return a.CurrentQuestion != "" && !a.IsComplete
}

// Difficulty returns the level the next question targets.
func (a Assessment) Difficulty() domain.Difficulty {
	d, ok := domain.DifficultyFromValue(a.TargetDifficulty)
	if !ok {
		return domain.DifficultyBeginner
	}
	return d
}

// AddQuestion records a newly asked question.
func (a *Assessment) AddQuestion(text string, difficulty int) {
	a.Questions = append(a.Questions, text)
	a.QuestionDifficulties = append(a.QuestionDifficulties, difficulty)
	a.CurrentQuestion = text
	a.CurrentQuestionDifficulty = difficulty
}

// ApplyAnswer records a graded answer and adapts the target difficulty: two
// correct answers in a row at one level promote, two wrong ones demote.
// Partial credit resets both streaks.
func (a *Assessment) ApplyAnswer(answer string, score float64, feedback string) {
	a.record(answer, score)
	a.Feedback = feedback

	switch {
	case score >= ScoreCorrect:
		a.ConsecutiveWrong = 0
		a.ConsecutiveCorrect++
		if a.ConsecutiveCorrect >= 2 && a.TargetDifficulty < maxDifficulty {
			a.TargetDifficulty++
			a.ConsecutiveCorrect = 0
			a.Feedback = joinFeedback(a.Feedback, "Difficulty increased due to consecutive correct answers.")
		}
	case score < ScorePartial:
		a.ConsecutiveCorrect = 0
		a.ConsecutiveWrong++
		if a.stopAtBottom() {
			return
		}
		a.demote()
	default:
		a.ConsecutiveCorrect = 0
		a.ConsecutiveWrong = 0
	}
	a.checkLength()
}

// ApplySkip records a skipped question as a zero score.
func (a *Assessment) ApplySkip() {
	a.record(SkippedAnswer, ScoreIncorrect)
	a.Feedback = "Question skipped."
	a.ConsecutiveCorrect = 0
	a.ConsecutiveWrong++
	if a.stopAtBottom() {
		return
	}
	a.demote()
	a.checkLength()
}

// Finalize computes the knowledge level from the scores and marks the
// assessment complete. It is idempotent.
func (a *Assessment) Finalize() {
	a.IsComplete = true
	a.CurrentQuestion = ""
	a.Score = a.percentage()

	switch {
	case a.StoppedEarly:
		a.KnowledgeLevel = domain.DifficultyBeginner
	case a.Score >= 75:
		a.KnowledgeLevel = domain.DifficultyAdvanced
	case a.Score >= 40:
		a.KnowledgeLevel = domain.DifficultyGoodKnowledge
	case a.Score >= 20:
		a.KnowledgeLevel = domain.DifficultyEarlyLearner
	default:
		a.KnowledgeLevel = domain.DifficultyBeginner
	}
}

func (a *Assessment) record(answer string, score float64) {
	a.Answers = append(a.Answers, answer)
	a.Evaluations = append(a.Evaluations, score)
	a.CurrentQuestion = ""
}

// stopAtBottom ends the assessment after two zero scores in a row at the
// lowest level.
func (a *Assessment) stopAtBottom() bool {
	n := len(a.Evaluations)
	if a.TargetDifficulty != minDifficulty || n < 2 ||
		a.Evaluations[n-1] != ScoreIncorrect || a.Evaluations[n-2] != ScoreIncorrect {
		return false
	}
	a.StoppedEarly = true
	a.Feedback = "Assessment ended early due to repeated incorrect answers at the lowest level."
	a.Finalize()
	return true
}

func (a *Assessment) demote() {
	if a.ConsecutiveWrong >= 2 && a.TargetDifficulty > minDifficulty {
		a.TargetDifficulty--
		a.ConsecutiveWrong = 0
	}
}

func (a *Assessment) checkLength() {
	if len(a.Answers) >= MaxQuestions {
		a.Finalize()
	}
}

func (a *Assessment) percentage() float64 {
	if len(a.Evaluations) == 0 {
		return 0
	}
	var total float64
	for _, s := range a.Evaluations {
		total += s
	}
	return total / float64(len(a.Evaluations)) * 100
}

func joinFeedback(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}
