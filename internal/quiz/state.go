package quiz

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
)

// Question is one generated multiple-choice question.
type Question struct {
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Subtopics     []string `json:"subtopics"`
	Difficulty    string   `json:"difficulty"`
}

// Evaluation is the graded result of one answer.
type Evaluation struct {
	// QuestionIndex is the zero-based index of the question in the current round.
	QuestionIndex    int      `json:"question_index"`
	UserAnswer       string   `json:"user_answer"`
	IsCorrect        bool     `json:"is_correct"`
	Feedback         string   `json:"feedback"`
	SubtopicsCovered []string `json:"subtopics_covered"`
	SubtopicsMissed  []string `json:"subtopics_missed"`
	PromptForDetail  bool     `json:"prompt_for_detail"`
}

// State is everything the quiz graph knows about one session. The zero value
// plus a lesson and user id is a valid fresh session.
type State struct {
	LessonID      uuid.UUID         `json:"lesson_id"`
	UserID        uuid.UUID         `json:"user_id"`
	Difficulty    domain.Difficulty `json:"difficulty,omitempty"`
	LessonContent string            `json:"lesson_content,omitempty"`

	QuestionsAsked []Question   `json:"questions_asked"`
	AnswersGiven   []Evaluation `json:"answers_given"`

	// IncorrectSubtopics is a set kept as a sorted, duplicate-free list. It
	// survives retry rounds.
	IncorrectSubtopics []string `json:"incorrect_subtopics"`

	RetryCount           int `json:"retry_count"`
	CurrentQuestionIndex int `json:"current_question_index"`

	// UserAnswer is the answer awaiting evaluation. nil means no answer.
	UserAnswer *string `json:"user_answer,omitempty"`

	QuizComplete bool     `json:"quiz_complete"`
	FinalScore   *float64 `json:"final_score,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`

	// WaitingForUserInput mirrors the sink of the last invocation for
	// clients. Routing never reads it.
	WaitingForUserInput bool `json:"waiting_for_user_input"`

	// LastEvaluation is the evaluation produced by the most recent
	// invocation, if any. It outlives a retry reset of AnswersGiven so the
	// learner still sees feedback for the answer that triggered the retry.
	LastEvaluation *Evaluation `json:"last_evaluation,omitempty"`

	// LastTaskID is the task whose invocation produced this state. A task
	// that is run again finds its own id here and must not advance the quiz.
	LastTaskID *uuid.UUID `json:"last_task_id,omitempty"`
}

// NewSession returns the state that starts a quiz for the learner.
func NewSession(lessonID, userID uuid.UUID, difficulty domain.Difficulty) State {
	return State{LessonID: lessonID, UserID: userID, Difficulty: difficulty}
}

// DecodeState parses a stored state blob. An empty blob yields the zero State.
func DecodeState(raw json.RawMessage) (State, error) {
	var st State
	if len(raw) == 0 || string(raw) == "null" {
		return st, nil
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decode quiz state: %w", err)
	}
	return st, nil
}

// Encode serializes the state for the persistence slot.
func (s State) Encode() (json.RawMessage, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode quiz state: %w", err)
	}
	return raw, nil
}

// AppliedBy reports whether the task with id produced s.
func (s State) AppliedBy(id uuid.UUID) bool {
	return s.LastTaskID != nil && *s.LastTaskID == id
}

// WithAnswer returns a copy of s with answer queued for evaluation.
func (s State) WithAnswer(answer string) State {
	s.UserAnswer = &answer
	return s
}

// Fresh reports whether s has never been initialized.
func (s State) Fresh() bool {
	return len(s.QuestionsAsked) == 0 &&
		len(s.AnswersGiven) == 0 &&
		!s.QuizComplete &&
		s.RetryCount == 0 &&
		s.CurrentQuestionIndex == 0 &&
		s.UserAnswer == nil &&
		s.ErrorMessage == ""
}

// PendingQuestion returns the generated question that has no answer yet.
func (s State) PendingQuestion() (Question, bool) {
	if len(s.QuestionsAsked) == 0 || len(s.QuestionsAsked) != len(s.AnswersGiven)+1 {
		return Question{}, false
	}
	return s.QuestionsAsked[len(s.QuestionsAsked)-1], true
}

// AwaitingAnswer reports whether a new answer can be accepted.
func (s State) AwaitingAnswer() bool {
	_, ok := s.PendingQuestion()
	return ok && !s.QuizComplete && s.ErrorMessage == ""
}

// CorrectCount returns how many answers in the current round were correct.
func (s State) CorrectCount() int {
	n := 0
	for _, a := range s.AnswersGiven {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

// CheckHistory verifies that at most one question is ever unanswered.
func (s State) CheckHistory() error {
	q, a := len(s.QuestionsAsked), len(s.AnswersGiven)
	if a > q || q > a+1 {
		return fmt.Errorf("inconsistent quiz history: %d questions, %d answers", q, a)
	}
	return nil
}

// askedSubtopics is the union of the subtopics of every question so far.
func (s State) askedSubtopics() []string {
	var all []string
	for _, q := range s.QuestionsAsked {
		all = mergeSubtopics(all, q.Subtopics)
	}
	return all
}

// mergeSubtopics returns the sorted union of set and add.
func mergeSubtopics(set, add []string) []string {
	out := make([]string, 0, len(set)+len(add))
	out = append(out, set...)
	for _, s := range add {
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
