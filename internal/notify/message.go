package notify

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/quiz"
)

// Kind is the message a quiz state calls for after an invocation.
type Kind string

const (
	KindError       Kind = "error"
	KindFinalResult Kind = "final_result"
	KindQuestion    Kind = "question"
	KindFeedback    Kind = "feedback"
	KindNone        Kind = "none"
)

// Message types as seen by clients.
const (
	TypeQuizError    = "quiz.error"
	TypeQuizResult   = "quiz.result"
	TypeQuizQuestion = "quiz.question"
	TypeQuizFeedback = "quiz.feedback"
	TypeLessonChat   = "lesson.chat"
	TypeTaskFailed   = "task.failed"
)

// Message is one published notification.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ErrorPayload carries a quiz error or failed task message.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ResultPayload closes a quiz round. State is the full session state.
type ResultPayload struct {
	Score          float64    `json:"score"`
	TotalQuestions int        `json:"total_questions"`
	Summary        string     `json:"summary"`
	State          quiz.State `json:"state"`
}

// QuestionPayload presents a new question. Feedback and IsCorrect are set
// when the same invocation also graded an answer.
type QuestionPayload struct {
	QuestionText   string   `json:"question_text"`
	Options        []string `json:"options"`
	QuestionIndex  int      `json:"question_index"`
	TotalQuestions int      `json:"total_questions"`
	Feedback       string   `json:"feedback,omitempty"`
	IsCorrect      *bool    `json:"is_correct,omitempty"`
}

// FeedbackPayload reports an incorrect answer with no follow-up question.
type FeedbackPayload struct {
	Feedback       string `json:"feedback"`
	IsCorrect      bool   `json:"is_correct"`
	QuestionIndex  int    `json:"question_index"`
	TotalQuestions int    `json:"total_questions"`
}

// ChatPayload is a tutor reply in the lesson chat.
type ChatPayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TaskFailedPayload reports a task that ended failed.
type TaskFailedPayload struct {
	TaskID   uuid.UUID `json:"task_id"`
	TaskType string    `json:"task_type"`
	Error    string    `json:"error"`
}

// GroupForLesson names the channel all messages for a lesson go to.
func GroupForLesson(lessonID uuid.UUID) string {
	return fmt.Sprintf("lesson_chat_%s", lessonID)
}

// Classify returns the one message kind st warrants. Precedence is error,
// final result, new question, then feedback for an incorrect answer.
func Classify(st quiz.State) Kind {
	if st.ErrorMessage != "" {
		return KindError
	}
	if st.QuizComplete && st.FinalScore != nil {
		return KindFinalResult
	}
	q, a := len(st.QuestionsAsked), len(st.AnswersGiven)
	if q > a {
		return KindQuestion
	}
	if q > 0 && q == a {
		if ev := lastEvaluation(st); ev != nil && !ev.IsCorrect {
			return KindFeedback
		}
	}
	return KindNone
}

// Build returns the message for st, or false when st warrants none.
func Build(st quiz.State, totalQuestions int) (Message, bool) {
	switch Classify(st) {
	case KindError:
		return Message{Type: TypeQuizError, Payload: ErrorPayload{Error: st.ErrorMessage}}, true

	case KindFinalResult:
		return Message{Type: TypeQuizResult, Payload: ResultPayload{
			Score:          *st.FinalScore,
			TotalQuestions: totalQuestions,
			Summary:        summary(st),
			State:          st,
		}}, true

	case KindQuestion:
		q := st.QuestionsAsked[len(st.QuestionsAsked)-1]
		p := QuestionPayload{
			QuestionText:   q.QuestionText,
			Options:        q.Options,
			QuestionIndex:  st.CurrentQuestionIndex,
			TotalQuestions: totalQuestions,
		}
		if st.LastEvaluation != nil {
			correct := st.LastEvaluation.IsCorrect
			p.Feedback = st.LastEvaluation.Feedback
			p.IsCorrect = &correct
		}
		return Message{Type: TypeQuizQuestion, Payload: p}, true

	case KindFeedback:
		ev := lastEvaluation(st)
		return Message{Type: TypeQuizFeedback, Payload: FeedbackPayload{
			Feedback:       ev.Feedback,
			IsCorrect:      false,
			QuestionIndex:  st.CurrentQuestionIndex,
			TotalQuestions: totalQuestions,
		}}, true
	}
	return Message{}, false
}

func lastEvaluation(st quiz.State) *quiz.Evaluation {
	if st.LastEvaluation != nil {
		return st.LastEvaluation
	}
	if n := len(st.AnswersGiven); n > 0 {
		return &st.AnswersGiven[n-1]
	}
	return nil
}

func summary(st quiz.State) string {
	total := len(st.AnswersGiven)
	if total == 0 {
		return "Quiz completed!"
	}
	return fmt.Sprintf("Quiz completed! You answered %d of %d questions correctly.", st.CorrectCount(), total)
}
