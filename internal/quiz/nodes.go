package quiz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/store"
)

var (
	questionKeys   = []string{"question_text", "options", "correct_answer", "subtopics", "difficulty"}
	evaluationKeys = []string{"is_correct", "feedback", "subtopics_covered", "subtopics_missed"}
)

// initialize loads the lesson exposition and resets the session counters.
func (g *Graph) initialize(ctx context.Context, st State) State {
	log := logger.FromContext(ctx)

	if st.LessonID == uuid.Nil {
		st.ErrorMessage = "initialization failed: lesson_id is missing"
		return st
	}

	if _, err := g.lessons.GetLessonContext(ctx, st.LessonID); err != nil {
		if store.IsNotFoundError(err) {
			st.ErrorMessage = fmt.Sprintf("lesson %s not found", st.LessonID)
		} else {
			st.ErrorMessage = fmt.Sprintf("error fetching lesson: %v", err)
		}
		return st
	}

	content, err := g.lessons.GetCompletedContent(ctx, st.LessonID)
	if err != nil {
		st.ErrorMessage = fmt.Sprintf("error fetching lesson content: %v", err)
		return st
	}
	if content == nil {
		st.ErrorMessage = fmt.Sprintf("no completed content for lesson %s", st.LessonID)
		return st
	}
	if content.Exposition == "" {
		log.Warn("completed lesson content has empty exposition", "lesson_id", st.LessonID)
	}

	if !st.Difficulty.Valid() {
		st.Difficulty = domain.DifficultyBeginner
	}

	return State{
		LessonID:           st.LessonID,
		UserID:             st.UserID,
		Difficulty:         st.Difficulty,
		LessonContent:      content.Exposition,
		QuestionsAsked:     []Question{},
		AnswersGiven:       []Evaluation{},
		IncorrectSubtopics: []string{},
	}
}

// generateQuestion appends one new question or records why it could not.
func (g *Graph) generateQuestion(ctx context.Context, st State) State {
	req := QuestionRequest{
		LessonContent:      st.LessonContent,
		Difficulty:         st.Difficulty,
		PreviousSubtopics:  st.askedSubtopics(),
		IncorrectSubtopics: st.IncorrectSubtopics,
	}

	var out map[string]any
	var err error
	if st.RetryCount > 0 && len(st.IncorrectSubtopics) > 0 {
		out, err = g.gen.RetryQuestion(ctx, req)
	} else {
		out, err = g.gen.GenerateQuestion(ctx, req)
	}
	if err != nil {
		st.ErrorMessage = fmt.Sprintf("error generating question: %v", err)
		return st
	}

	q, err := parseQuestion(out, string(st.Difficulty))
	if err != nil {
		logger.FromContext(ctx).Error("invalid generated question", "error", err, "output", out)
		st.ErrorMessage = fmt.Sprintf("error generating question: %v", err)
		return st
	}

	st.QuestionsAsked = append(st.QuestionsAsked, q)
	st.CurrentQuestionIndex++
	st.UserAnswer = nil
	st.ErrorMessage = ""
	return st
}

// evaluateAnswer grades the pending question against the queued answer.
func (g *Graph) evaluateAnswer(ctx context.Context, st State) State {
	if len(st.QuestionsAsked) == 0 {
		st.ErrorMessage = "no questions asked to evaluate"
		return st
	}
	if st.UserAnswer == nil {
		st.ErrorMessage = "no user answer provided for evaluation"
		return st
	}
	question, ok := st.PendingQuestion()
	if !ok {
		st.ErrorMessage = "no question is awaiting an answer"
		return st
	}

	answer := *st.UserAnswer
	out, err := g.gen.EvaluateAnswer(ctx, EvaluationRequest{
		QuestionText:  question.QuestionText,
		CorrectAnswer: question.CorrectAnswer,
		UserAnswer:    answer,
		Subtopics:     question.Subtopics,
	})
	if err != nil {
		st.ErrorMessage = fmt.Sprintf("error evaluating answer: %v", err)
		return st
	}

	eval, err := parseEvaluation(out)
	if err != nil {
		logger.FromContext(ctx).Error("invalid answer evaluation", "error", err, "output", out)
		st.ErrorMessage = fmt.Sprintf("error evaluating answer: %v", err)
		return st
	}
	eval.QuestionIndex = st.CurrentQuestionIndex - 1
	eval.UserAnswer = answer

	st.AnswersGiven = append(st.AnswersGiven, eval)
	st.IncorrectSubtopics = mergeSubtopics(st.IncorrectSubtopics, eval.SubtopicsMissed)
	st.UserAnswer = nil
	st.ErrorMessage = ""
	st.LastEvaluation = &eval
	return st
}

// generateRetryQuiz starts a fresh round that keeps the missed subtopics.
func generateRetryQuiz(st State) State {
	st.RetryCount++
	st.CurrentQuestionIndex = 0
	st.QuestionsAsked = []Question{}
	st.AnswersGiven = []Evaluation{}
	st.UserAnswer = nil
	st.ErrorMessage = ""
	return st
}

func rejectInconsistent(st State) State {
	st.ErrorMessage = fmt.Sprintf(
		"inconsistent quiz state: %d questions, %d answers and no answer to evaluate",
		len(st.QuestionsAsked), len(st.AnswersGiven))
	return st
}

// recordResult finalizes the session. A completed session is returned as is.
func recordResult(st State) State {
	if st.QuizComplete && st.FinalScore != nil {
		st.UserAnswer = nil
		return st
	}

	st.QuizComplete = true
	st.UserAnswer = nil

	if st.ErrorMessage != "" {
		st.FinalScore = ptr(0.0)
		return st
	}

	st.FinalScore = ptr(Score(st.CorrectCount(), len(st.QuestionsAsked)))
	return st
}

// Score is the percentage of correct answers; zero questions score zero.
func Score(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(correct) / float64(total)
}

func parseQuestion(out map[string]any, fallbackDifficulty string) (Question, error) {
	if err := requireKeys(out, questionKeys); err != nil {
		return Question{}, err
	}

	options, ok := stringList(out["options"])
	if !ok || len(options) == 0 {
		return Question{}, fmt.Errorf("options is not a list of strings: %v", out["options"])
	}
	subtopics, ok := stringList(out["subtopics"])
	if !ok {
		return Question{}, fmt.Errorf("subtopics is not a list of strings: %v", out["subtopics"])
	}
	text, _ := out["question_text"].(string)
	if text == "" {
		return Question{}, errors.New("question_text is empty")
	}
	difficulty, _ := out["difficulty"].(string)
	if difficulty == "" {
		difficulty = fallbackDifficulty
	}

	return Question{
		QuestionText:  text,
		Options:       options,
		CorrectAnswer: fmt.Sprint(out["correct_answer"]),
		Subtopics:     subtopics,
		Difficulty:    difficulty,
	}, nil
}

func parseEvaluation(out map[string]any) (Evaluation, error) {
	if err := requireKeys(out, evaluationKeys); err != nil {
		return Evaluation{}, err
	}

	isCorrect, ok := out["is_correct"].(bool)
	if !ok {
		return Evaluation{}, fmt.Errorf("is_correct is not a boolean: %v", out["is_correct"])
	}
	covered, ok := stringList(out["subtopics_covered"])
	if !ok {
		return Evaluation{}, fmt.Errorf("subtopics_covered is not a list of strings: %v", out["subtopics_covered"])
	}
	missed, ok := stringList(out["subtopics_missed"])
	if !ok {
		return Evaluation{}, fmt.Errorf("subtopics_missed is not a list of strings: %v", out["subtopics_missed"])
	}
	feedback, _ := out["feedback"].(string)
	if feedback == "" {
		feedback = "No feedback provided."
	}
	promptForDetail, _ := out["prompt_for_detail"].(bool)

	return Evaluation{
		IsCorrect:        isCorrect,
		Feedback:         feedback,
		SubtopicsCovered: covered,
		SubtopicsMissed:  missed,
		PromptForDetail:  promptForDetail,
	}, nil
}

func requireKeys(out map[string]any, keys []string) error {
	var missing []string
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("output missing required keys %v", missing)
	}
	return nil
}

// stringList accepts a decoded JSON array of strings. null counts as empty.
func stringList(v any) ([]string, bool) {
	switch vals := v.(type) {
	case nil:
		return []string{}, true
	case []string:
		return vals, true
	case []any:
		out := make([]string, 0, len(vals))
		for _, e := range vals {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func ptr[T any](v T) *T {
	return &v
}
