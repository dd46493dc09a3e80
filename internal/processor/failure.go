package processor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/phrazzld/techtree-api/internal/notify"
	"github.com/phrazzld/techtree-api/internal/task"
)

// FailureNotifier returns a dispatcher failure hook that tells the lesson
// group about tasks that ended failed. Quiz sessions that failed softly
// already published their quiz.error and are skipped.
func FailureNotifier(relay *notify.Relay) task.FailureHook {
	return func(ctx context.Context, rec *task.Record, err error) {
		if rec.LessonID == nil || errors.Is(err, ErrQuizState) {
			return
		}
		relay.TaskFailed(ctx, *rec.LessonID, rec.ID, string(rec.Type), rec.ErrorMessage)

		if rec.Type != task.TypeLessonInteraction {
			return
		}
		switch submissionType(rec.InputData) {
		case SubmissionQuizStart, SubmissionQuizAnswer:
			relay.QuizError(ctx, *rec.LessonID, "Sorry, the quiz could not be processed. Please try again.")
		}
	}
}

// submissionType peeks at a lesson_interaction input without failing.
func submissionType(raw json.RawMessage) SubmissionType {
	var in InteractionInput
	if len(raw) == 0 || json.Unmarshal(raw, &in) != nil {
		return ""
	}
	return in.SubmissionType
}
