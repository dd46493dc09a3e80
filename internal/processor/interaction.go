package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/llm"
	"github.com/phrazzld/techtree-api/internal/notify"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
	"github.com/phrazzld/techtree-api/internal/quiz"
	"github.com/phrazzld/techtree-api/internal/store"
	"github.com/phrazzld/techtree-api/internal/task"
)

// SubmissionType selects what a lesson interaction task does.
type SubmissionType string

const (
	SubmissionQuizStart  SubmissionType = "quiz_start"
	SubmissionQuizAnswer SubmissionType = "quiz_answer"
	SubmissionChat       SubmissionType = "chat"
)

// ChatHistoryLimit is how many earlier turns are sent with a chat message.
const ChatHistoryLimit = 10

// InteractionInput is the input_data of a lesson_interaction task.
type InteractionInput struct {
	SubmissionType SubmissionType `json:"submission_type"`
	UserAnswer     *string        `json:"user_answer,omitempty"`
	UserMessage    string         `json:"user_message,omitempty"`
}

// QuizResult is the result of a quiz submission.
type QuizResult struct {
	UpdatedState    quiz.State       `json:"updated_state"`
	QuizComplete    bool             `json:"quiz_complete"`
	Error           string           `json:"error,omitempty"`
	CurrentQuestion *quiz.Question   `json:"current_question,omitempty"`
	LastEvaluation  *quiz.Evaluation `json:"last_evaluation,omitempty"`
	FinalScore      *float64         `json:"final_score,omitempty"`
}

// ChatResult is the result of a chat submission.
type ChatResult struct {
	Response string `json:"response"`
}

// Invoker runs one quiz graph invocation.
type Invoker interface {
	Invoke(ctx context.Context, st quiz.State) (quiz.State, quiz.NodeID, error)
}

// Interaction processes lesson_interaction tasks.
type Interaction struct {
	graph    Invoker
	progress store.ProgressStore
	lessons  store.LessonStore
	provider llm.Provider
	relay    *notify.Relay
	logger   *slog.Logger
	now      func() time.Time
}

// NewInteraction creates the lesson interaction processor.
func NewInteraction(
	graph Invoker,
	progress store.ProgressStore,
	lessons store.LessonStore,
	provider llm.Provider,
	relay *notify.Relay,
	logger *slog.Logger,
) (*Interaction, error) {
	if progress == nil || lessons == nil {
		return nil, ErrNilStore
	}
	if graph == nil || provider == nil {
		return nil, ErrNilProvider
	}
	if relay == nil {
		return nil, ErrNilRelay
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &Interaction{
		graph:    graph,
		progress: progress,
		lessons:  lessons,
		provider: provider,
		relay:    relay,
		logger:   logger.With("processor", task.TypeLessonInteraction),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Process implements task.Processor.
func (p *Interaction) Process(ctx context.Context, rec *task.Record) (any, error) {
	if rec.UserID == nil || rec.LessonID == nil {
		return nil, task.Permanent(ErrMissingRefs)
	}
	var in InteractionInput
	if err := rec.DecodeInput(&in); err != nil {
		return nil, task.Permanentf("%w: %w", ErrInvalidInput, err)
	}

	userID, lessonID := *rec.UserID, *rec.LessonID
	switch in.SubmissionType {
	case SubmissionQuizStart:
		return p.startQuiz(ctx, rec.ID, userID, lessonID)
	case SubmissionQuizAnswer:
		if in.UserAnswer == nil || strings.TrimSpace(*in.UserAnswer) == "" {
			return nil, task.Permanentf("%w: quiz_answer needs user_answer", ErrInvalidInput)
		}
		return p.answerQuiz(ctx, rec.ID, userID, lessonID, *in.UserAnswer)
	case SubmissionChat:
		if strings.TrimSpace(in.UserMessage) == "" {
			return nil, task.Permanentf("%w: chat needs user_message", ErrInvalidInput)
		}
		return p.chat(ctx, userID, lessonID, in.UserMessage)
	default:
		return nil, task.Permanentf("%w: unknown submission type %q", ErrInvalidInput, in.SubmissionType)
	}
}

func (p *Interaction) startQuiz(ctx context.Context, taskID, userID, lessonID uuid.UUID) (any, error) {
	st, err := p.loadState(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if st.AppliedBy(taskID) {
		return p.replay(ctx, taskID, st)
	}
	return p.runQuiz(ctx, taskID, quiz.NewSession(lessonID, userID, p.difficulty(ctx, lessonID)))
}

func (p *Interaction) answerQuiz(ctx context.Context, taskID, userID, lessonID uuid.UUID, answer string) (any, error) {
	st, err := p.loadState(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if st.AppliedBy(taskID) {
		return p.replay(ctx, taskID, st)
	}

	if st.LessonID == uuid.Nil {
		st.LessonID = lessonID
	}
	if st.UserID == uuid.Nil {
		st.UserID = userID
	}
	if st.Difficulty == "" {
		st.Difficulty = p.difficulty(ctx, lessonID)
	}
	return p.runQuiz(ctx, taskID, st.WithAnswer(answer))
}

func (p *Interaction) loadState(ctx context.Context, userID, lessonID uuid.UUID) (quiz.State, error) {
	raw, err := p.progress.GetState(ctx, userID, lessonID)
	if err != nil {
		return quiz.State{}, fmt.Errorf("failed to load quiz state: %w", err)
	}
	st, err := quiz.DecodeState(raw)
	if err != nil {
		return quiz.State{}, task.Permanent(err)
	}
	return st, nil
}

// replay answers a task whose invocation was already saved, for example
// when the task was reset after the worker stalled past the save. The
// stored state is announced and returned again without re-grading.
func (p *Interaction) replay(ctx context.Context, taskID uuid.UUID, st quiz.State) (any, error) {
	logger.FromContextOrDefault(ctx, p.logger).Info("quiz interaction already applied",
		"task_id", taskID,
		"lesson_id", st.LessonID,
		"user_id", st.UserID)
	return p.publish(ctx, st)
}

// runQuiz invokes the graph on st, persists the outcome stamped with taskID
// and notifies the lesson group.
func (p *Interaction) runQuiz(ctx context.Context, taskID uuid.UUID, st quiz.State) (any, error) {
	log := logger.FromContextOrDefault(ctx, p.logger).With("lesson_id", st.LessonID, "user_id", st.UserID)

	out, sink, err := p.graph.Invoke(ctx, st)
	if err != nil {
		if errors.Is(err, quiz.ErrStepBudgetExceeded) {
			return nil, task.Permanent(err)
		}
		return nil, err
	}

	out.LastTaskID = &taskID
	raw, err := out.Encode()
	if err != nil {
		return nil, task.Permanent(err)
	}
	if err := p.progress.SaveState(ctx, out.UserID, out.LessonID, raw); err != nil {
		log.Error("failed to persist quiz state", "error", err, "sink", sink)
		return nil, task.Permanentf("failed to save quiz state: %w", err)
	}

	log.Info("quiz interaction processed", "sink", sink)
	return p.publish(ctx, out)
}

// publish notifies the lesson group of out and builds the task result. A
// soft error in out fails the task permanently once it has been announced.
func (p *Interaction) publish(ctx context.Context, out quiz.State) (any, error) {
	kind := p.relay.Notify(ctx, out.LessonID, out)
	logger.FromContextOrDefault(ctx, p.logger).Debug("quiz state published",
		"lesson_id", out.LessonID,
		"notification", kind)

	result := quizResult(out)
	if out.ErrorMessage != "" {
		return result, task.Permanent(fmt.Errorf("%w: %s", ErrQuizState, out.ErrorMessage))
	}
	return result, nil
}

func quizResult(st quiz.State) QuizResult {
	r := QuizResult{
		UpdatedState: st,
		QuizComplete: st.QuizComplete,
		Error:        st.ErrorMessage,
		FinalScore:   st.FinalScore,
	}
	if n := len(st.QuestionsAsked); n > 0 {
		q := st.QuestionsAsked[n-1]
		r.CurrentQuestion = &q
	}
	switch {
	case st.LastEvaluation != nil:
		r.LastEvaluation = st.LastEvaluation
	case len(st.AnswersGiven) > 0:
		e := st.AnswersGiven[len(st.AnswersGiven)-1]
		r.LastEvaluation = &e
	}
	return r
}

// difficulty inherits the syllabus level, falling back to Beginner.
func (p *Interaction) difficulty(ctx context.Context, lessonID uuid.UUID) domain.Difficulty {
	lc, err := p.lessons.GetLessonContext(ctx, lessonID)
	if err != nil || !lc.Level.Valid() {
		p.logger.Warn("could not determine lesson difficulty, using Beginner",
			"lesson_id", lessonID,
			"error", err)
		return domain.DifficultyBeginner
	}
	return lc.Level
}

var chatSchema = &llm.Schema{
	Name:        "lesson-chat",
	Description: "The tutor's reply to the learner",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"response": map[string]any{"type": "string", "minLength": 1},
		},
		"required":             []string{"response"},
		"additionalProperties": false,
	},
}

// chat answers one learner message. Both turns are stored only once the
// reply exists, so a retried task does not duplicate the question.
func (p *Interaction) chat(ctx context.Context, userID, lessonID uuid.UUID, message string) (any, error) {
	// 1. Gather lesson context and recent history
	lc, err := p.lessons.GetLessonContext(ctx, lessonID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, task.Permanent(err)
		}
		return nil, fmt.Errorf("failed to load lesson: %w", err)
	}
	content, err := p.lessons.GetCompletedContent(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lesson content: %w", err)
	}
	exposition := ""
	if content != nil {
		exposition = content.Exposition
	}
	history, err := p.progress.RecentMessages(ctx, userID, lessonID, ChatHistoryLimit-1)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	// 2. Ask the tutor
	system, err := render(chatSystemPrompt, map[string]any{
		"Topic":      lc.Topic,
		"Level":      lc.Level,
		"Title":      lc.Lesson.Title,
		"Summary":    lc.Lesson.Summary,
		"Exposition": exposition,
	})
	if err != nil {
		return nil, task.Permanent(err)
	}
	req := llm.Request{System: system, Schema: chatSchema, MaxTokens: 1024}
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == domain.RoleAssistant {
			role = llm.RoleAssistant
		}
		req.Messages = append(req.Messages, llm.Message{Role: role, Content: m.Content})
	}
	req.Messages = append(req.Messages, llm.Message{Role: llm.RoleUser, Content: message})

	var out ChatResult
	if err := llm.GenerateInto(llm.WithPurpose(ctx, "lesson_chat"), p.provider, req, &out); err != nil {
		return nil, fmt.Errorf("failed to generate chat reply: %w", err)
	}

	// 3. Record both turns and publish the reply
	now := p.now()
	turns := []domain.ConversationMessage{
		{ID: uuid.New(), UserID: userID, LessonID: lessonID, Role: domain.RoleUser, Content: message, CreatedAt: now},
		{ID: uuid.New(), UserID: userID, LessonID: lessonID, Role: domain.RoleAssistant, Content: out.Response, CreatedAt: now.Add(time.Millisecond)},
	}
	for i := range turns {
		if err := p.progress.AppendMessage(ctx, &turns[i]); err != nil {
			return nil, fmt.Errorf("failed to store chat turn: %w", err)
		}
	}
	p.relay.Chat(ctx, lessonID, out.Response)

	return out, nil
}
