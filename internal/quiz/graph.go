package quiz

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/domain"
	"github.com/phrazzld/techtree-api/internal/platform/logger"
)

// NodeID names a node of the quiz graph.
type NodeID string

// Graph nodes. ShouldEvaluate and RouteAfterEvaluation are routers: they
// choose the next node without changing the state.
const (
	NodeInitialize           NodeID = "initialize"
	NodeGenerateQuestion     NodeID = "generate_question"
	NodeShouldEvaluate       NodeID = "should_evaluate"
	NodeEvaluateAnswer       NodeID = "evaluate_answer"
	NodeRouteAfterEvaluation NodeID = "route_after_evaluation"
	NodeGenerateRetryQuiz    NodeID = "generate_retry_quiz"
	NodeRejectInconsistent   NodeID = "reject_inconsistent"
	NodeEndInitialInvocation NodeID = "end_initial_invocation"
	NodeRecordResult         NodeID = "record_result"
)

// IsSink reports whether n ends an invocation.
func (n NodeID) IsSink() bool {
	return n == NodeEndInitialInvocation || n == NodeRecordResult
}

// ErrStepBudgetExceeded is returned when an invocation visits more nodes
// than Config.MaxSteps without reaching a sink.
var ErrStepBudgetExceeded = errors.New("quiz graph step budget exceeded")

// LessonSource looks up lessons and their generated content.
type LessonSource interface {
	GetLessonContext(ctx context.Context, lessonID uuid.UUID) (*domain.LessonContext, error)
	GetCompletedContent(ctx context.Context, lessonID uuid.UUID) (*domain.LessonContent, error)
}

// Config holds the quiz constants.
type Config struct {
	// QuizLength is the number of questions in a round.
	QuizLength int
	// RetryCap is the number of retry rounds allowed per session.
	RetryCap int
	// MaxSteps bounds the nodes visited by one invocation.
	MaxSteps int
}

// DefaultConfig returns five-question rounds with a single retry.
func DefaultConfig() Config {
	return Config{QuizLength: 5, RetryCap: 1, MaxSteps: 32}
}

// Graph runs quiz invocations. It is safe for concurrent use as long as
// its Generator and LessonSource are.
type Graph struct {
	gen     Generator
	lessons LessonSource
	cfg     Config
}

// NewGraph creates a graph. A non-positive QuizLength or MaxSteps falls
// back to the default.
func NewGraph(gen Generator, lessons LessonSource, cfg Config) *Graph {
	def := DefaultConfig()
	if cfg.QuizLength <= 0 {
		cfg.QuizLength = def.QuizLength
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}
	if cfg.RetryCap < 0 {
		cfg.RetryCap = 0
	}
	return &Graph{gen: gen, lessons: lessons, cfg: cfg}
}

// Config returns the graph's effective configuration.
func (g *Graph) Config() Config {
	return g.cfg
}

// Invoke runs one invocation from the entry node to a sink and returns the
// resulting state and the sink reached. The input state is not modified.
func (g *Graph) Invoke(ctx context.Context, st State) (State, NodeID, error) {
	log := logger.FromContext(ctx).With("lesson_id", st.LessonID, "user_id", st.UserID)

	st = st.clone()
	st.LastEvaluation = nil

	node := entryNode(st)
	for steps := 1; ; steps++ {
		if err := ctx.Err(); err != nil {
			return st, node, fmt.Errorf("quiz invocation interrupted at %s: %w", node, err)
		}
		if steps > g.cfg.MaxSteps {
			return st, node, fmt.Errorf("%w: stopped at %s", ErrStepBudgetExceeded, node)
		}

		log.Debug("quiz node", "node", node, "step", steps)
		next, out := g.step(ctx, node, st)
		st = out
		if node.IsSink() {
			break
		}
		node = next
	}

	if err := st.CheckHistory(); err != nil && st.ErrorMessage == "" {
		log.Error("quiz invocation left inconsistent history", "error", err)
		st.ErrorMessage = err.Error()
	}
	st.WaitingForUserInput = node == NodeEndInitialInvocation && st.ErrorMessage == ""

	log.Info("quiz invocation finished",
		"sink", node,
		"questions", len(st.QuestionsAsked),
		"answers", len(st.AnswersGiven),
		"retry_count", st.RetryCount,
		"quiz_complete", st.QuizComplete,
		"has_error", st.ErrorMessage != "")

	return st, node, nil
}

// step is the transition function. For sinks the returned node is the sink
// itself.
func (g *Graph) step(ctx context.Context, node NodeID, st State) (NodeID, State) {
	switch node {
	case NodeInitialize:
		st = g.initialize(ctx, st)
		if st.ErrorMessage != "" {
			return NodeRecordResult, st
		}
		return NodeGenerateQuestion, st
	case NodeGenerateQuestion:
		return NodeShouldEvaluate, g.generateQuestion(ctx, st)
	case NodeShouldEvaluate:
		return shouldEvaluate(st), st
	case NodeEvaluateAnswer:
		return NodeRouteAfterEvaluation, g.evaluateAnswer(ctx, st)
	case NodeRouteAfterEvaluation:
		return routeAfterEvaluation(st, g.cfg), st
	case NodeGenerateRetryQuiz:
		return NodeGenerateQuestion, generateRetryQuiz(st)
	case NodeRejectInconsistent:
		return NodeRecordResult, rejectInconsistent(st)
	case NodeEndInitialInvocation:
		return node, st
	case NodeRecordResult:
		return node, recordResult(st)
	default:
		st.ErrorMessage = fmt.Sprintf("unknown quiz node %q", node)
		return NodeRecordResult, st
	}
}

func (s State) clone() State {
	s.QuestionsAsked = slices.Clone(s.QuestionsAsked)
	s.AnswersGiven = slices.Clone(s.AnswersGiven)
	s.IncorrectSubtopics = slices.Clone(s.IncorrectSubtopics)
	return s
}
