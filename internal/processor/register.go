package processor

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/techtree-api/internal/llm"
	"github.com/phrazzld/techtree-api/internal/notify"
	"github.com/phrazzld/techtree-api/internal/onboarding"
	"github.com/phrazzld/techtree-api/internal/quiz"
	"github.com/phrazzld/techtree-api/internal/store"
	"github.com/phrazzld/techtree-api/internal/task"
)

// Deps are the collaborators shared by the processors.
type Deps struct {
	Progress store.ProgressStore
	Lessons  store.LessonStore
	Syllabi  store.SyllabusStore
	Provider llm.Provider
	Relay    *notify.Relay
	Quiz     quiz.Config
	Logger   *slog.Logger
}

// Register builds every processor, binds it to its task type on d and
// installs the failure notifier.
func Register(d *task.Dispatcher, deps Deps) error {
	if deps.Logger == nil {
		return ErrNilLogger
	}
	graph := quiz.NewGraph(quiz.NewLLMGenerator(deps.Provider), deps.Lessons, deps.Quiz)

	interaction, err := NewInteraction(graph, deps.Progress, deps.Lessons, deps.Provider, deps.Relay, deps.Logger)
	if err != nil {
		return fmt.Errorf("lesson interaction processor: %w", err)
	}
	content, err := NewLessonContent(deps.Lessons, deps.Syllabi, deps.Provider, deps.Logger)
	if err != nil {
		return fmt.Errorf("lesson content processor: %w", err)
	}
	syllabus, err := NewSyllabus(deps.Syllabi, deps.Lessons, deps.Provider, d, deps.Logger)
	if err != nil {
		return fmt.Errorf("syllabus processor: %w", err)
	}
	assessor := onboarding.NewAssessor(onboarding.NewLLMGenerator(deps.Provider), deps.Logger)
	assessment, err := NewOnboarding(assessor, deps.Logger)
	if err != nil {
		return fmt.Errorf("onboarding processor: %w", err)
	}

	d.Register(task.TypeLessonInteraction, interaction)
	d.Register(task.TypeLessonContent, content)
	d.Register(task.TypeSyllabusGeneration, syllabus)
	d.Register(task.TypeOnboardingAssessment, assessment)
	d.SetFailureHook(FailureNotifier(deps.Relay))
	return nil
}
