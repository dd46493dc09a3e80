package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	apiMiddleware "github.com/phrazzld/techtree-api/internal/api/middleware"
	"github.com/phrazzld/techtree-api/internal/api/shared"
	"github.com/phrazzld/techtree-api/internal/service/auth"
	"github.com/phrazzld/techtree-api/internal/store"
)

// RouterDeps are the collaborators the HTTP surface needs.
type RouterDeps struct {
	Tasks          TaskService
	Lessons        store.LessonStore
	Progress       store.ProgressStore
	Events         Subscriber
	JWT            auth.JWTService
	Logger         *slog.Logger
	RequestTimeout time.Duration
	// Heartbeat is the idle ping interval of event streams.
	Heartbeat time.Duration
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(deps.Logger))
	r.Use(middleware.Recoverer)

	authMiddleware := apiMiddleware.NewAuthMiddleware(deps.JWT)
	taskHandler := NewTaskHandler(deps.Tasks, deps.Logger)
	lessonHandler := NewLessonHandler(deps.Tasks, deps.Lessons, deps.Progress, deps.Logger)
	syllabusHandler := NewSyllabusHandler(deps.Tasks, deps.Logger)
	onboardingHandler := NewOnboardingHandler(deps.Tasks, deps.Logger)
	eventsHandler := NewEventsHandler(deps.Events, deps.Heartbeat, deps.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Group(func(r chi.Router) {
			if deps.RequestTimeout > 0 {
				r.Use(middleware.Timeout(deps.RequestTimeout))
			}

			r.Post("/syllabi", syllabusHandler.CreateSyllabus)
			r.Post("/onboarding/assessments", onboardingHandler.AssessmentStep)
			r.Get("/tasks/{taskID}", taskHandler.GetTask)

			r.Post("/lessons/{lessonID}/content", lessonHandler.GenerateContent)
			r.Post("/lessons/{lessonID}/quiz", lessonHandler.StartQuiz)
			r.Post("/lessons/{lessonID}/quiz/answers", lessonHandler.SubmitAnswer)
			r.Post("/lessons/{lessonID}/chat", lessonHandler.Chat)
		})

		// Event streams outlive the request timeout
		r.Get("/lessons/{lessonID}/events", eventsHandler.Stream)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
	})

	return r
}
