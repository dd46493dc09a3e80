package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/techtree-api/internal/api"
	"github.com/phrazzld/techtree-api/internal/config"
	"github.com/phrazzld/techtree-api/internal/llm"
	"github.com/phrazzld/techtree-api/internal/notify"
	"github.com/phrazzld/techtree-api/internal/platform/dynamo"
	"github.com/phrazzld/techtree-api/internal/platform/kafka"
	"github.com/phrazzld/techtree-api/internal/platform/postgres"
	"github.com/phrazzld/techtree-api/internal/processor"
	"github.com/phrazzld/techtree-api/internal/quiz"
	"github.com/phrazzld/techtree-api/internal/service/auth"
	"github.com/phrazzld/techtree-api/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	hub        *notify.Hub
	dispatcher *task.Dispatcher
	router     http.Handler

	closers []func() error
}

// newApplication connects to the database, migrates it and wires stores,
// the LLM provider, the relay, processors and the router.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	db, err := postgres.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	if err := postgres.Migrate(ctx, db, "up", logger); err != nil {
		app.cleanup()
		return nil, err
	}

	taskStore, err := newTaskStore(ctx, cfg.Task, db, logger)
	if err != nil {
		app.cleanup()
		return nil, err
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	provider, err := llm.NewProvider(ctx, cfg.LLM)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	logger.Info("LLM provider initialized", "provider", cfg.LLM.Provider, "model", provider.ModelID())

	app.hub = notify.NewHub(0, logger)
	publisher, err := app.newPublisher(cfg.Notify)
	if err != nil {
		app.cleanup()
		return nil, err
	}
	relay := notify.NewRelay(publisher, cfg.Quiz.Length, cfg.Notify.Timeout, logger)

	progressStore := postgres.NewProgressStore(db, logger)
	lessonStore := postgres.NewLessonStore(db, logger)

	app.dispatcher = task.NewDispatcher(taskStore, dispatcherConfig(cfg.Task), logger)
	err = processor.Register(app.dispatcher, processor.Deps{
		Progress: progressStore,
		Lessons:  lessonStore,
		Syllabi:  postgres.NewSyllabusStore(db, logger),
		Provider: provider,
		Relay:    relay,
		Quiz:     quizConfig(cfg.Quiz),
		Logger:   logger,
	})
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to register processors: %w", err)
	}

	app.router = api.NewRouter(api.RouterDeps{
		Tasks:          app.dispatcher,
		Lessons:        lessonStore,
		Progress:       progressStore,
		Events:         app.hub,
		JWT:            jwtService,
		Logger:         logger,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	return app, nil
}

// newTaskStore selects the task record backend.
func newTaskStore(ctx context.Context, cfg config.TaskConfig, db *sql.DB, logger *slog.Logger) (task.Store, error) {
	switch cfg.Store {
	case "dynamodb":
		s, err := dynamo.NewTaskStore(ctx, cfg.DynamoDB, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize DynamoDB task store: %w", err)
		}
		return s, nil
	case "postgres", "":
		return postgres.NewTaskStore(db, logger), nil
	default:
		return nil, fmt.Errorf("unknown task store %q", cfg.Store)
	}
}

// newPublisher returns the relay's publisher. The in-process hub always
// receives messages so event streams keep working; kafka is added on top.
func (app *application) newPublisher(cfg config.NotifyConfig) (notify.Publisher, error) {
	if cfg.Backend != "kafka" {
		return app.hub, nil
	}

	producer, err := kafka.NewPublisher(cfg.Brokers, cfg.Topic, cfg.Timeout, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize kafka publisher: %w", err)
	}
	app.closers = append(app.closers, producer.Close)
	app.logger.Info("kafka notification publisher initialized", "topic", cfg.Topic)
	return notify.Fanout{app.hub, producer}, nil
}

func dispatcherConfig(cfg config.TaskConfig) task.Config {
	return task.Config{
		WorkerCount:            cfg.WorkerCount,
		QueueSize:              cfg.QueueSize,
		MaxAttempts:            cfg.MaxAttempts,
		BackoffBase:            cfg.BackoffBase,
		BackoffFactor:          cfg.BackoffFactor,
		StuckTaskAge:           cfg.StuckTaskAge,
		StuckTaskCheckInterval: cfg.StuckTaskCheckInterval,
	}
}

func quizConfig(cfg config.QuizConfig) quiz.Config {
	qc := quiz.DefaultConfig()
	qc.QuizLength = cfg.Length
	qc.RetryCap = cfg.RetryCap
	return qc
}

// cleanup releases resources in reverse acquisition order.
func (app *application) cleanup() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Error("failed to release resource", "error", err)
		}
	}
	app.closers = nil
}
