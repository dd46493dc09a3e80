package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/phrazzld/techtree-api/internal/config"
	"github.com/phrazzld/techtree-api/internal/platform/dynamo"
	"github.com/phrazzld/techtree-api/internal/platform/postgres"
	"github.com/phrazzld/techtree-api/internal/task"
	"github.com/spf13/cobra"
)

// runtime holds how commands reach configuration and storage, so tests can
// substitute in-memory backends.
type runtime struct {
	loadConfig func() (*config.Config, error)
	openDB     func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error)
	openTasks  func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (task.Store, func() error, error)
	now        func() time.Time
}

func defaultRuntime() *runtime {
	return &runtime{
		loadConfig: func() (*config.Config, error) {
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read .env: %w", err)
			}
			return config.Load()
		},
		openDB: func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
			return postgres.Open(ctx, cfg.Database, logger)
		},
		openTasks: openTaskStore,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func openTaskStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (task.Store, func() error, error) {
	if cfg.Task.Store == "dynamodb" {
		s, err := dynamo.NewTaskStore(ctx, cfg.Task.DynamoDB, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}

	db, err := postgres.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewTaskStore(db, logger), db.Close, nil
}

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Operate the techtree task queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("verbose", false, "Log at debug level to stderr")

	root.AddCommand(newTasksCmd(rt))
	root.AddCommand(newStatsCmd(rt))
	root.AddCommand(newMigrateCmd(rt))
	root.AddCommand(newTokenCmd(rt))
	return root
}

// cmdLogger writes to stderr so command output on stdout stays parseable.
func cmdLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// withTasks loads configuration, opens the task store and runs fn.
func (rt *runtime) withTasks(cmd *cobra.Command, fn func(ctx context.Context, s task.Store, out io.Writer) error) error {
	cfg, err := rt.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, closeFn, err := rt.openTasks(ctx, cfg, cmdLogger(cmd))
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer closeFn()

	return fn(ctx, s, cmd.OutOrStdout())
}
