package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/techtree-api/internal/platform/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down|reset|status|version>",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: postgres.MigrationCommands,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			// goose reports applied versions at info level
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelInfo}))

			db, err := rt.openDB(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			return postgres.Migrate(ctx, db, args[0], log)
		},
	}
}
