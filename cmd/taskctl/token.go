package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/service/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an access token for a learner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}

			cfg, err := rt.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			authCfg := cfg.Auth
			if ttl, _ := cmd.Flags().GetDuration("ttl"); ttl > 0 {
				authCfg.TokenLifetime = ttl
			}

			svc, err := auth.NewJWTService(authCfg)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			token, err := svc.GenerateToken(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 0, "Token lifetime (default from auth.token_lifetime)")
	return cmd
}
