package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/phrazzld/techtree-api/internal/task"
	"github.com/spf13/cobra"
)

func newStatsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withTasks(cmd, func(ctx context.Context, s task.Store, out io.Writer) error {
				counts, err := s.CountByStatus(ctx)
				if err != nil {
					return fmt.Errorf("count tasks: %w", err)
				}

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				total := 0
				for _, st := range task.Statuses {
					fmt.Fprintf(tw, "%s\t%d\n", st, counts[st])
					total += counts[st]
				}
				fmt.Fprintf(tw, "total\t%d\n", total)
				return tw.Flush()
			})
		},
	}
}
