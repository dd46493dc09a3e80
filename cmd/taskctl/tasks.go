package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/phrazzld/techtree-api/internal/task"
	"github.com/spf13/cobra"
)

func newTasksCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List, inspect and retry tasks",
	}
	cmd.AddCommand(newTasksListCmd(rt), newTasksShowCmd(rt), newTasksRetryCmd(rt))
	return cmd
}

func newTasksListCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			taskType, _ := cmd.Flags().GetString("type")
			limit, _ := cmd.Flags().GetInt("limit")

			f := task.Filter{Limit: limit}
			if status != "" {
				s := task.Status(status)
				if !validStatus(s) {
					return fmt.Errorf("unknown status %q (expected one of %v)", status, task.Statuses)
				}
				f.Statuses = []task.Status{s}
			}
			if taskType != "" {
				t := task.Type(taskType)
				if !t.Valid() {
					return fmt.Errorf("unknown task type %q (expected one of %v)", taskType, task.Types)
				}
				f.Types = []task.Type{t}
			}

			return rt.withTasks(cmd, func(ctx context.Context, s task.Store, out io.Writer) error {
				recs, err := s.List(ctx, f)
				if err != nil {
					return fmt.Errorf("list tasks: %w", err)
				}
				if len(recs) == 0 {
					fmt.Fprintln(out, "No tasks found.")
					return nil
				}
				return printTasks(out, recs)
			})
		},
	}
	cmd.Flags().String("status", "", "Only show tasks in this status")
	cmd.Flags().String("type", "", "Only show tasks of this type")
	cmd.Flags().Int("limit", 20, "Maximum number of tasks to show")
	return cmd
}

func newTasksShowCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one task record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			return rt.withTasks(cmd, func(ctx context.Context, s task.Store, out io.Writer) error {
				rec, err := s.Get(ctx, id)
				if err != nil {
					return fmt.Errorf("get task: %w", err)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			})
		},
	}
}

func newTasksRetryCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Return a failed task to pending with a fresh attempt budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q: %w", args[0], err)
			}
			return rt.withTasks(cmd, func(ctx context.Context, s task.Store, out io.Writer) error {
				rec, err := task.ResetFailed(ctx, s, id, rt.now())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Task %s (%s) is pending again.\n", rec.ID, rec.Type)
				return nil
			})
		},
	}
}

func printTasks(out io.Writer, recs []*task.Record) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tATTEMPTS\tLESSON\tUPDATED\tERROR")
	for _, r := range recs {
		lesson := "-"
		if r.LessonID != nil {
			lesson = r.LessonID.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID,
			r.Type,
			r.Status,
			r.AttemptCount,
			lesson,
			r.UpdatedAt.Format("2006-01-02 15:04:05"),
			truncate(r.ErrorMessage, 60))
	}
	return tw.Flush()
}

func validStatus(s task.Status) bool {
	for _, known := range task.Statuses {
		if s == known {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
