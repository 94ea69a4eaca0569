package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/browser-steps/runlog"
)

func newHistoryCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List journaled runs, or show one run's steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			store, closeDB, err := runlog.Open(databaseConfig(), log)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer closeDB()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if len(args) == 1 {
				run, err := store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				if flagJSON {
					printJSON(run)
					return nil
				}
				printRun(run)
				return nil
			}

			runs, err := store.ListRuns(ctx, limit, offset)
			if err != nil {
				return err
			}
			total, err := store.CountRuns(ctx)
			if err != nil {
				return err
			}

			if flagJSON {
				printJSON(map[string]interface{}{
					"items":  runs,
					"total":  total,
					"limit":  limit,
					"offset": offset,
				})
				return nil
			}
			printRuns(runs, total)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of runs to skip")
	return cmd
}

func printRuns(runs []*runlog.Run, total int) {
	if len(runs) == 0 {
		printMessage("No runs found.")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.ID,
			r.Mode,
			string(r.Status),
			strconv.Itoa(r.Actions),
			r.StartedAt.Local().Format(time.DateTime),
			formatDuration(r),
			r.ClientID,
		})
	}
	printTable([]string{"ID", "MODE", "STATUS", "ACTIONS", "STARTED", "DURATION", "CLIENT"}, rows)
	printMessage(fmt.Sprintf("\nShowing %d of %d runs", len(runs), total))
}

func printRun(run *runlog.Run) {
	printMessage(fmt.Sprintf("Run %s (%s, %s, %s)", run.ID, run.Mode, run.Status, formatDuration(run)))
	rows := make([][]string, 0, len(run.Steps))
	for _, s := range run.Steps {
		detail := string(s.Data)
		if !s.OK {
			detail = s.Message
		}
		rows = append(rows, []string{
			strconv.Itoa(s.StepIndex),
			s.ActionType,
			strconv.FormatBool(s.OK),
			shorten(detail, 80),
		})
	}
	printTable([]string{"STEP", "TYPE", "OK", "RESULT"}, rows)
}

func formatDuration(r *runlog.Run) string {
	if r.EndedAt == nil {
		return "-"
	}
	return r.Duration().Round(time.Millisecond).String()
}
