package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/browser-steps/protocol"
	"github.com/hairizuan-noorazman/browser-steps/session"
)

var errRunFailed = errors.New("run failed")

type runOptions struct {
	stepwise    bool
	stopOnError bool
	sessionID   string
	fresh       bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <actions.json|->",
		Short: "Execute an action list",
		Long: `Executes the actions in a JSON file ("-" reads stdin). The file holds an
array of actions or an object with an "actions" array. By default the list
is sent as one request; --stepwise sends one request per action within a
session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actions, err := readActions(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			log := newLogger()
			c, err := newClient(log)
			if err != nil {
				return err
			}
			defer c.Close(context.Background())

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out, err := executeRun(ctx, c.coordinator, actions, opts)
			if err != nil {
				return err
			}

			if flagJSON {
				printJSON(out)
			} else {
				printOutcome(out)
			}
			if !out.OK {
				return errRunFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.stepwise, "stepwise", false, "Send one request per action within a session")
	cmd.Flags().BoolVar(&opts.stopOnError, "stop-on-error", false, "Stop a stepwise run at the first failed step")
	cmd.Flags().StringVar(&opts.sessionID, "session-id", "", "Session id for a stepwise run (default: generated)")
	cmd.Flags().BoolVar(&opts.fresh, "fresh", false, "Restart the worker before running")
	return cmd
}

func readActions(path string, stdin io.Reader) ([]protocol.Action, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read actions: %w", err)
	}

	actions, err := protocol.ParseActions(data)
	if err != nil {
		return nil, err
	}
	if err := protocol.ValidateActions(actions); err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, session.ErrNoActions
	}
	return actions, nil
}

func executeRun(ctx context.Context, c *session.Coordinator, actions []protocol.Action, opts runOptions) (*session.Outcome, error) {
	if opts.sessionID != "" && !opts.stepwise {
		return nil, fmt.Errorf("--session-id requires --stepwise")
	}
	if opts.fresh {
		if err := c.Restart(ctx); err != nil {
			return nil, err
		}
	}
	if opts.stepwise {
		return c.ExecuteStepwise(ctx, actions, opts.stopOnError, opts.sessionID)
	}
	return c.ExecuteOneShot(ctx, actions)
}

func printOutcome(out *session.Outcome) {
	rows := make([][]string, 0, len(out.Steps))
	for _, s := range out.Steps {
		detail := string(s.Data)
		if !s.OK {
			detail = s.Message
		}
		closed := ""
		if s.BrowserClosed {
			closed = "closed"
		}
		rows = append(rows, []string{
			strconv.Itoa(s.Index),
			string(s.Type),
			strconv.FormatBool(s.OK),
			closed,
			shorten(detail, 80),
		})
	}
	printTable([]string{"STEP", "TYPE", "OK", "BROWSER", "RESULT"}, rows)
	if out.SessionID != "" {
		printMessage("Run: " + out.SessionID)
	}
	printMessage("Message: " + out.Message)
}
