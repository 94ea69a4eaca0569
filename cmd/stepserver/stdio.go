package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/transport"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve JSON-lines requests on stdin/stdout",
	Long: `Reads one request per line from stdin and writes one response per line
to stdout. Logs go to stderr. The worker exits when stdin is closed.`,
	RunE: runStdio,
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLogrusLoggerWithOutput(cfg.Log.Level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDispatcher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close(context.Background())

	err = transport.ServeStdio(ctx, os.Stdin, os.Stdout, d, log)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
