package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/runlog"
	"github.com/hairizuan-noorazman/browser-steps/session"
	"github.com/hairizuan-noorazman/browser-steps/transport"
)

// client bundles a coordinator with the resources behind it.
type client struct {
	coordinator *session.Coordinator
	logger      logger.Logger
	closers     []func(ctx context.Context) error
}

func newLogger() logger.Logger {
	level := "warn"
	if flagDebug {
		level = "debug"
	}
	return logger.NewLogrusLoggerWithOutput(level, os.Stderr)
}

// newInvoker builds the configured transport.
func newInvoker(log logger.Logger) (transport.Invoker, func(ctx context.Context) error, error) {
	switch getTransport() {
	case transportHTTP:
		peer := transport.NewHTTPPeer(getBaseURL(), log, transport.WithToken(cfg.GetString("http.token")))
		return peer, func(context.Context) error { return nil }, nil
	default:
		command := getWorkerCommand()
		if len(command) == 0 {
			return nil, nil, fmt.Errorf("worker.command is empty")
		}
		sup := transport.NewSupervisor(transport.SupervisorConfig{
			Command:       command,
			Dir:           cfg.GetString("worker.dir"),
			ShutdownGrace: cfg.GetDuration("worker.shutdown_grace"),
		}, log)
		return sup, sup.Close, nil
	}
}

func newClient(log logger.Logger) (*client, error) {
	inv, closeInvoker, err := newInvoker(log)
	if err != nil {
		return nil, err
	}
	c := &client{logger: log, closers: []func(context.Context) error{closeInvoker}}

	var opts []session.Option
	if cfg.GetBool("journal.enabled") {
		store, closeDB, err := runlog.Open(databaseConfig(), log)
		if err != nil {
			c.Close(context.Background())
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return closeDB() })
		opts = append(opts, session.WithRecorder(runlog.NewJournal(store, log)))
	}

	c.coordinator = session.NewCoordinator(coordinatorConfig(), inv, log, opts...)
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *client) Close(ctx context.Context) {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			c.logger.Warn(ctx, "Failed to close client resource", map[string]interface{}{"error": err.Error()})
		}
	}
}
