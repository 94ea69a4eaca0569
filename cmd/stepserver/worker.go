package main

import (
	"context"
	"fmt"

	"github.com/hairizuan-noorazman/browser-steps/browser"
	"github.com/hairizuan-noorazman/browser-steps/dispatcher"
	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/storage"
)

// newDispatcher wires the browser launcher and artifact storage.
func newDispatcher(ctx context.Context, cfg *Config, log logger.Logger) (*dispatcher.Dispatcher, error) {
	artifacts, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Info(ctx, "storage initialized", map[string]interface{}{
		"type": cfg.Storage.Type,
	})

	launcher := browser.NewRodLauncher(cfg.Browser.RodConfig(), log)
	return dispatcher.New(cfg.Browser.DispatcherConfig(), launcher, artifacts, log), nil
}
