package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/hairizuan-noorazman/browser-steps/cmd/stepserver/handlers"
	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/runlog"
	"github.com/hairizuan-noorazman/browser-steps/session"
	"github.com/hairizuan-noorazman/browser-steps/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve step requests over HTTP",
	Long: `Serves POST /api/execute. Each request must be one-shot or the last
step of a session, as HTTP clients cannot hold a browser across calls.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLogrusLogger(cfg.Log.Level)
	log.Info(ctx, "starting server", map[string]interface{}{
		"version": Version,
		"commit":  Commit,
		"date":    BuildDate,
	})

	d, err := newDispatcher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.Close(context.Background())

	var recorder session.Recorder
	if cfg.Journal.Enabled {
		store, closeDB, err := runlog.Open(cfg.Database, log)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer closeDB()
		recorder = runlog.NewJournal(store, log)

		log.Info(ctx, "journal enabled", map[string]interface{}{
			"driver": cfg.Database.Driver,
		})
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", handlers.HealthHandler(d)).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	if cfg.Auth.TokenHash != "" {
		api.Use(handlers.NewAuthMiddleware(cfg.Auth.TokenHash, log).Handler)
	} else {
		log.Warn(ctx, "auth disabled, endpoint is open", nil)
	}
	executeHandler := handlers.NewExecuteHandler(d, recorder, log)
	executeHandler.SetRunIdleTimeout(cfg.Server.RunIdleTimeout)
	api.HandleFunc(strings.TrimPrefix(transport.ExecutePath, "/api"), executeHandler.Execute).Methods("POST")

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info(ctx, "server listening", map[string]interface{}{
			"address": addr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx, "shutting down server", nil)

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info(ctx, "server stopped", nil)
	return nil
}
