package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hairizuan-noorazman/browser-steps/database"
	"github.com/hairizuan-noorazman/browser-steps/internal/uuidutil"
	"github.com/hairizuan-noorazman/browser-steps/session"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"
)

var cfg *viper.Viper

func initConfig() error {
	cfg = viper.New()
	if flagConfig != "" {
		cfg.SetConfigFile(flagConfig)
	} else {
		cfg.SetConfigName(".browser-steps")
		cfg.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			cfg.AddConfigPath(home)
		}
		cfg.AddConfigPath(".")
	}

	cfg.SetDefault("transport", transportStdio)
	cfg.SetDefault("worker.command", "stepserver stdio")
	cfg.SetDefault("worker.dir", "")
	cfg.SetDefault("worker.shutdown_grace", "2s")
	cfg.SetDefault("http.base_url", "http://127.0.0.1:8765")
	cfg.SetDefault("http.token", "")
	cfg.SetDefault("client_id", "")
	cfg.SetDefault("timeouts.default", "60s")
	cfg.SetDefault("timeouts.oneshot", "60s")
	cfg.SetDefault("timeouts.idle", "10m")
	cfg.SetDefault("cache.enabled", true)
	cfg.SetDefault("journal.enabled", false)
	cfg.SetDefault("database.driver", database.DriverSQLite)
	cfg.SetDefault("database.path", "browser-steps.db")
	cfg.SetDefault("database.host", "localhost")
	cfg.SetDefault("database.port", 3306)
	cfg.SetDefault("database.user", "root")
	cfg.SetDefault("database.password", "")
	cfg.SetDefault("database.database", "browser_steps")

	cfg.SetEnvPrefix("BROWSER_STEPS")
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	if err := cfg.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && flagConfig != "" {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flagTransport != "" {
		cfg.Set("transport", flagTransport)
	}
	if flagURL != "" {
		cfg.Set("http.base_url", flagURL)
	}
	if flagToken != "" {
		cfg.Set("http.token", flagToken)
	}
	if cfg.GetString("client_id") == "" {
		cfg.Set("client_id", uuidutil.NewClientID("stepctl"))
	}

	switch getTransport() {
	case transportStdio, transportHTTP:
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", cfg.GetString("transport"))
	}
	return nil
}

func getTransport() string {
	return strings.ToLower(strings.TrimSpace(cfg.GetString("transport")))
}

func getBaseURL() string {
	return strings.TrimRight(cfg.GetString("http.base_url"), "/")
}

func getWorkerCommand() []string {
	return strings.Fields(cfg.GetString("worker.command"))
}

func coordinatorConfig() session.Config {
	return session.Config{
		ClientID:       cfg.GetString("client_id"),
		DefaultTimeout: cfg.GetDuration("timeouts.default"),
		OneShotTimeout: cfg.GetDuration("timeouts.oneshot"),
		IdleTimeout:    cfg.GetDuration("timeouts.idle"),
	}
}

func databaseConfig() database.Config {
	return database.Config{
		Driver:   cfg.GetString("database.driver"),
		Path:     cfg.GetString("database.path"),
		Host:     cfg.GetString("database.host"),
		Port:     cfg.GetInt("database.port"),
		User:     cfg.GetString("database.user"),
		Password: cfg.GetString("database.password"),
		Database: cfg.GetString("database.database"),
	}
}

func maskToken(token string) string {
	switch {
	case token == "":
		return "(not set)"
	case len(token) > 8:
		return token[:4] + "..." + token[len(token)-4:]
	default:
		return "****"
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect CLI configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			printMessage(fmt.Sprintf("Transport:      %s", getTransport()))
			printMessage(fmt.Sprintf("Worker command: %s", strings.Join(getWorkerCommand(), " ")))
			printMessage(fmt.Sprintf("HTTP base URL:  %s", getBaseURL()))
			printMessage(fmt.Sprintf("HTTP token:     %s", maskToken(cfg.GetString("http.token"))))
			printMessage(fmt.Sprintf("Client ID:      %s", cfg.GetString("client_id")))
			printMessage(fmt.Sprintf("Timeouts:       default=%s oneshot=%s idle=%s",
				cfg.GetDuration("timeouts.default"), cfg.GetDuration("timeouts.oneshot"), cfg.GetDuration("timeouts.idle")))
			printMessage(fmt.Sprintf("Hint cache:     %t", cfg.GetBool("cache.enabled")))
			printMessage(fmt.Sprintf("Journal:        %t (%s)", cfg.GetBool("journal.enabled"), cfg.GetString("database.driver")))

			if cfgFile := cfg.ConfigFileUsed(); cfgFile != "" {
				printMessage(fmt.Sprintf("Config file:    %s", cfgFile))
			} else {
				printMessage("Config file:    (none)")
			}
			return nil
		},
	}
}
