package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hairizuan-noorazman/browser-steps/browser"
	"github.com/hairizuan-noorazman/browser-steps/database"
	"github.com/hairizuan-noorazman/browser-steps/dispatcher"
	"github.com/hairizuan-noorazman/browser-steps/storage"
)

// Config holds all worker configuration.
type Config struct {
	Server   ServerConfig
	Browser  BrowserConfig
	Storage  storage.Config
	Database database.Config
	Journal  JournalConfig
	Log      LogConfig
	Auth     AuthConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RunIdleTimeout closes a journaled session run that has had no request
	// for this long.
	RunIdleTimeout time.Duration
}

// BrowserConfig holds browser launch and step defaults.
type BrowserConfig struct {
	Bin               string
	RemoteURL         string
	Stealth           bool
	Headless          bool
	DownloadDir       string
	ScreenshotDir     string
	ElementTimeout    time.Duration
	NavigationTimeout time.Duration
	DownloadTimeout   time.Duration
}

// JournalConfig toggles recording of served requests.
type JournalConfig struct {
	Enabled bool
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string
}

// AuthConfig protects the HTTP endpoint. An empty hash disables auth.
type AuthConfig struct {
	TokenHash string
}

// RodConfig returns the launcher settings.
func (c BrowserConfig) RodConfig() browser.RodConfig {
	return browser.RodConfig{
		Bin:               c.Bin,
		RemoteURL:         c.RemoteURL,
		Stealth:           c.Stealth,
		ElementTimeout:    c.ElementTimeout,
		NavigationTimeout: c.NavigationTimeout,
	}
}

// DispatcherConfig returns the dispatcher settings.
func (c BrowserConfig) DispatcherConfig() dispatcher.Config {
	return dispatcher.Config{
		DownloadDir:     c.DownloadDir,
		ScreenshotDir:   c.ScreenshotDir,
		DefaultHeadless: c.Headless,
		DownloadTimeout: c.DownloadTimeout,
		SelectorTimeout: c.ElementTimeout,
	}
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("stepserver")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("STEPSERVER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.run_idle_timeout", "10m")

	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.download_dir", "downloads")
	v.SetDefault("browser.screenshot_dir", "screens")
	v.SetDefault("browser.element_timeout", "10s")
	v.SetDefault("browser.navigation_timeout", "30s")
	v.SetDefault("browser.download_timeout", "20s")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.base_dir", "./artifacts")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_prefix", "")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_presign_expiry", "15m")

	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.path", "browser-steps.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "browser_steps")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)

	v.SetDefault("journal.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("auth.token_hash", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config

	config.Server.Host = v.GetString("server.host")
	config.Server.Port = v.GetInt("server.port")
	config.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	config.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	config.Server.RunIdleTimeout = v.GetDuration("server.run_idle_timeout")

	config.Browser.Bin = v.GetString("browser.bin")
	config.Browser.RemoteURL = v.GetString("browser.remote_url")
	config.Browser.Stealth = v.GetBool("browser.stealth")
	config.Browser.Headless = v.GetBool("browser.headless")
	config.Browser.DownloadDir = v.GetString("browser.download_dir")
	config.Browser.ScreenshotDir = v.GetString("browser.screenshot_dir")
	config.Browser.ElementTimeout = v.GetDuration("browser.element_timeout")
	config.Browser.NavigationTimeout = v.GetDuration("browser.navigation_timeout")
	config.Browser.DownloadTimeout = v.GetDuration("browser.download_timeout")

	config.Storage.Type = v.GetString("storage.type")
	config.Storage.BaseDir = v.GetString("storage.base_dir")
	config.Storage.Bucket = v.GetString("storage.s3_bucket")
	config.Storage.Region = v.GetString("storage.s3_region")
	config.Storage.Prefix = v.GetString("storage.s3_prefix")
	config.Storage.Endpoint = v.GetString("storage.s3_endpoint")
	config.Storage.PresignExpiry = v.GetDuration("storage.s3_presign_expiry")

	config.Database.Driver = v.GetString("database.driver")
	config.Database.Path = v.GetString("database.path")
	config.Database.Host = v.GetString("database.host")
	config.Database.Port = v.GetInt("database.port")
	config.Database.User = v.GetString("database.user")
	config.Database.Password = v.GetString("database.password")
	config.Database.Database = v.GetString("database.database")
	config.Database.MaxOpenConns = v.GetInt("database.max_open_conns")
	config.Database.MaxIdleConns = v.GetInt("database.max_idle_conns")

	config.Journal.Enabled = v.GetBool("journal.enabled")
	config.Log.Level = v.GetString("log.level")
	config.Auth.TokenHash = v.GetString("auth.token_hash")

	return &config, nil
}
