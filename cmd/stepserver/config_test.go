package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "browser-steps.db", cfg.Database.Path)
	assert.False(t, cfg.Journal.Enabled)
	assert.Empty(t, cfg.Auth.TokenHash)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stepserver.yaml")
	content := `
server:
  port: 9000
browser:
  headless: true
  download_timeout: 5s
database:
  driver: mysql
  host: db
journal:
  enabled: true
auth:
  token_hash: "$2a$10$abc"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 10*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Server.RunIdleTimeout)
	assert.True(t, cfg.Browser.Headless)
	assert.True(t, cfg.Browser.Stealth)
	assert.Equal(t, 5*time.Second, cfg.Browser.DownloadTimeout)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "$2a$10$abc", cfg.Auth.TokenHash)
	assert.Equal(t, "local", cfg.Storage.Type)

	d := cfg.Browser.DispatcherConfig()
	assert.True(t, d.DefaultHeadless)
	assert.Equal(t, "downloads", d.DownloadDir)
	assert.Equal(t, 10*time.Second, d.SelectorTimeout)
}
