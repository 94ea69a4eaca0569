package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/browser-steps/protocol"
)

func resetFlags(t *testing.T) {
	t.Cleanup(func() {
		flagConfig, flagTransport, flagURL, flagToken = "", "", "", ""
	})
}

func TestInitConfig_File(t *testing.T) {
	resetFlags(t)
	path := filepath.Join(t.TempDir(), "stepctl.yaml")
	content := `
transport: http
worker:
  command: "/usr/local/bin/stepserver stdio --config worker.yaml"
http:
  base_url: "http://worker:8765/"
client_id: ci-runner
timeouts:
  default: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	flagConfig = path

	require.NoError(t, initConfig())

	assert.Equal(t, transportHTTP, getTransport())
	assert.Equal(t, "http://worker:8765", getBaseURL())
	assert.Equal(t, []string{"/usr/local/bin/stepserver", "stdio", "--config", "worker.yaml"}, getWorkerCommand())

	cc := coordinatorConfig()
	assert.Equal(t, "ci-runner", cc.ClientID)
	assert.Equal(t, 90*time.Second, cc.DefaultTimeout)
	assert.Equal(t, 60*time.Second, cc.OneShotTimeout)
	assert.Equal(t, 10*time.Minute, cc.IdleTimeout)
}

func TestInitConfig_Flags(t *testing.T) {
	resetFlags(t)
	flagConfig = filepath.Join(t.TempDir(), "none.yaml")
	require.NoError(t, os.WriteFile(flagConfig, []byte("transport: stdio\n"), 0o600))
	flagTransport = "HTTP"
	flagURL = "http://localhost:9000"

	require.NoError(t, initConfig())
	assert.Equal(t, transportHTTP, getTransport())
	assert.Equal(t, "http://localhost:9000", getBaseURL())
	assert.True(t, strings.HasPrefix(coordinatorConfig().ClientID, "stepctl-"))
	assert.NotEqual(t, protocol.UnknownClient, coordinatorConfig().ClientID)
}

func TestInitConfig_UnknownTransport(t *testing.T) {
	resetFlags(t)
	flagConfig = filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(flagConfig, []byte("transport: grpc\n"), 0o600))

	err := initConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grpc")
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", "(not set)"},
		{"short", "****"},
		{"abcd1234wxyz", "abcd...wxyz"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, maskToken(tt.token))
		})
	}
}
