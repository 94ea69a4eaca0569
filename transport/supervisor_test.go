package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
)

const helperModeEnv = "BROWSER_STEPS_HELPER_WORKER"

// TestHelperWorker is not a real test. It is the worker process started by
// the supervisor tests, selected through helperModeEnv.
func TestHelperWorker(t *testing.T) {
	mode := os.Getenv(helperModeEnv)
	if mode == "" {
		return
	}
	runHelperWorker(mode)
	os.Exit(0)
}

type echoHandler struct {
	delayFirst time.Duration
	calls      int
}

func (h *echoHandler) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	h.calls++
	if h.calls == 1 && h.delayFirst > 0 {
		time.Sleep(h.delayFirst)
	}
	return protocol.OKResponse(req.Client(), nil, false)
}

func runHelperWorker(mode string) {
	ctx := context.Background()
	log := logger.NewLogrusLoggerWithOutput("error", os.Stderr)
	in := bufio.NewReader(os.Stdin)

	switch mode {
	case "echo":
		_ = ServeStdio(ctx, os.Stdin, os.Stdout, &echoHandler{}, log)
	case "slow":
		_ = ServeStdio(ctx, os.Stdin, os.Stdout, &echoHandler{delayFirst: 300 * time.Millisecond}, log)
	case "stderr":
		fmt.Fprintln(os.Stderr, "boom from stderr")
		_ = ServeStdio(ctx, os.Stdin, os.Stdout, &echoHandler{}, log)
	case "blank":
		_, _ = in.ReadString('\n')
		fmt.Fprint(os.Stdout, "\n   \n")
		fmt.Fprintln(os.Stdout, `{"status":"ok","message":"after blanks","data":{}}`)
		_, _ = in.ReadString('\n')
	case "exit":
		_, _ = in.ReadString('\n')
		os.Exit(3)
	case "eof":
		_, _ = in.ReadString('\n')
		_ = os.Stdout.Close()
		time.Sleep(5 * time.Second)
	case "hang":
		_, _ = in.ReadString('\n')
		time.Sleep(5 * time.Second)
	case "garbage":
		_, _ = in.ReadString('\n')
		fmt.Fprintln(os.Stdout, "this is not json")
		_, _ = in.ReadString('\n')
	}
}

func newHelperSupervisor(t *testing.T, mode string, log logger.Logger) *Supervisor {
	t.Helper()
	s := NewSupervisor(SupervisorConfig{
		Command:       []string{os.Args[0], "-test.run=^TestHelperWorker$"},
		Env:           []string{helperModeEnv + "=" + mode},
		ShutdownGrace: 500 * time.Millisecond,
	}, log)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func request(client string) protocol.Request {
	return protocol.Request{
		ClientID: client,
		Method:   protocol.MethodExecute,
		Actions:  []protocol.Action{{Type: protocol.ActionGetTitle}},
	}
}

func TestSupervisorExecute(t *testing.T) {
	s := newHelperSupervisor(t, "echo", logger.NewTestLogger())
	ctx := context.Background()

	assert.False(t, s.Running())

	resp, err := s.Execute(ctx, request("first"), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "first", resp.Message)
	assert.True(t, s.Running())
	pid := s.worker.pid()

	resp, err = s.Execute(ctx, request("second"), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Message)
	assert.Equal(t, pid, s.worker.pid())
}

func TestSupervisorRestart(t *testing.T) {
	s := newHelperSupervisor(t, "echo", logger.NewTestLogger())
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	pid := s.worker.pid()

	require.NoError(t, s.Restart(ctx))
	assert.NotEqual(t, pid, s.worker.pid())

	resp, err := s.Execute(ctx, request("after-restart"), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "after-restart", resp.Message)
}

func TestSupervisorFailures(t *testing.T) {
	tests := []struct {
		name  string
		mode  string
		check func(t *testing.T, err error)
	}{
		{
			name: "process exit",
			mode: "exit",
			check: func(t *testing.T, err error) {
				var exited *ProcessExitedError
				require.True(t, errors.As(err, &exited), "got %v", err)
				assert.Equal(t, 3, exited.Code)
			},
		},
		{
			name: "output closed",
			mode: "eof",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnexpectedEOF)
			},
		},
		{
			name: "undecodable line",
			mode: "garbage",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrMalformedResponse)
			},
		},
		{
			name: "no response",
			mode: "hang",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrTimeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newHelperSupervisor(t, tt.mode, logger.NewTestLogger())
			_, err := s.Execute(context.Background(), request("c"), time.Second)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestSupervisorRestartsLazilyAfterExit(t *testing.T) {
	s := newHelperSupervisor(t, "exit", logger.NewTestLogger())
	ctx := context.Background()

	_, err := s.Execute(ctx, request("a"), 5*time.Second)
	var exited *ProcessExitedError
	require.True(t, errors.As(err, &exited))
	first := s.worker.pid()
	assert.False(t, s.Running())

	_, err = s.Execute(ctx, request("b"), 5*time.Second)
	require.True(t, errors.As(err, &exited))
	assert.NotEqual(t, first, s.worker.pid())
}

func TestSupervisorSkipsBlankLines(t *testing.T) {
	s := newHelperSupervisor(t, "blank", logger.NewTestLogger())

	resp, err := s.Execute(context.Background(), request("c"), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "after blanks", resp.Message)
}

func TestSupervisorDiscardsLateResponse(t *testing.T) {
	tests := []struct {
		name  string
		pause time.Duration
	}{
		{name: "next call right away", pause: 0},
		{name: "late reply already buffered", pause: 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := logger.NewTestLogger()
			s := newHelperSupervisor(t, "slow", log)
			ctx := context.Background()

			_, err := s.Execute(ctx, request("late"), 100*time.Millisecond)
			require.ErrorIs(t, err, ErrTimeout)

			if tt.pause > 0 {
				time.Sleep(tt.pause)
			}

			resp, err := s.Execute(ctx, request("fresh"), 5*time.Second)
			require.NoError(t, err)
			assert.Equal(t, "fresh", resp.Message)
			assert.True(t, log.Contains("warn", "Discarded stale worker output"))

			resp, err = s.Execute(ctx, request("after"), 5*time.Second)
			require.NoError(t, err)
			assert.Equal(t, "after", resp.Message)
		})
	}
}

func TestSupervisorDiscardsReplyAfterCancel(t *testing.T) {
	s := newHelperSupervisor(t, "slow", logger.NewTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.Execute(ctx, request("cancelled"), 5*time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	resp, err := s.Execute(context.Background(), request("fresh"), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "fresh", resp.Message)
}

func TestSupervisorContextCancel(t *testing.T) {
	s := newHelperSupervisor(t, "hang", logger.NewTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := s.Execute(ctx, request("c"), 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSupervisorDrainsStderr(t *testing.T) {
	log := logger.NewTestLogger()
	s := newHelperSupervisor(t, "stderr", log)

	_, err := s.Execute(context.Background(), request("c"), 5*time.Second)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return log.Contains("warn", "boom from stderr")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSupervisorClosed(t *testing.T) {
	s := newHelperSupervisor(t, "echo", logger.NewTestLogger())
	ctx := context.Background()

	_, err := s.Execute(ctx, request("c"), 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	_, err = s.Execute(ctx, request("c"), 5*time.Second)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Start(ctx), ErrClosed)
}

func TestSupervisorWithoutCommand(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{}, logger.NewTestLogger())
	_, err := s.Execute(context.Background(), request("c"), time.Second)
	assert.Error(t, err)
}

func TestStderrLoggerSplitsLines(t *testing.T) {
	log := logger.NewTestLogger()
	w := &stderrLogger{logger: log}

	_, _ = w.Write([]byte("partial "))
	assert.Empty(t, log.Entries())

	_, _ = w.Write([]byte("line\nsecond\n\n"))
	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "partial line", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
	assert.Equal(t, "warn", entries[0].Level)
}
