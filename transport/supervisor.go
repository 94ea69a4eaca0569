package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
)

const maxLineSize = 16 * 1024 * 1024

// SupervisorConfig describes how to launch the worker.
type SupervisorConfig struct {
	// Command is the worker argv. Command[0] is resolved through PATH.
	Command []string
	Dir     string
	// Env is appended to the current environment.
	Env []string

	// ShutdownGrace is how long Close waits for the worker to exit after
	// its stdin is closed before killing it. Default 2s.
	ShutdownGrace time.Duration
	// EOFGrace is how long a call that saw end-of-output waits for the
	// exit status before reporting ErrUnexpectedEOF. Default 250ms.
	EOFGrace time.Duration
}

func (c *SupervisorConfig) defaults() {
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 2 * time.Second
	}
	if c.EOFGrace <= 0 {
		c.EOFGrace = 250 * time.Millisecond
	}
}

// Supervisor owns one long-lived worker process. It starts the worker
// lazily, serializes calls and restarts the worker on the next call after
// it dies.
type Supervisor struct {
	cfg    SupervisorConfig
	logger logger.Logger

	mu     sync.Mutex
	worker *worker
	closed bool
}

// NewSupervisor creates a supervisor. No process is started until Start or
// the first Execute.
func NewSupervisor(cfg SupervisorConfig, log logger.Logger) *Supervisor {
	cfg.defaults()
	return &Supervisor{
		cfg:    cfg,
		logger: log.WithField("component", "supervisor"),
	}
}

// Start launches the worker if it is not running.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.startLocked(ctx)
	return err
}

// Running reports whether a live worker is attached.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker != nil && s.worker.alive()
}

// Execute writes req as one line and waits for the response line.
func (s *Supervisor) Execute(ctx context.Context, req protocol.Request, timeout time.Duration) (*protocol.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.startLocked(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if err := w.send(payload); err != nil {
		return nil, s.writeError(w, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return nil, w.endOfOutput(s.cfg.EOFGrace)
			}
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if w.owed > 0 {
				w.owed--
				s.logger.Warn(ctx, "Discarded stale worker output", map[string]interface{}{
					"line": truncate(string(line), 200),
					"owed": w.owed,
				})
				continue
			}
			var resp protocol.Response
			if err := json.Unmarshal(line, &resp); err != nil {
				s.logger.Warn(ctx, "Worker wrote an undecodable line", map[string]interface{}{
					"line": truncate(string(line), 200),
				})
				return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			return &resp, nil
		case <-timer.C:
			w.owed++
			s.logger.Warn(ctx, "Worker call timed out", map[string]interface{}{
				"timeout":   timeout.String(),
				"sessionId": req.SessionID,
			})
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case <-ctx.Done():
			w.owed++
			return nil, ctx.Err()
		}
	}
}

// Restart kills the current worker, if any, and starts a new one.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.worker != nil {
		s.logger.Info(ctx, "Restarting worker", map[string]interface{}{"pid": s.worker.pid()})
		s.worker.kill(s.cfg.ShutdownGrace)
		s.worker = nil
	}
	_, err := s.startLocked(ctx)
	return err
}

// Close asks the worker to exit by closing its stdin, then kills it if it
// has not exited within the shutdown grace period.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.worker == nil {
		return nil
	}
	w := s.worker
	s.worker = nil

	_ = w.stdin.Close()
	select {
	case <-w.exited:
		s.logger.Info(ctx, "Worker exited", map[string]interface{}{"code": w.exitCode})
	case <-time.After(s.cfg.ShutdownGrace):
		s.logger.Warn(ctx, "Worker did not exit in time, killing", map[string]interface{}{"pid": w.pid()})
		w.kill(s.cfg.ShutdownGrace)
	}
	return nil
}

func (s *Supervisor) startLocked(ctx context.Context) (*worker, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.worker != nil {
		if s.worker.alive() {
			return s.worker, nil
		}
		s.logger.Info(ctx, "Worker is gone, starting a new one", map[string]interface{}{"pid": s.worker.pid()})
		s.worker.kill(s.cfg.ShutdownGrace)
		s.worker = nil
	}
	if len(s.cfg.Command) == 0 {
		return nil, errors.New("worker command not configured")
	}

	w, err := spawn(s.cfg, s.logger)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Started worker", map[string]interface{}{
		"pid":     w.pid(),
		"command": s.cfg.Command[0],
	})
	s.worker = w
	return w, nil
}

func (s *Supervisor) writeError(w *worker, err error) error {
	select {
	case <-w.exited:
		return &ProcessExitedError{Code: w.exitCode}
	default:
	}
	return fmt.Errorf("failed to write request: %w", err)
}

// worker is one running child process.
type worker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *bufio.Writer

	// lines carries stdout lines and is closed at end of output.
	lines    chan []byte
	readDone chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	// exited is closed once the process has been reaped; exitCode is
	// valid after that.
	exited   chan struct{}
	exitCode int

	// owed counts replies to calls that gave up before their line arrived.
	// The worker answers in order, so that many lines are skipped before the
	// next reply is read.
	owed int
}

func spawn(cfg SupervisorConfig, log logger.Logger) (*worker, error) {
	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), cfg.Env...)
	}
	cmd.Stderr = &stderrLogger{logger: log.WithField("stream", "stderr")}
	cmd.WaitDelay = cfg.ShutdownGrace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	w := &worker{
		cmd:      cmd,
		stdin:    stdin,
		writer:   bufio.NewWriter(stdin),
		lines:    make(chan []byte, 16),
		readDone: make(chan struct{}),
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
		exitCode: -1,
	}
	go w.read(stdout)
	go w.wait()
	return w, nil
}

func (w *worker) read(stdout io.Reader) {
	defer close(w.readDone)
	defer close(w.lines)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case w.lines <- line:
		case <-w.stop:
			return
		}
	}
}

// wait reaps the process once its output is fully read.
func (w *worker) wait() {
	<-w.readDone
	_ = w.cmd.Wait()
	if w.cmd.ProcessState != nil {
		w.exitCode = w.cmd.ProcessState.ExitCode()
	}
	close(w.exited)
}

func (w *worker) send(payload []byte) error {
	if _, err := w.writer.Write(payload); err != nil {
		return err
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return err
	}
	return w.writer.Flush()
}

func (w *worker) alive() bool {
	select {
	case <-w.readDone:
		return false
	default:
		return true
	}
}

func (w *worker) endOfOutput(grace time.Duration) error {
	select {
	case <-w.exited:
		return &ProcessExitedError{Code: w.exitCode}
	case <-time.After(grace):
		return ErrUnexpectedEOF
	}
}

func (w *worker) kill(grace time.Duration) {
	w.stopOnce.Do(func() { close(w.stop) })
	_ = w.stdin.Close()
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	select {
	case <-w.exited:
	case <-time.After(grace):
	}
}

func (w *worker) pid() int {
	if w.cmd.Process == nil {
		return 0
	}
	return w.cmd.Process.Pid
}

// stderrLogger turns worker stderr into warn-level log lines.
type stderrLogger struct {
	logger logger.Logger
	buf    bytes.Buffer
}

func (l *stderrLogger) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		i := bytes.IndexByte(l.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(l.buf.Next(i + 1))
		if len(line) > 0 {
			l.logger.Warn(context.Background(), string(line), nil)
		}
	}
	return len(p), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
