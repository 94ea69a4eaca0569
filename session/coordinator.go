package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hairizuan-noorazman/browser-steps/internal/uuidutil"
	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
	"github.com/hairizuan-noorazman/browser-steps/transport"
)

// ErrNoActions is returned when an empty action list is submitted.
var ErrNoActions = errors.New("no actions to execute")

// Run modes recorded by a Recorder.
const (
	ModeStepwise = "stepwise"
	ModeOneShot  = "oneshot"
)

// RunInfo describes a run when it starts.
type RunInfo struct {
	ID        string
	ClientID  string
	Mode      string
	Actions   int
	StartedAt time.Time
}

// Recorder receives the progress of every run. Errors are logged and
// never fail the run.
type Recorder interface {
	StartRun(ctx context.Context, run RunInfo) error
	RecordStep(ctx context.Context, runID string, step protocol.StepResult) error
	FinishRun(ctx context.Context, runID string, ok bool) error
}

// Config holds coordinator settings. Zero values take the defaults.
type Config struct {
	ClientID string
	// DefaultTimeout is the minimum wait for a stepwise action. Default 60s.
	DefaultTimeout time.Duration
	// OneShotTimeout is the minimum wait for a one-shot request. Default 60s.
	OneShotTimeout time.Duration
	// IdleTimeout is how long an unfinished session is kept before the
	// reaper closes it. Default 10m.
	IdleTimeout time.Duration
}

func (c *Config) defaults() {
	if c.ClientID == "" {
		c.ClientID = protocol.UnknownClient
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 60 * time.Second
	}
	if c.OneShotTimeout <= 0 {
		c.OneShotTimeout = 60 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
}

// Outcome is the result of executing an action list.
type Outcome struct {
	SessionID string                `json:"sessionId,omitempty"`
	Steps     []protocol.StepResult `json:"steps"`
	// OK is true when every submitted action succeeded.
	OK bool `json:"ok"`
	// Message is the last envelope message, or the transport error.
	Message string `json:"message"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder journals every run through r.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// Coordinator turns action lists into worker requests.
type Coordinator struct {
	cfg      Config
	invoker  transport.Invoker
	recorder Recorder
	store    *Store
	logger   logger.Logger
	now      func() time.Time

	mu     sync.Mutex
	active string

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCoordinator creates a coordinator sending requests through inv.
func NewCoordinator(cfg Config, inv transport.Invoker, log logger.Logger, opts ...Option) *Coordinator {
	cfg.defaults()
	c := &Coordinator{
		cfg:     cfg,
		invoker: inv,
		store:   NewStore(),
		logger:  log.WithField("component", "coordinator"),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sessions returns the sessions still open on the worker.
func (c *Coordinator) Sessions() []Session {
	return c.store.List()
}

// ExecuteStep sends one action as step index of sessionID. done marks the
// session's final step.
func (c *Coordinator) ExecuteStep(ctx context.Context, sessionID string, index int, a protocol.Action, done bool) protocol.StepResult {
	req := protocol.Request{
		ClientID:    c.cfg.ClientID,
		Method:      protocol.MethodExecute,
		Actions:     []protocol.Action{a},
		SessionID:   sessionID,
		StepIndex:   protocol.Int(index),
		SessionDone: protocol.Bool(done),
	}
	timeout := effectiveTimeout(c.cfg.DefaultTimeout, a)

	c.mu.Lock()
	c.active = sessionID
	c.mu.Unlock()

	resp, err := c.invoker.Execute(ctx, req, timeout)
	if err != nil {
		c.logger.Error(ctx, "Step failed in transport", map[string]interface{}{
			"sessionId": sessionID,
			"stepIndex": index,
			"type":      string(a.Type),
			"error":     err.Error(),
		})
		return protocol.StepResult{Index: index, Type: a.Type, Message: err.Error(), Err: err}
	}
	return stepFromResponse(index, a.Type, resp)
}

// ExecuteStepwise sends actions one request per step within sessionID,
// generating an id when it is empty. The last action carries sessionDone.
// With stopOnError the walk ends at the first failed step; the worker has
// already released its browser by then.
func (c *Coordinator) ExecuteStepwise(ctx context.Context, actions []protocol.Action, stopOnError bool, sessionID string) (*Outcome, error) {
	if len(actions) == 0 {
		return nil, ErrNoActions
	}
	if sessionID == "" {
		sessionID = uuidutil.NewSessionID()
	}

	sess := c.touch(sessionID)
	base := sess.NextStep
	log := c.logger.WithFields(map[string]interface{}{
		"sessionId": sessionID,
		"clientId":  c.cfg.ClientID,
	})
	log.Info(ctx, "Starting stepwise execution", map[string]interface{}{
		"actions":     len(actions),
		"firstStep":   base,
		"stopOnError": stopOnError,
	})
	c.startRun(ctx, sessionID, ModeStepwise, len(actions))

	out := &Outcome{SessionID: sessionID, OK: true}
	for i, a := range actions {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		last := i == len(actions)-1
		index := base + i

		step := c.ExecuteStep(ctx, sessionID, index, a, last)
		out.Steps = append(out.Steps, step)
		out.Message = step.Message
		c.recordStep(ctx, sessionID, step)

		sess.NextStep = index + 1
		sess.LastActive = c.now()
		sess.ExpiresAt = sess.LastActive.Add(c.cfg.IdleTimeout)
		c.store.Set(sess)

		if step.BrowserClosed || last || isWorkerGone(step.Err) {
			c.store.Delete(sessionID)
		}
		if !step.OK {
			out.OK = false
			if stopOnError {
				log.Warn(ctx, "Stopping session after failed step", map[string]interface{}{
					"stepIndex": index,
					"type":      string(a.Type),
					"message":   step.Message,
				})
				c.store.Delete(sessionID)
				break
			}
		}
	}

	c.finishRun(ctx, sessionID, out.OK)
	log.Info(ctx, "Stepwise execution finished", map[string]interface{}{
		"ok":    out.OK,
		"steps": len(out.Steps),
	})
	return out, nil
}

// ExecuteOneShot sends the whole list as one request that closes the
// browser when it finishes.
func (c *Coordinator) ExecuteOneShot(ctx context.Context, actions []protocol.Action) (*Outcome, error) {
	if len(actions) == 0 {
		return nil, ErrNoActions
	}
	runID := uuidutil.NewSessionID()
	req := protocol.Request{
		ClientID:    c.cfg.ClientID,
		Method:      protocol.MethodExecute,
		Actions:     actions,
		SessionDone: protocol.Bool(true),
	}
	timeout := effectiveTimeout(c.cfg.OneShotTimeout, actions...)

	c.logger.Info(ctx, "Starting one-shot execution", map[string]interface{}{
		"runId":   runID,
		"actions": len(actions),
		"timeout": timeout.String(),
	})
	c.startRun(ctx, runID, ModeOneShot, len(actions))

	out := &Outcome{SessionID: runID}
	resp, err := c.invoker.Execute(ctx, req, timeout)
	if err != nil {
		c.logger.Error(ctx, "One-shot execution failed in transport", map[string]interface{}{
			"runId": runID,
			"error": err.Error(),
		})
		c.finishRun(ctx, runID, false)
		return out, err
	}

	out.OK = resp.OK()
	out.Message = resp.Message
	if resp.OK() {
		out.Steps = resp.Data.Steps
		if len(out.Steps) == 0 {
			out.Steps = stepsFromResults(actions, resp)
		}
		for i := range out.Steps {
			out.Steps[i].BrowserClosed = resp.BrowserClosed() && i == len(out.Steps)-1
		}
	} else {
		out.Steps = []protocol.StepResult{{
			Index:         0,
			Type:          actions[0].Type,
			Message:       resp.Message,
			BrowserClosed: resp.BrowserClosed(),
		}}
	}
	for _, step := range out.Steps {
		c.recordStep(ctx, runID, step)
	}
	c.finishRun(ctx, runID, out.OK)
	return out, nil
}

// Restart asks the transport for a fresh worker. Transports without a
// process to replace are left alone. Open sessions are forgotten.
func (c *Coordinator) Restart(ctx context.Context) error {
	for _, s := range c.store.List() {
		c.store.Delete(s.ID)
	}
	r, ok := c.invoker.(transport.Restarter)
	if !ok {
		c.logger.Debug(ctx, "Transport has no worker to restart", nil)
		return nil
	}
	if err := r.Restart(ctx); err != nil {
		return fmt.Errorf("failed to restart worker: %w", err)
	}
	return nil
}

// StartCleanup starts a background goroutine that periodically closes
// sessions that were abandoned without a final step.
func (c *Coordinator) StartCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				c.Reap(context.Background())
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// StopCleanup stops the cleanup goroutine.
func (c *Coordinator) StopCleanup() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Reap removes expired sessions. When the expired session is the one the
// worker's browser currently belongs to, a final quit step is sent so the
// worker releases it. It returns the number of sessions removed.
func (c *Coordinator) Reap(ctx context.Context) int {
	expired := c.store.Cleanup(c.now())
	for _, s := range expired {
		c.mu.Lock()
		owner := c.active == s.ID
		c.mu.Unlock()

		c.logger.Info(ctx, "Closing abandoned session", map[string]interface{}{
			"sessionId":  s.ID,
			"lastActive": s.LastActive,
			"owner":      owner,
		})
		if !owner {
			continue
		}
		step := c.ExecuteStep(ctx, s.ID, s.NextStep, protocol.Action{Type: protocol.ActionQuit}, true)
		if !step.OK {
			c.logger.Warn(ctx, "Failed to close abandoned session", map[string]interface{}{
				"sessionId": s.ID,
				"message":   step.Message,
			})
		}
		c.finishRun(ctx, s.ID, false)
	}
	return len(expired)
}

func (c *Coordinator) touch(sessionID string) *Session {
	now := c.now()
	sess, err := c.store.Get(sessionID, now)
	if err == nil {
		return sess
	}
	return &Session{
		ID:         sessionID,
		ClientID:   c.cfg.ClientID,
		CreatedAt:  now,
		LastActive: now,
		ExpiresAt:  now.Add(c.cfg.IdleTimeout),
	}
}

func (c *Coordinator) startRun(ctx context.Context, id, mode string, actions int) {
	if c.recorder == nil {
		return
	}
	err := c.recorder.StartRun(ctx, RunInfo{
		ID:        id,
		ClientID:  c.cfg.ClientID,
		Mode:      mode,
		Actions:   actions,
		StartedAt: c.now(),
	})
	if err != nil {
		c.logger.Warn(ctx, "Failed to record run start", map[string]interface{}{"runId": id, "error": err.Error()})
	}
}

func (c *Coordinator) recordStep(ctx context.Context, id string, step protocol.StepResult) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordStep(ctx, id, step); err != nil {
		c.logger.Warn(ctx, "Failed to record step", map[string]interface{}{"runId": id, "error": err.Error()})
	}
}

func (c *Coordinator) finishRun(ctx context.Context, id string, ok bool) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.FinishRun(ctx, id, ok); err != nil {
		c.logger.Warn(ctx, "Failed to record run end", map[string]interface{}{"runId": id, "error": err.Error()})
	}
}

// effectiveTimeout is the larger of def and any action's timeoutMs.
func effectiveTimeout(def time.Duration, actions ...protocol.Action) time.Duration {
	timeout := def
	for _, a := range actions {
		if d := time.Duration(a.Timeout(0)) * time.Millisecond; d > timeout {
			timeout = d
		}
	}
	return timeout
}

func stepFromResponse(index int, t protocol.ActionType, resp *protocol.Response) protocol.StepResult {
	step := protocol.StepResult{
		Index:         index,
		Type:          t,
		OK:            resp.OK(),
		Message:       resp.Message,
		BrowserClosed: resp.BrowserClosed(),
	}
	if !resp.OK() {
		return step
	}
	if len(resp.Data.Steps) > 0 {
		step.Data = resp.Data.Steps[0].Data
	} else {
		step.Data = resp.Data.Results[t]
	}
	return step
}

func stepsFromResults(actions []protocol.Action, resp *protocol.Response) []protocol.StepResult {
	steps := make([]protocol.StepResult, 0, len(actions))
	for i, a := range actions {
		steps = append(steps, protocol.StepResult{
			Index:   i,
			Type:    a.Type,
			OK:      true,
			Data:    resp.Data.Results[a.Type],
			Message: resp.Message,
		})
	}
	return steps
}

func isWorkerGone(err error) bool {
	var exited *transport.ProcessExitedError
	return errors.As(err, &exited) || errors.Is(err, transport.ErrUnexpectedEOF)
}
