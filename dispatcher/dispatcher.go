// Package dispatcher executes step requests against the worker's single
// browser, applying the open/release lifecycle around each request.
package dispatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hairizuan-noorazman/browser-steps/browser"
	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
	"github.com/hairizuan-noorazman/browser-steps/sensing"
	"github.com/hairizuan-noorazman/browser-steps/storage"
)

// Config holds dispatcher tunables. Zero values take the defaults below.
type Config struct {
	// DownloadDir is the initial download directory. Default: "downloads".
	DownloadDir string
	// ScreenshotDir is the artifact prefix for screenshots. Default: "screens".
	ScreenshotDir string
	// DefaultHeadless applies when open_browser omits headless.
	DefaultHeadless bool

	DownloadTimeout time.Duration // default 20s
	DefaultWait     time.Duration // default 1s
	SelectorTimeout time.Duration // default 10s

	// DownloadPollInterval rescans the download directory in case a
	// filesystem event is missed. Default 2s.
	DownloadPollInterval time.Duration
}

func (c *Config) defaults() {
	if c.DownloadDir == "" {
		c.DownloadDir = "downloads"
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = "screens"
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 20 * time.Second
	}
	if c.DownloadPollInterval <= 0 {
		c.DownloadPollInterval = 2 * time.Second
	}
	if c.DefaultWait <= 0 {
		c.DefaultWait = time.Second
	}
	if c.SelectorTimeout <= 0 {
		c.SelectorTimeout = 10 * time.Second
	}
}

type handlerFunc func(ctx context.Context, s *Session, a protocol.Action) (interface{}, error)

// Dispatcher serializes requests against one Session.
type Dispatcher struct {
	cfg       Config
	launcher  browser.Launcher
	sensor    *sensing.Engine
	artifacts storage.BlobStorage
	logger    logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	session  *Session
	handlers map[protocol.ActionType]handlerFunc
}

// New creates a dispatcher. No browser is started until open_browser.
func New(cfg Config, launcher browser.Launcher, artifacts storage.BlobStorage, log logger.Logger) *Dispatcher {
	cfg.defaults()
	log = log.WithField("component", "dispatcher")

	d := &Dispatcher{
		cfg:       cfg,
		launcher:  launcher,
		sensor:    sensing.NewEngine(log),
		artifacts: artifacts,
		logger:    log,
		now:       time.Now,
		session:   newSession(cfg.DownloadDir, log),
	}
	d.handlers = map[protocol.ActionType]handlerFunc{
		protocol.ActionOpenBrowser:     d.openBrowser,
		protocol.ActionSetDownloadDir:  d.setDownloadDir,
		protocol.ActionGoto:            d.gotoURL,
		protocol.ActionClick:           d.click,
		protocol.ActionTypeText:        d.typeText,
		protocol.ActionKeyPress:        d.keyPress,
		protocol.ActionFindText:        d.findText,
		protocol.ActionWait:            d.wait,
		protocol.ActionWaitForSelector: d.waitForSelector,
		protocol.ActionScrollBy:        d.scrollBy,
		protocol.ActionScrollTo:        d.scrollTo,
		protocol.ActionSwitchToFrame:   d.switchToFrame,
		protocol.ActionSwitchToDefault: d.switchToDefault,
		protocol.ActionSenseElements:   d.senseElements,
		protocol.ActionDownloadLink:    d.downloadLink,
		protocol.ActionGetTitle:        d.getTitle,
		protocol.ActionGetCurrentURL:   d.getCurrentURL,
		protocol.ActionScreenshot:      d.screenshot,
		protocol.ActionClose:           d.closeBrowser,
		protocol.ActionQuit:            d.closeBrowser,
	}
	return d
}

// State reports the current browser lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session.State()
}

// Handle executes every action of req in order and returns one envelope.
// The browser is released after the request when it is not session-scoped
// or carries sessionDone, and immediately on any failure.
func (d *Dispatcher) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	fields := map[string]interface{}{
		"clientId": req.Client(),
		"actions":  len(req.Actions),
	}
	if req.SessionScoped() {
		fields["sessionId"] = req.SessionID
	}
	if req.StepIndex != nil {
		fields["stepIndex"] = *req.StepIndex
	}
	log := d.logger.WithFields(fields)

	if !strings.EqualFold(strings.TrimSpace(req.Method), protocol.MethodExecute) {
		log.Warn(ctx, "Rejected request with unsupported method", map[string]interface{}{"method": req.Method})
		return protocol.ErrorResponse("Unsupported method: "+req.Method, nil)
	}
	if len(req.Actions) == 0 {
		return protocol.ErrorResponse("No actions specified", nil)
	}

	s := d.session
	s.released = false
	s.log = log
	if err := protocol.ValidateActions(req.Actions); err != nil {
		return d.fail(ctx, log, s, err)
	}
	if s.resource != nil && req.SessionScoped() && s.resource.Owner != req.SessionID {
		log.Warn(ctx, "Reusing browser opened by another session", map[string]interface{}{
			"previousOwner": s.resource.Owner,
		})
	}
	if s.resource != nil && req.SessionScoped() {
		s.resource.Owner = req.SessionID
	}

	steps := make([]protocol.StepResult, 0, len(req.Actions))
	for i, a := range req.Actions {
		actionFields := map[string]interface{}{"type": string(a.Type), "index": i}
		if a.Note != "" {
			actionFields["note"] = a.Note
		}
		log.Info(ctx, "Executing action", actionFields)

		payload, err := d.execute(ctx, s, req.SessionID, a)
		if err != nil {
			return d.fail(ctx, log, s, err)
		}
		step, err := protocol.NewStepResult(i, a.Type, payload)
		if err != nil {
			return d.fail(ctx, log, s, err)
		}
		steps = append(steps, step)
	}

	if !req.SessionScoped() || req.Done() {
		d.release(ctx, log, s, "case completed")
	}
	return protocol.OKResponse("All actions executed", steps, s.released)
}

func (d *Dispatcher) execute(ctx context.Context, s *Session, sessionID string, a protocol.Action) (interface{}, error) {
	h, ok := d.handlers[a.Type]
	if !ok {
		return nil, &protocol.UnknownActionError{Type: string(a.Type)}
	}
	if a.Type.RequiresBrowser() && s.resource == nil {
		return nil, ErrBrowserNotOpen
	}
	payload, err := h(ctx, s, a)
	if err == nil && a.Type == protocol.ActionOpenBrowser && s.resource != nil && s.resource.Owner == "" {
		s.resource.Owner = sessionID
	}
	return payload, err
}

func (d *Dispatcher) fail(ctx context.Context, log logger.Logger, s *Session, err error) protocol.Response {
	log.Error(ctx, "Action execution failed", map[string]interface{}{"error": err.Error()})
	d.release(ctx, log, s, "error encountered")
	return protocol.ErrorResponse(fmt.Sprintf("Execution failed: %s", err.Error()), protocol.Bool(s.released))
}

// release quits the browser if one is open and reports whether it did.
func (d *Dispatcher) release(ctx context.Context, log logger.Logger, s *Session, reason string) bool {
	if s.resource == nil {
		return false
	}
	log.Info(ctx, "Closing browser session", map[string]interface{}{
		"reason": reason,
		"uptime": d.now().Sub(s.resource.OpenedAt).String(),
	})
	if err := s.resource.Driver.Quit(); err != nil {
		log.Warn(ctx, "Error while closing browser", map[string]interface{}{"error": err.Error()})
	}
	s.resource = nil
	s.released = true
	return true
}

// Close releases the browser, if any. Used on worker shutdown.
func (d *Dispatcher) Close(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.release(ctx, d.logger, d.session, "shutdown")
}

// locator applies the locator strategy: an explicit kind wins, otherwise a
// "//" prefix selects XPath and anything else CSS.
func locator(a protocol.Action) (browser.Locator, error) {
	sel := strings.TrimSpace(a.Selector)
	if sel == "" {
		return browser.Locator{}, ErrMissingSelector
	}
	kind := strings.ToLower(strings.TrimSpace(a.LocatorKind))
	if kind == "" {
		if strings.HasPrefix(sel, "//") {
			kind = protocol.LocatorXPath
		} else {
			kind = protocol.LocatorCSS
		}
	}
	switch kind {
	case protocol.LocatorCSS:
		return browser.Locator{Kind: browser.CSS, Value: sel}, nil
	case protocol.LocatorXPath:
		return browser.Locator{Kind: browser.XPath, Value: sel}, nil
	default:
		return browser.Locator{}, &UnsupportedLocatorError{Kind: a.LocatorKind}
	}
}

func (d *Dispatcher) find(ctx context.Context, s *Session, a protocol.Action) (browser.Element, error) {
	loc, err := locator(a)
	if err != nil {
		return nil, err
	}
	return s.resource.Driver.Find(ctx, loc)
}

func absDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	return abs, nil
}
