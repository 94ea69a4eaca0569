package dispatcher

import (
	"time"

	"github.com/hairizuan-noorazman/browser-steps/browser"
	"github.com/hairizuan-noorazman/browser-steps/logger"
)

// State is the dispatcher's browser lifecycle state.
type State int

const (
	StateNoBrowser State = iota
	StateBrowserOpen
)

func (s State) String() string {
	if s == StateBrowserOpen {
		return "browser_open"
	}
	return "no_browser"
}

// BrowserResource is the live browser and the directory it downloads into.
type BrowserResource struct {
	Driver      browser.Driver
	DownloadDir string
	OpenedAt    time.Time
	// Owner is the sessionId of the request that opened or last used it.
	Owner string
}

// Session is the worker-wide execution state. At most one BrowserResource
// exists at a time; every handler receives the session explicitly.
type Session struct {
	resource    *BrowserResource
	downloadDir string

	// released is set when the browser was quit during the current request.
	released bool
	// log carries the current request's clientId, sessionId and stepIndex.
	log logger.Logger
}

func newSession(downloadDir string, log logger.Logger) *Session {
	return &Session{downloadDir: downloadDir, log: log}
}

// State reports whether a browser is open.
func (s *Session) State() State {
	if s.resource != nil {
		return StateBrowserOpen
	}
	return StateNoBrowser
}

// Resource returns the open browser or nil.
func (s *Session) Resource() *BrowserResource {
	return s.resource
}

// DownloadDir returns the directory new browsers download into.
func (s *Session) DownloadDir() string {
	return s.downloadDir
}
