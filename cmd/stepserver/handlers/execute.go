package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/hairizuan-noorazman/browser-steps/internal/uuidutil"
	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
	"github.com/hairizuan-noorazman/browser-steps/session"
	"github.com/hairizuan-noorazman/browser-steps/transport"
)

// DefaultRunIdleTimeout is how long a session-scoped run may go without a
// request before it is recorded as failed and forgotten.
const DefaultRunIdleTimeout = 10 * time.Minute

// ExecuteHandler serves step requests over HTTP. Requests are handled one
// at a time by the underlying handler, which owns the browser.
type ExecuteHandler struct {
	handler  transport.Handler
	recorder session.Recorder
	logger   logger.Logger
	idle     time.Duration
	now      func() time.Time

	mu sync.Mutex
	// open maps each unfinished session-scoped run to its last request time.
	open map[string]time.Time
}

// NewExecuteHandler creates an execute handler. recorder may be nil.
func NewExecuteHandler(h transport.Handler, recorder session.Recorder, log logger.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		handler:  h,
		recorder: recorder,
		logger:   log,
		idle:     DefaultRunIdleTimeout,
		now:      time.Now,
		open:     make(map[string]time.Time),
	}
}

// SetRunIdleTimeout changes how long an unfinished run is kept open.
func (h *ExecuteHandler) SetRunIdleTimeout(d time.Duration) {
	if d > 0 {
		h.idle = d
	}
}

// Execute handles POST /api/execute. The body is one request envelope and
// the reply is one response envelope.
func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn(r.Context(), "failed to parse request", map[string]interface{}{
			"error": err.Error(),
		})
		respondJSON(w, http.StatusBadRequest, protocol.ErrorResponse("Invalid request: "+err.Error(), nil))
		return
	}

	resp := h.handler.Handle(r.Context(), req)
	h.record(r, req, &resp)
	respondJSON(w, http.StatusOK, resp)
}

// record journals the request. One-shot requests become a run of their
// own; session-scoped requests extend the run named by the session id.
func (h *ExecuteHandler) record(r *http.Request, req protocol.Request, resp *protocol.Response) {
	if h.recorder == nil || req.Method != protocol.MethodExecute || len(req.Actions) == 0 {
		return
	}
	ctx := r.Context()
	log := h.logger.WithField("clientId", req.Client())

	runID := req.SessionID
	mode := session.ModeStepwise
	if !req.SessionScoped() {
		runID = uuidutil.NewSessionID()
		mode = session.ModeOneShot
	}

	h.mu.Lock()
	now := h.now()
	_, started := h.open[runID]
	h.open[runID] = now
	stale := h.expireLocked(now, runID)
	h.mu.Unlock()
	h.abandon(ctx, stale)

	if !started {
		err := h.recorder.StartRun(ctx, session.RunInfo{
			ID:       runID,
			ClientID: req.Client(),
			Mode:     mode,
			Actions:  len(req.Actions),
		})
		if err != nil {
			log.Warn(ctx, "Failed to record run start", map[string]interface{}{"runId": runID, "error": err.Error()})
		}
	}

	base := 0
	if req.StepIndex != nil {
		base = *req.StepIndex
	}
	for _, step := range stepsOf(base, req, resp) {
		if err := h.recorder.RecordStep(ctx, runID, step); err != nil {
			log.Warn(ctx, "Failed to record step", map[string]interface{}{"runId": runID, "error": err.Error()})
		}
	}

	if mode == session.ModeOneShot || req.Done() || resp.BrowserClosed() || !resp.OK() {
		h.mu.Lock()
		delete(h.open, runID)
		h.mu.Unlock()
		if err := h.recorder.FinishRun(ctx, runID, resp.OK()); err != nil {
			log.Warn(ctx, "Failed to record run end", map[string]interface{}{"runId": runID, "error": err.Error()})
		}
	}
}

// expireLocked forgets runs idle for longer than the idle timeout, except
// keep, and returns their ids.
func (h *ExecuteHandler) expireLocked(now time.Time, keep string) []string {
	var stale []string
	for id, last := range h.open {
		if id != keep && now.Sub(last) > h.idle {
			stale = append(stale, id)
			delete(h.open, id)
		}
	}
	return stale
}

func (h *ExecuteHandler) abandon(ctx context.Context, runIDs []string) {
	for _, id := range runIDs {
		h.logger.Warn(ctx, "Closing idle run", map[string]interface{}{
			"runId": id,
			"idle":  h.idle.String(),
		})
		if err := h.recorder.FinishRun(ctx, id, false); err != nil {
			h.logger.Warn(ctx, "Failed to record run end", map[string]interface{}{"runId": id, "error": err.Error()})
		}
	}
}

func stepsOf(base int, req protocol.Request, resp *protocol.Response) []protocol.StepResult {
	if !resp.OK() {
		return []protocol.StepResult{{
			Index:         base,
			Type:          req.Actions[0].Type,
			Message:       resp.Message,
			BrowserClosed: resp.BrowserClosed(),
		}}
	}
	steps := make([]protocol.StepResult, 0, len(resp.Data.Steps))
	for i, s := range resp.Data.Steps {
		s.Index = base + i
		s.Message = resp.Message
		s.BrowserClosed = i == len(resp.Data.Steps)-1 && resp.BrowserClosed()
		steps = append(steps, s)
	}
	return steps
}
