package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/browser-steps/dispatcher"
	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
	"github.com/hairizuan-noorazman/browser-steps/session"
	"github.com/hairizuan-noorazman/browser-steps/transport"
)

type fakeHandler struct {
	mu       sync.Mutex
	requests []protocol.Request
	fail     bool
}

func (f *fakeHandler) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.fail {
		return protocol.ErrorResponse("Execution failed: element not found", protocol.Bool(true))
	}
	steps := make([]protocol.StepResult, 0, len(req.Actions))
	for i, a := range req.Actions {
		step, _ := protocol.NewStepResult(i, a.Type, "ok")
		steps = append(steps, step)
	}
	return protocol.OKResponse("All actions executed", steps, !req.SessionScoped() || req.Done())
}

func (f *fakeHandler) State() dispatcher.State { return dispatcher.StateNoBrowser }

type memRecorder struct {
	mu       sync.Mutex
	runs     map[string]session.RunInfo
	steps    map[string][]protocol.StepResult
	finished map[string]bool
}

func newMemRecorder() *memRecorder {
	return &memRecorder{
		runs:     make(map[string]session.RunInfo),
		steps:    make(map[string][]protocol.StepResult),
		finished: make(map[string]bool),
	}
}

func (m *memRecorder) StartRun(ctx context.Context, info session.RunInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[info.ID] = info
	return nil
}

func (m *memRecorder) RecordStep(ctx context.Context, runID string, step protocol.StepResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[runID] = append(m.steps[runID], step)
	return nil
}

func (m *memRecorder) FinishRun(ctx context.Context, runID string, ok bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[runID] = ok
	return nil
}

func postExecute(t *testing.T, h *ExecuteHandler, body string) (*httptest.ResponseRecorder, protocol.Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, transport.ExecutePath, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Execute(w, req)

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestExecuteHandler(t *testing.T) {
	t.Run("invalid body", func(t *testing.T) {
		h := NewExecuteHandler(&fakeHandler{}, nil, logger.NewTestLogger())
		w, resp := postExecute(t, h, "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, protocol.StatusError, resp.Status)
		assert.True(t, strings.HasPrefix(resp.Message, "Invalid request: "))
	})

	t.Run("forwards request", func(t *testing.T) {
		fake := &fakeHandler{}
		h := NewExecuteHandler(fake, nil, logger.NewTestLogger())
		w, resp := postExecute(t, h, `{"method":"execute","actions":[{"type":"get_title"}]}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.OK())
		assert.True(t, resp.BrowserClosed())
		require.Len(t, fake.requests, 1)
		assert.Equal(t, protocol.ActionGetTitle, fake.requests[0].Actions[0].Type)
	})

	t.Run("error envelope is still 200", func(t *testing.T) {
		h := NewExecuteHandler(&fakeHandler{fail: true}, nil, logger.NewTestLogger())
		w, resp := postExecute(t, h, `{"method":"execute","actions":[{"type":"click","selector":"#x"}]}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, protocol.StatusError, resp.Status)
	})
}

func TestExecuteHandlerRecordsOneShot(t *testing.T) {
	rec := newMemRecorder()
	h := NewExecuteHandler(&fakeHandler{}, rec, logger.NewTestLogger())

	postExecute(t, h, `{"clientId":"cli","method":"execute","actions":[{"type":"open_browser"},{"type":"get_title"}]}`)

	require.Len(t, rec.runs, 1)
	for id, info := range rec.runs {
		assert.Equal(t, session.ModeOneShot, info.Mode)
		assert.Equal(t, "cli", info.ClientID)
		require.Len(t, rec.steps[id], 2)
		assert.True(t, rec.steps[id][1].BrowserClosed)
		assert.False(t, rec.steps[id][0].BrowserClosed)
		assert.True(t, rec.finished[id])
	}
}

func TestExecuteHandlerRecordsSession(t *testing.T) {
	rec := newMemRecorder()
	h := NewExecuteHandler(&fakeHandler{}, rec, logger.NewTestLogger())

	postExecute(t, h, `{"method":"execute","sessionId":"s-1","stepIndex":0,"sessionDone":false,"actions":[{"type":"open_browser"}]}`)
	_, done := rec.finished["s-1"]
	assert.False(t, done)

	postExecute(t, h, `{"method":"execute","sessionId":"s-1","stepIndex":1,"sessionDone":true,"actions":[{"type":"quit"}]}`)

	assert.Equal(t, session.ModeStepwise, rec.runs["s-1"].Mode)
	require.Len(t, rec.steps["s-1"], 2)
	assert.Equal(t, 1, rec.steps["s-1"][1].Index)
	assert.True(t, rec.finished["s-1"])
}

func TestExecuteHandlerWithHTTPPeer(t *testing.T) {
	fake := &fakeHandler{}
	router := mux.NewRouter()
	router.HandleFunc("/health", HealthHandler(fake)).Methods(http.MethodGet)
	router.HandleFunc(transport.ExecutePath, NewExecuteHandler(fake, nil, logger.NewTestLogger()).Execute).Methods(http.MethodPost)
	srv := httptest.NewServer(router)
	defer srv.Close()

	peer := transport.NewHTTPPeer(srv.URL, logger.NewTestLogger())
	resp, err := peer.Execute(context.Background(), protocol.Request{
		Method:  protocol.MethodExecute,
		Actions: []protocol.Action{{Type: protocol.ActionGetCurrentURL}},
	}, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, resp.OK())

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	var body HealthResponse
	require.NoError(t, json.NewDecoder(health.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "no_browser", body.Browser)
}

func TestExecuteHandlerClosesIdleRuns(t *testing.T) {
	stepBody := func(sessionID string, index int) string {
		return fmt.Sprintf(`{"method":"execute","sessionId":%q,"stepIndex":%d,"sessionDone":false,"actions":[{"type":"get_title"}]}`, sessionID, index)
	}

	tests := []struct {
		name       string
		advance    time.Duration
		next       string
		wantClosed bool
		wantOpen   []string
	}{
		{name: "idle run closed as failed", advance: 11 * time.Minute, next: "s-2", wantClosed: true, wantOpen: []string{"s-2"}},
		{name: "recent run kept", advance: 5 * time.Minute, next: "s-2", wantOpen: []string{"s-1", "s-2"}},
		{name: "late request keeps its own run", advance: 11 * time.Minute, next: "s-1", wantOpen: []string{"s-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newMemRecorder()
			log := logger.NewTestLogger()
			h := NewExecuteHandler(&fakeHandler{}, rec, log)
			clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
			h.now = func() time.Time { return clock }

			postExecute(t, h, stepBody("s-1", 0))
			clock = clock.Add(tt.advance)
			postExecute(t, h, stepBody(tt.next, 1))

			ok, closed := rec.finished["s-1"]
			assert.Equal(t, tt.wantClosed, closed)
			assert.False(t, ok)
			assert.Equal(t, tt.wantClosed, log.Contains("warn", "Closing idle run"))

			var open []string
			for id := range h.open {
				open = append(open, id)
			}
			assert.ElementsMatch(t, tt.wantOpen, open)
		})
	}
}
