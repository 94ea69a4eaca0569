package runlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
	"github.com/hairizuan-noorazman/browser-steps/session"
	"github.com/hairizuan-noorazman/browser-steps/testutil"
)

func TestJournal(t *testing.T) {
	db, store := setupTestStore(t)
	ctx := context.Background()

	j := NewJournal(store, logger.NewTestLogger())
	fixed := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	require.NoError(t, j.StartRun(ctx, session.RunInfo{ID: "sess-1", ClientID: "cli", Mode: session.ModeOneShot, Actions: 2}))

	title, err := protocol.NewStepResult(0, protocol.ActionGetTitle, "Example Domain")
	require.NoError(t, err)
	require.NoError(t, j.RecordStep(ctx, "sess-1", title))
	require.NoError(t, j.RecordStep(ctx, "sess-1", protocol.StepResult{
		Index:         1,
		Type:          protocol.ActionClick,
		Message:       "Execution failed: element not found",
		BrowserClosed: true,
	}))
	require.NoError(t, j.FinishRun(ctx, "sess-1", false))

	run, err := store.GetRun(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.ModeOneShot, run.Mode)
	assert.Equal(t, StatusFailed, run.Status)
	assert.True(t, run.StartedAt.Equal(fixed))
	require.Len(t, run.Steps, 2)
	assert.Equal(t, `"Example Domain"`, string(run.Steps[0].Data))
	assert.Equal(t, "click", run.Steps[1].ActionType)
	assert.Equal(t, int64(2), testutil.CountRows(t, db, "run_steps"))
}

func TestJournalWithCoordinator(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	inv := invokerFunc(func(req protocol.Request) *protocol.Response {
		step, _ := protocol.NewStepResult(0, req.Actions[0].Type, "ok")
		resp := protocol.OKResponse("All actions executed", []protocol.StepResult{step}, req.Done())
		return &resp
	})
	c := session.NewCoordinator(session.Config{ClientID: "cli"}, inv, logger.NewTestLogger(),
		session.WithRecorder(NewJournal(store, logger.NewTestLogger())))

	out, err := c.ExecuteStepwise(ctx, []protocol.Action{
		{Type: protocol.ActionOpenBrowser},
		{Type: protocol.ActionQuit},
	}, true, "")
	require.NoError(t, err)

	run, err := store.GetRun(ctx, out.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusPassed, run.Status)
	assert.Equal(t, "cli", run.ClientID)
	assert.Len(t, run.Steps, 2)
	assert.True(t, run.Steps[1].BrowserClosed)
}

type invokerFunc func(req protocol.Request) *protocol.Response

func (f invokerFunc) Execute(ctx context.Context, req protocol.Request, timeout time.Duration) (*protocol.Response, error) {
	return f(req), nil
}
