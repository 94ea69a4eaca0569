package runlog

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/browser-steps/database"
	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/testutil"
)

func TestGormStore_CreateRun(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	t.Run("defaults to running", func(t *testing.T) {
		run := createRun("run-1", time.Now())
		require.NoError(t, store.CreateRun(ctx, run))
		assert.Equal(t, StatusRunning, run.Status)
	})

	t.Run("missing id", func(t *testing.T) {
		run := createRun("", time.Now())
		assert.ErrorIs(t, store.CreateRun(ctx, run), ErrInvalidRunID)
	})

	t.Run("unknown mode", func(t *testing.T) {
		run := createRun("run-2", time.Now())
		run.Mode = "batch"
		assert.ErrorIs(t, store.CreateRun(ctx, run), ErrInvalidMode)
	})
}

func TestGormStore_StepsAndFinish(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateRun(ctx, createRun("run-1", started)))

	for _, step := range []*Step{
		{RunID: "run-1", StepIndex: 1, ActionType: "goto", OK: true, Data: Payload(`"https://example.com/"`)},
		{RunID: "run-1", StepIndex: 0, ActionType: "open_browser", OK: true, Data: Payload(`"ok"`)},
		{RunID: "run-1", StepIndex: 2, ActionType: "click", Message: "Execution failed: element not found", BrowserClosed: true},
	} {
		require.NoError(t, store.AddStep(ctx, step))
	}
	require.NoError(t, store.FinishRun(ctx, "run-1", StatusFailed, started.Add(3*time.Second)))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 3*time.Second, run.Duration())
	require.Len(t, run.Steps, 3)
	assert.Equal(t, "open_browser", run.Steps[0].ActionType)
	assert.Equal(t, `"https://example.com/"`, string(run.Steps[1].Data))
	assert.False(t, run.Steps[2].OK)
	assert.True(t, run.Steps[2].BrowserClosed)
	assert.Empty(t, run.Steps[2].Data)

	out, err := json.Marshal(run.Steps[2])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"data":null`)
}

func TestGormStore_Errors(t *testing.T) {
	_, store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = store.FinishRun(ctx, "missing", StatusPassed, time.Now())
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = store.AddStep(ctx, &Step{ActionType: "goto"})
	assert.ErrorIs(t, err, ErrInvalidRunID)
}

func TestGormStore_ListRuns(t *testing.T) {
	db, store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	testutil.CreateFixtures(t, db,
		createRun("a", base),
		createRun("b", base.Add(time.Minute)),
		createRun("c", base.Add(2*time.Minute)),
	)

	runs, err := store.ListRuns(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	runs, err = store.ListRuns(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "a", runs[0].ID)

	count, err := store.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStatus_IsValid(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusRunning, true},
		{StatusPassed, true},
		{StatusFailed, true},
		{"cancelled", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsValid())
		})
	}
}

func TestOpen_SQLite(t *testing.T) {
	store, closeDB, err := Open(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "runs.db"),
	}, logger.NewTestLogger())
	require.NoError(t, err)
	defer closeDB()

	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, createRun("run-1", time.Now())))

	count, err := store.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
