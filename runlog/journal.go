package runlog

import (
	"context"
	"time"

	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
	"github.com/hairizuan-noorazman/browser-steps/session"
)

// Journal records coordinator runs into a Store. It implements
// session.Recorder.
type Journal struct {
	store  Store
	logger logger.Logger
	now    func() time.Time
}

var _ session.Recorder = (*Journal)(nil)

// NewJournal creates a journal writing to store.
func NewJournal(store Store, log logger.Logger) *Journal {
	return &Journal{store: store, logger: log, now: time.Now}
}

func (j *Journal) StartRun(ctx context.Context, info session.RunInfo) error {
	run := &Run{
		ID:        info.ID,
		ClientID:  info.ClientID,
		Mode:      info.Mode,
		Status:    StatusRunning,
		Actions:   info.Actions,
		StartedAt: info.StartedAt,
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = j.now()
	}
	return j.store.CreateRun(ctx, run)
}

func (j *Journal) RecordStep(ctx context.Context, runID string, step protocol.StepResult) error {
	return j.store.AddStep(ctx, &Step{
		RunID:         runID,
		StepIndex:     step.Index,
		ActionType:    string(step.Type),
		OK:            step.OK,
		Message:       step.Message,
		Data:          Payload(step.Data),
		BrowserClosed: step.BrowserClosed,
		CreatedAt:     j.now(),
	})
}

func (j *Journal) FinishRun(ctx context.Context, runID string, ok bool) error {
	status := StatusPassed
	if !ok {
		status = StatusFailed
	}
	return j.store.FinishRun(ctx, runID, status, j.now())
}
