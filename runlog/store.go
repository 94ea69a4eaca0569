package runlog

import (
	"context"
	"time"
)

// Store persists runs and steps.
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	AddStep(ctx context.Context, step *Step) error
	FinishRun(ctx context.Context, id string, status Status, endedAt time.Time) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	CountRuns(ctx context.Context) (int, error)
}
