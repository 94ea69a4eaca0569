package assist

import (
	"context"

	"github.com/hairizuan-noorazman/browser-steps/protocol"
)

// Planner turns a natural-language prompt into an action list, using
// selector hints for the target page when available. No implementation
// ships with this module.
type Planner interface {
	Plan(ctx context.Context, prompt string, hints []protocol.SelectorHint) ([]protocol.Action, error)
}
