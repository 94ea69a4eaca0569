// Package transport carries step requests to a worker and returns its
// responses. Supervisor runs the worker as a child process speaking JSON
// lines over stdin/stdout; HTTPPeer posts to a worker's HTTP endpoint.
package transport

import (
	"context"
	"time"

	"github.com/hairizuan-noorazman/browser-steps/protocol"
)

// Invoker sends one request and waits up to timeout for its response.
// Implementations serialize calls; there is never more than one request
// in flight per worker.
type Invoker interface {
	Execute(ctx context.Context, req protocol.Request, timeout time.Duration) (*protocol.Response, error)
}

// Restarter is implemented by invokers that can replace their worker.
type Restarter interface {
	Restart(ctx context.Context) error
}

// Handler answers one request. *dispatcher.Dispatcher satisfies it.
type Handler interface {
	Handle(ctx context.Context, req protocol.Request) protocol.Response
}
