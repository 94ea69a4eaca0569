package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no response arrives before the call deadline.
	ErrTimeout = errors.New("timed out waiting for worker response")

	// ErrUnexpectedEOF is returned when the worker closes its output while
	// a call is waiting.
	ErrUnexpectedEOF = errors.New("worker closed its output")

	// ErrMalformedResponse is returned when a response line is not a valid envelope.
	ErrMalformedResponse = errors.New("malformed worker response")

	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("transport closed")

	// ErrStepwiseUnsupported is returned by transports that cannot hold a
	// browser open between requests.
	ErrStepwiseUnsupported = errors.New("transport does not support stepwise sessions")
)

// ProcessExitedError is returned when the worker exits while a call is waiting.
type ProcessExitedError struct {
	Code int
}

func (e *ProcessExitedError) Error() string {
	return fmt.Sprintf("worker exited with code %d", e.Code)
}
