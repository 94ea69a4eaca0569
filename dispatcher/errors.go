package dispatcher

import (
	"errors"
	"fmt"
)

var (
	// ErrBrowserNotOpen is returned for browser actions before open_browser.
	ErrBrowserNotOpen = errors.New("browser not opened, call open_browser first")

	// ErrMissingSelector is returned when an element action has no selector.
	ErrMissingSelector = errors.New("selector required")

	// ErrFrameTarget is returned when switch_to_frame has neither a
	// frameIndex nor a selector.
	ErrFrameTarget = errors.New("switch_to_frame requires frameIndex or selector")

	// ErrMissingURL is returned when goto has no url.
	ErrMissingURL = errors.New("url required")
)

// UnsupportedLocatorError is returned for a "by" value other than css or xpath.
type UnsupportedLocatorError struct {
	Kind string
}

func (e *UnsupportedLocatorError) Error() string {
	return fmt.Sprintf("unsupported locator 'by': %s", e.Kind)
}
