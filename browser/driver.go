// Package browser declares the driver capability set used by the step
// dispatcher and the live sensing engine, with a go-rod implementation.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStaleElement is returned when an element detached from the DOM
	// between lookup and use.
	ErrStaleElement = errors.New("element is stale")

	// ErrElementNotFound is returned when a locator matched nothing in time.
	ErrElementNotFound = errors.New("element not found")

	// ErrNoSuchFrame is returned when a frame index is out of range.
	ErrNoSuchFrame = errors.New("no such frame")
)

// LocatorKind selects how a locator value is interpreted.
type LocatorKind string

const (
	CSS   LocatorKind = "css"
	XPath LocatorKind = "xpath"
)

// Locator identifies an element on the current page or frame.
type Locator struct {
	Kind  LocatorKind
	Value string
}

// Options controls how a browser is launched.
type Options struct {
	Headless    bool
	DownloadDir string
}

// Rect is an element bounding box.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Launcher starts a browser and returns a driver bound to its first page.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Driver, error)
}

// Driver is a live browser.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)

	// Find waits for the locator to match an element in the current frame.
	Find(ctx context.Context, loc Locator) (Element, error)
	// FindAll returns the elements currently matching a CSS selector group.
	FindAll(ctx context.Context, css string) ([]Element, error)
	// WaitVisible waits until the locator matches a visible element.
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error

	PressKey(ctx context.Context, key Key) error
	ScrollBy(ctx context.Context, dx, dy int) error

	SwitchToFrameIndex(ctx context.Context, index int) error
	SwitchToFrame(ctx context.Context, frame Element) error
	SwitchToDefault(ctx context.Context) error

	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	SetDownloadDir(ctx context.Context, dir string) error

	Quit() error
}

// Element is a handle to a DOM element.
type Element interface {
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	PressKey(ctx context.Context, key Key) error
	ScrollIntoView(ctx context.Context) error

	Displayed(ctx context.Context) (bool, error)
	TagName(ctx context.Context) (string, error)
	// Attribute returns "" when the attribute is absent.
	Attribute(ctx context.Context, name string) (string, error)
	Text(ctx context.Context) (string, error)
	Rect(ctx context.Context) (Rect, error)

	// StructuralPath returns a tag:nth-of-type path of at most six levels,
	// rooted at the nearest ancestor carrying an id.
	StructuralPath(ctx context.Context) (string, error)
}
