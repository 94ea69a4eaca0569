// Package browsertest provides in-memory browser doubles for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hairizuan-noorazman/browser-steps/browser"
)

// Element is a scripted browser.Element.
type Element struct {
	Tag       string
	Attrs     map[string]string
	InnerText string
	Hidden    bool
	Stale     bool
	Box       browser.Rect
	Path      string

	// OnClick runs after a successful click.
	OnClick func()

	mu      sync.Mutex
	clicks  int
	cleared int
	typed   []string
	keys    []browser.Key
	scrolls int
}

func (e *Element) check() error {
	if e.Stale {
		return browser.ErrStaleElement
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	e.mu.Lock()
	e.clicks++
	e.mu.Unlock()
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared++
	e.typed = nil
	return nil
}

func (e *Element) SendKeys(ctx context.Context, text string) error {
	if err := e.check(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.typed = append(e.typed, text)
	return nil
}

func (e *Element) PressKey(ctx context.Context, key browser.Key) error {
	if err := e.check(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = append(e.keys, key)
	return nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scrolls++
	return nil
}

func (e *Element) Displayed(ctx context.Context) (bool, error) {
	if err := e.check(); err != nil {
		return false, err
	}
	return !e.Hidden, nil
}

func (e *Element) TagName(ctx context.Context) (string, error) {
	return e.Tag, e.check()
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	if err := e.check(); err != nil {
		return "", err
	}
	return e.Attrs[name], nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	return e.InnerText, e.check()
}

func (e *Element) Rect(ctx context.Context) (browser.Rect, error) {
	return e.Box, e.check()
}

func (e *Element) StructuralPath(ctx context.Context) (string, error) {
	return e.Path, e.check()
}

// Clicks returns how many times the element was clicked.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Cleared returns how many times the element was cleared.
func (e *Element) Cleared() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cleared
}

// Typed returns text sent since the last clear.
func (e *Element) Typed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.typed...)
}

// Keys returns keys pressed on the element.
func (e *Element) Keys() []browser.Key {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]browser.Key(nil), e.keys...)
}

// Scrolls returns how many times the element was scrolled into view.
func (e *Element) Scrolls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scrolls
}

// Driver is a scripted browser.Driver.
type Driver struct {
	mu sync.Mutex

	URL      string
	PageName string
	Source   string
	PNG      []byte

	// Elements resolves Find and WaitVisible.
	Elements map[browser.Locator]*Element
	// Groups resolves FindAll by exact selector; All is the fallback.
	Groups map[string][]*Element
	All    []*Element

	Frames int

	// NavigateErr is returned by Navigate when set.
	NavigateErr error

	navigations []string
	keys        []browser.Key
	scrolls     [][2]int
	frameIndex  int
	inFrame     bool
	downloadDir string
	quits       int
}

// NewDriver returns an empty driver on about:blank.
func NewDriver() *Driver {
	return &Driver{
		URL:      "about:blank",
		Elements: make(map[browser.Locator]*Element),
		Groups:   make(map[string][]*Element),
	}
}

// Add registers el under loc.
func (d *Driver) Add(loc browser.Locator, el *Element) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Elements[loc] = el
	return el
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	d.URL = url
	d.inFrame = false
	d.navigations = append(d.navigations, url)
	return nil
}

func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.URL, nil
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.PageName, nil
}

func (d *Driver) PageSource(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Source, nil
}

func (d *Driver) Find(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	d.mu.Lock()
	el, ok := d.Elements[loc]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", browser.ErrElementNotFound, loc.Kind, loc.Value)
	}
	if el.Stale {
		return nil, browser.ErrStaleElement
	}
	return el, nil
}

func (d *Driver) FindAll(ctx context.Context, css string) ([]browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	els, ok := d.Groups[css]
	if !ok {
		els = d.All
	}
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out, nil
}

func (d *Driver) WaitVisible(ctx context.Context, loc browser.Locator, timeout time.Duration) error {
	el, err := d.Find(ctx, loc)
	if err != nil {
		return err
	}
	if el.(*Element).Hidden {
		return fmt.Errorf("%w: %q not visible after %s", browser.ErrElementNotFound, loc.Value, timeout)
	}
	return nil
}

func (d *Driver) PressKey(ctx context.Context, key browser.Key) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys = append(d.keys, key)
	return nil
}

func (d *Driver) ScrollBy(ctx context.Context, dx, dy int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scrolls = append(d.scrolls, [2]int{dx, dy})
	return nil
}

func (d *Driver) SwitchToFrameIndex(ctx context.Context, index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= d.Frames {
		return fmt.Errorf("%w: index %d of %d", browser.ErrNoSuchFrame, index, d.Frames)
	}
	d.inFrame = true
	d.frameIndex = index
	return nil
}

func (d *Driver) SwitchToFrame(ctx context.Context, frame browser.Element) error {
	if _, ok := frame.(*Element); !ok {
		return browser.ErrNoSuchFrame
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFrame = true
	d.frameIndex = -1
	return nil
}

func (d *Driver) SwitchToDefault(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFrame = false
	return nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PNG == nil {
		return []byte("\x89PNG\r\n\x1a\n"), nil
	}
	return d.PNG, nil
}

func (d *Driver) SetDownloadDir(ctx context.Context, dir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.downloadDir = dir
	return nil
}

func (d *Driver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quits++
	return nil
}

// Navigations returns every URL passed to Navigate.
func (d *Driver) Navigations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navigations...)
}

// PressedKeys returns keys sent to the page.
func (d *Driver) PressedKeys() []browser.Key {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.Key(nil), d.keys...)
}

// Scrolls returns every ScrollBy offset.
func (d *Driver) Scrolls() [][2]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][2]int(nil), d.scrolls...)
}

// InFrame reports whether a frame is selected, and which index.
func (d *Driver) InFrame() (bool, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFrame, d.frameIndex
}

// DownloadDir returns the last directory set through SetDownloadDir.
func (d *Driver) DownloadDir() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloadDir
}

// Quits returns how many times Quit was called.
func (d *Driver) Quits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quits
}

// Launcher hands out Drivers and records launch options.
type Launcher struct {
	// NewDriver builds the driver for each launch. Defaults to NewDriver.
	NewDriver func() *Driver
	// Err fails every launch when set.
	Err error

	mu      sync.Mutex
	options []browser.Options
	drivers []*Driver
}

func (l *Launcher) Launch(ctx context.Context, opts browser.Options) (browser.Driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	build := l.NewDriver
	if build == nil {
		build = NewDriver
	}
	d := build()
	if opts.DownloadDir != "" {
		d.downloadDir = opts.DownloadDir
	}
	l.options = append(l.options, opts)
	l.drivers = append(l.drivers, d)
	return d, nil
}

// Launches returns how many drivers were launched.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.drivers)
}

// Last returns the most recently launched driver and its options.
func (l *Launcher) Last() (*Driver, browser.Options) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.drivers) == 0 {
		return nil, browser.Options{}
	}
	return l.drivers[len(l.drivers)-1], l.options[len(l.options)-1]
}
