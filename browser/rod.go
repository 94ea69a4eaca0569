package browser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hairizuan-noorazman/browser-steps/logger"
)

// RodConfig configures RodLauncher.
type RodConfig struct {
	// Bin is the Chrome binary. Empty lets rod locate or download one.
	Bin string

	// RemoteURL is the DevTools WebSocket URL of an already running Chrome.
	// Empty launches a local Chrome.
	RemoteURL string

	// Stealth opens pages with go-rod/stealth evasions applied.
	Stealth bool

	// ElementTimeout bounds how long Find waits for a locator. Default: 10s.
	ElementTimeout time.Duration

	// NavigationTimeout bounds Navigate including the load event. Default: 30s.
	NavigationTimeout time.Duration

	// Flags are extra Chrome command-line switches.
	Flags map[string]string
}

func (c *RodConfig) defaults() {
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = 10 * time.Second
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
}

// RodLauncher launches Chrome through go-rod.
type RodLauncher struct {
	cfg    RodConfig
	logger logger.Logger
}

// NewRodLauncher creates a launcher. Nothing is started until Launch.
func NewRodLauncher(cfg RodConfig, log logger.Logger) *RodLauncher {
	cfg.defaults()
	return &RodLauncher{cfg: cfg, logger: log.WithField("component", "rod")}
}

// Launch starts (or connects to) Chrome and opens a blank page.
func (l *RodLauncher) Launch(ctx context.Context, opts Options) (Driver, error) {
	var (
		controlURL string
		lnch       *launcher.Launcher
	)

	if l.cfg.RemoteURL != "" {
		controlURL = l.cfg.RemoteURL
		l.logger.Info(ctx, "Connecting to remote browser", map[string]interface{}{"url": controlURL})
	} else {
		lnch = launcher.New().
			Headless(opts.Headless).
			Set("remote-allow-origins", "*").
			Set("disable-blink-features", "AutomationControlled")
		if l.cfg.Bin != "" {
			lnch = lnch.Bin(l.cfg.Bin)
		}
		for name, value := range l.cfg.Flags {
			lnch = lnch.Set(flagName(name), value)
		}

		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
		l.logger.Info(ctx, "Launched local browser", map[string]interface{}{
			"headless": opts.Headless,
		})
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	var (
		page *rod.Page
		err  error
	)
	if l.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		_ = b.Close()
		if lnch != nil {
			lnch.Kill()
		}
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	d := &rodDriver{
		cfg:      l.cfg,
		browser:  b,
		launcher: lnch,
		page:     page,
		logger:   l.logger,
	}

	if opts.DownloadDir != "" {
		if err := d.SetDownloadDir(ctx, opts.DownloadDir); err != nil {
			_ = d.Quit()
			return nil, err
		}
	}
	return d, nil
}

func flagName(name string) flags.Flag {
	return flags.Flag(strings.TrimLeft(name, "-"))
}

type rodDriver struct {
	cfg      RodConfig
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	logger   logger.Logger

	mu    sync.Mutex
	frame *rod.Page
}

func (d *rodDriver) current() *rod.Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame != nil {
		return d.frame
	}
	return d.page
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	nctx, cancel := context.WithTimeout(ctx, d.cfg.NavigationTimeout)
	defer cancel()

	d.mu.Lock()
	d.frame = nil
	d.mu.Unlock()

	page := d.page.Context(nctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		d.logger.Warn(ctx, "Page load did not complete", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
	}
	return nil
}

func (d *rodDriver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

func (d *rodDriver) Title(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.Title, nil
}

func (d *rodDriver) PageSource(ctx context.Context) (string, error) {
	html, err := d.current().Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page source: %w", err)
	}
	return html, nil
}

func locate(page *rod.Page, loc Locator) (*rod.Element, error) {
	if loc.Kind == XPath {
		return page.ElementX(loc.Value)
	}
	return page.Element(loc.Value)
}

func (d *rodDriver) Find(ctx context.Context, loc Locator) (Element, error) {
	fctx, cancel := context.WithTimeout(ctx, d.cfg.ElementTimeout)
	defer cancel()

	el, err := locate(d.current().Context(fctx), loc)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %q", ErrElementNotFound, loc.Kind, loc.Value)
		}
		return nil, classify(err)
	}
	return &rodElement{el: el}, nil
}

func (d *rodDriver) FindAll(ctx context.Context, css string) ([]Element, error) {
	els, err := d.current().Context(ctx).Elements(css)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", css, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (d *rodDriver) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := locate(d.current().Context(wctx), loc)
	if err == nil {
		err = el.WaitVisible()
	}
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %q not visible after %s", ErrElementNotFound, loc.Value, timeout)
		}
		return classify(err)
	}
	return nil
}

func (d *rodDriver) PressKey(ctx context.Context, key Key) error {
	if err := d.page.Context(ctx).Keyboard.Type(rodKey(key)); err != nil {
		return fmt.Errorf("failed to press %s: %w", key, err)
	}
	return nil
}

func (d *rodDriver) ScrollBy(ctx context.Context, dx, dy int) error {
	_, err := d.current().Context(ctx).Eval(`(dx, dy) => window.scrollBy(dx, dy)`, dx, dy)
	if err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

func (d *rodDriver) SwitchToFrameIndex(ctx context.Context, index int) error {
	frames, err := d.current().Context(ctx).Elements("iframe, frame")
	if err != nil {
		return fmt.Errorf("failed to list frames: %w", err)
	}
	if index < 0 || index >= len(frames) {
		return fmt.Errorf("%w: index %d of %d", ErrNoSuchFrame, index, len(frames))
	}
	return d.enterFrame(frames[index])
}

func (d *rodDriver) SwitchToFrame(ctx context.Context, frame Element) error {
	re, ok := frame.(*rodElement)
	if !ok {
		return fmt.Errorf("%w: element does not belong to this driver", ErrNoSuchFrame)
	}
	return d.enterFrame(re.el.Context(ctx))
}

func (d *rodDriver) enterFrame(el *rod.Element) error {
	fp, err := el.Frame()
	if err != nil {
		return fmt.Errorf("failed to enter frame: %w", classify(err))
	}
	d.mu.Lock()
	d.frame = fp
	d.mu.Unlock()
	return nil
}

func (d *rodDriver) SwitchToDefault(ctx context.Context) error {
	d.mu.Lock()
	d.frame = nil
	d.mu.Unlock()
	return nil
}

func (d *rodDriver) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := d.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return png, nil
}

func (d *rodDriver) SetDownloadDir(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve download dir: %w", err)
	}
	err = proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath:  abs,
		EventsEnabled: true,
	}.Call(d.browser.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to set download behaviour: %w", err)
	}
	return nil
}

func (d *rodDriver) Quit() error {
	err := d.browser.Close()
	if d.launcher != nil {
		if err != nil {
			d.launcher.Kill()
		}
		d.launcher.Cleanup()
	}
	if err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

var rodKeys = map[Key]input.Key{
	KeyEnter:      input.Enter,
	KeyTab:        input.Tab,
	KeyEscape:     input.Escape,
	KeyBackspace:  input.Backspace,
	KeyDelete:     input.Delete,
	KeySpace:      input.Key(' '),
	KeyArrowUp:    input.ArrowUp,
	KeyArrowDown:  input.ArrowDown,
	KeyArrowLeft:  input.ArrowLeft,
	KeyArrowRight: input.ArrowRight,
	KeyHome:       input.Home,
	KeyEnd:        input.End,
	KeyPageUp:     input.PageUp,
	KeyPageDown:   input.PageDown,
}

func rodKey(k Key) input.Key {
	if rk, ok := rodKeys[k]; ok {
		return rk
	}
	return input.Enter
}

// classify maps detached-node failures onto ErrStaleElement.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var notFound *rod.ObjectNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrStaleElement, err)
	}
	msg := err.Error()
	for _, marker := range []string{"No node with given id", "Could not find node", "Node is detached", "Cannot find context with specified id"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", ErrStaleElement, err)
		}
	}
	return err
}
