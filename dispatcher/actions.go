package dispatcher

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hairizuan-noorazman/browser-steps/browser"
	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
	"github.com/hairizuan-noorazman/browser-steps/sensing"
	"github.com/hairizuan-noorazman/browser-steps/storage"
)

const (
	resultOK          = "ok"
	resultIgnoredNull = "ignored (null)"
	// DownloadUnknown is reported when no new file appeared in time.
	DownloadUnknown = "unknown"
)

func (d *Dispatcher) openBrowser(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	if s.resource != nil {
		return resultOK, nil
	}

	dir := s.downloadDir
	if a.DownloadDir != "" {
		dir = a.DownloadDir
	}
	abs, err := absDir(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	headless := d.cfg.DefaultHeadless
	if a.Headless != nil {
		headless = *a.Headless
	}

	drv, err := d.launcher.Launch(ctx, browser.Options{Headless: headless, DownloadDir: abs})
	if err != nil {
		return nil, err
	}
	s.downloadDir = abs
	s.resource = &BrowserResource{Driver: drv, DownloadDir: abs, OpenedAt: d.now()}
	return resultOK, nil
}

func (d *Dispatcher) setDownloadDir(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	if strings.TrimSpace(a.DownloadDir) == "" {
		return resultIgnoredNull, nil
	}
	abs, err := absDir(a.DownloadDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}
	s.downloadDir = abs
	if s.resource != nil {
		if err := s.resource.Driver.SetDownloadDir(ctx, abs); err != nil {
			return nil, err
		}
		s.resource.DownloadDir = abs
	}
	return abs, nil
}

func (d *Dispatcher) gotoURL(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	if strings.TrimSpace(a.URL) == "" {
		return nil, ErrMissingURL
	}
	drv := s.resource.Driver
	if err := drv.Navigate(ctx, a.URL); err != nil {
		return nil, err
	}
	return drv.CurrentURL(ctx)
}

func (d *Dispatcher) click(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	el, err := d.find(ctx, s, a)
	if err != nil {
		return nil, err
	}
	if err := el.Click(ctx); err != nil {
		return nil, err
	}
	return resultOK, nil
}

func (d *Dispatcher) typeText(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	el, err := d.find(ctx, s, a)
	if err != nil {
		return nil, err
	}
	if err := el.Clear(ctx); err != nil {
		return nil, err
	}
	if err := el.SendKeys(ctx, a.Text); err != nil {
		return nil, err
	}
	return resultOK, nil
}

func (d *Dispatcher) keyPress(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	key, ok := browser.LookupKey(a.Text)
	if !ok {
		key = browser.KeyEnter
		if strings.TrimSpace(a.Text) != "" {
			s.log.Warn(ctx, "Unknown key name, pressing ENTER", map[string]interface{}{"key": a.Text})
		}
	}
	if strings.TrimSpace(a.Selector) != "" {
		el, err := d.find(ctx, s, a)
		if err != nil {
			return nil, err
		}
		if err := el.PressKey(ctx, key); err != nil {
			return nil, err
		}
	} else if err := s.resource.Driver.PressKey(ctx, key); err != nil {
		return nil, err
	}
	return a.Text, nil
}

func (d *Dispatcher) findText(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	src, err := s.resource.Driver.PageSource(ctx)
	if err != nil {
		return nil, err
	}
	return a.Text != "" && strings.Contains(src, a.Text), nil
}

func (d *Dispatcher) wait(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	ms := a.Timeout(int(d.cfg.DefaultWait / time.Millisecond))
	if ms < 0 {
		ms = 0
	}
	if err := sleep(ctx, time.Duration(ms)*time.Millisecond); err != nil {
		return nil, err
	}
	return ms, nil
}

func (d *Dispatcher) waitForSelector(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	loc, err := locator(a)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(a.Timeout(int(d.cfg.SelectorTimeout/time.Millisecond))) * time.Millisecond
	if err := s.resource.Driver.WaitVisible(ctx, loc, timeout); err != nil {
		return nil, err
	}
	return resultOK, nil
}

func (d *Dispatcher) scrollBy(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	dx, dy := 0, 300
	if a.X != nil {
		dx = *a.X
	}
	if a.Y != nil {
		dy = *a.Y
	}
	if err := s.resource.Driver.ScrollBy(ctx, dx, dy); err != nil {
		return nil, err
	}
	return []int{dx, dy}, nil
}

func (d *Dispatcher) scrollTo(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	el, err := d.find(ctx, s, a)
	if err != nil {
		return nil, err
	}
	if err := el.ScrollIntoView(ctx); err != nil {
		return nil, err
	}
	return resultOK, nil
}

func (d *Dispatcher) switchToFrame(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	drv := s.resource.Driver
	switch {
	case a.FrameIndex != nil:
		if err := drv.SwitchToFrameIndex(ctx, *a.FrameIndex); err != nil {
			return nil, err
		}
	case strings.TrimSpace(a.Selector) != "":
		el, err := d.find(ctx, s, a)
		if err != nil {
			return nil, err
		}
		if err := drv.SwitchToFrame(ctx, el); err != nil {
			return nil, err
		}
	default:
		return nil, ErrFrameTarget
	}
	return resultOK, nil
}

func (d *Dispatcher) switchToDefault(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	if err := s.resource.Driver.SwitchToDefault(ctx); err != nil {
		return nil, err
	}
	return resultOK, nil
}

func (d *Dispatcher) senseElements(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	return d.sensor.Sense(ctx, s.resource.Driver, sensing.QueryFromAction(a))
}

func (d *Dispatcher) downloadLink(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	dir := s.resource.DownloadDir
	before := countFiles(dir)

	el, err := d.find(ctx, s, a)
	if err != nil {
		return nil, err
	}
	if err := el.Click(ctx); err != nil {
		return nil, err
	}

	file, err := d.waitForNewFile(ctx, s.log, dir, before)
	if err != nil {
		return nil, err
	}
	if file == "" {
		s.log.Warn(ctx, "No download appeared before timeout", map[string]interface{}{
			"dir":     dir,
			"timeout": d.cfg.DownloadTimeout.String(),
		})
		return DownloadUnknown, nil
	}
	return file, nil
}

func (d *Dispatcher) getTitle(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	return s.resource.Driver.Title(ctx)
}

func (d *Dispatcher) getCurrentURL(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	return s.resource.Driver.CurrentURL(ctx)
}

func (d *Dispatcher) screenshot(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	png, err := s.resource.Driver.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	ts := strings.Replace(d.now().Format("20060102_150405.000"), ".", "_", 1)
	name := path.Join(d.cfg.ScreenshotDir, "shot_"+ts+".png")
	loc, err := storage.Save(ctx, d.artifacts, name, png)
	if err != nil {
		return nil, fmt.Errorf("failed to store screenshot: %w", err)
	}
	return loc, nil
}

func (d *Dispatcher) closeBrowser(ctx context.Context, s *Session, a protocol.Action) (interface{}, error) {
	d.release(ctx, s.log, s, string(a.Type)+" action")
	return resultOK, nil
}

// waitForNewFile waits until dir holds more completed files than before,
// returning the newest one, or "" once the download timeout elapses. Changes
// are picked up from filesystem events; the poll interval is only a backstop
// for filesystems that do not deliver them.
func (d *Dispatcher) waitForNewFile(ctx context.Context, log logger.Logger, dir string, before int) (string, error) {
	deadline := time.NewTimer(d.cfg.DownloadTimeout)
	defer deadline.Stop()
	backstop := time.NewTicker(d.cfg.DownloadPollInterval)
	defer backstop.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		err = watcher.Add(dir)
	}
	if err != nil {
		log.Warn(ctx, "Download directory not watched, polling only", map[string]interface{}{
			"dir":   dir,
			"error": err.Error(),
		})
	} else {
		events, errs = watcher.Events, watcher.Errors
	}

	for {
		if countFiles(dir) > before {
			if newest := newestFile(dir); newest != "" {
				return newest, nil
			}
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", nil
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug(ctx, "Download directory changed", map[string]interface{}{
				"file": event.Name,
				"op":   event.Op.String(),
			})
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn(ctx, "Download watcher error", map[string]interface{}{"error": err.Error()})
		case <-backstop.C:
		}
	}
}

func completedFiles(dir string) []os.DirEntry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := entries[:0]
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".crdownload") || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		out = append(out, e)
	}
	return out
}

func countFiles(dir string) int {
	return len(completedFiles(dir))
}

func newestFile(dir string) string {
	var (
		newest  string
		newestT time.Time
	)
	for _, e := range completedFiles(dir) {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest = filepath.Join(dir, e.Name())
			newestT = info.ModTime()
		}
	}
	return newest
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
