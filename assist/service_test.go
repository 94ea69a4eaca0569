package assist

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/browser-steps/hintcache"
	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
	"github.com/hairizuan-noorazman/browser-steps/sensing"
	"github.com/hairizuan-noorazman/browser-steps/session"
)

type fakeRunner struct {
	calls   atomic.Int32
	hints   []protocol.SelectorHint
	err     error
	fail    bool
	gate    chan struct{}
	actions [][]protocol.Action
	mu      sync.Mutex
}

func (f *fakeRunner) ExecuteStepwise(ctx context.Context, actions []protocol.Action, stopOnError bool, sessionID string) (*session.Outcome, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.actions = append(f.actions, actions)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	out := &session.Outcome{SessionID: "s", OK: !f.fail}
	for i, a := range actions {
		if f.fail && a.Type == protocol.ActionGoto {
			out.Steps = append(out.Steps, protocol.StepResult{Index: i, Type: a.Type, Message: "Execution failed: timeout"})
			out.Message = "Execution failed: timeout"
			break
		}
		var payload interface{} = "ok"
		if a.Type == protocol.ActionSenseElements {
			payload = f.hints
		}
		step, err := protocol.NewStepResult(i, a.Type, payload)
		if err != nil {
			return nil, err
		}
		out.Steps = append(out.Steps, step)
	}
	return out, nil
}

type fakeStatic struct {
	calls int
	hints []protocol.SelectorHint
	err   error
	query sensing.Query
}

func (f *fakeStatic) Sense(ctx context.Context, rawURL string, q sensing.Query) ([]protocol.SelectorHint, error) {
	f.calls++
	f.query = q
	return f.hints, f.err
}

var liveHints = []protocol.SelectorHint{
	{Selector: "#q", Tag: "input", Score: 1.8, Attributes: map[string]string{"id": "q"}},
	{Selector: "button[name='go']", Tag: "button", Score: 1.2},
}

func TestSenseRuntimeThenCache(t *testing.T) {
	runner := &fakeRunner{hints: liveHints}
	static := &fakeStatic{}
	cache := hintcache.NewMemoryCache()
	svc := NewService(runner, static, cache, logger.NewTestLogger())
	ctx := context.Background()

	res, err := svc.Sense(ctx, " example.com ", []string{"search", " search", ""}, 5)
	require.NoError(t, err)

	assert.Equal(t, SourceRuntime, res.Source)
	assert.Equal(t, "https://example.com", res.URL)
	assert.Equal(t, []string{"search"}, res.Keywords)
	assert.True(t, res.HasHints)
	assert.Equal(t, liveHints, res.Hints)
	assert.Equal(t, 0, static.calls)

	require.Len(t, runner.actions, 1)
	steps := runner.actions[0]
	require.Len(t, steps, 4)
	assert.Equal(t, protocol.ActionOpenBrowser, steps[0].Type)
	assert.True(t, *steps[0].Headless)
	assert.Equal(t, "https://example.com", steps[1].URL)
	assert.Equal(t, 20000, *steps[2].TimeoutMs)
	assert.Equal(t, 5, *steps[2].Limit)
	assert.Equal(t, protocol.ActionQuit, steps[3].Type)

	res.Hints[0].Selector = "mutated"

	again, err := svc.Sense(ctx, "https://example.com", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, again.Source)
	require.Len(t, again.Hints, 1)
	assert.Equal(t, "#q", again.Hints[0].Selector)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestSenseStaticFallback(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{name: "no live hints", runner: &fakeRunner{}},
		{name: "session failed", runner: &fakeRunner{fail: true, hints: liveHints}},
		{name: "transport error", runner: &fakeRunner{err: errors.New("worker exited with code 1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			static := &fakeStatic{hints: []protocol.SelectorHint{{Selector: "#static", Tag: "input", Score: 0.7}}}
			cache := hintcache.NewMemoryCache()
			svc := NewService(tt.runner, static, cache, logger.NewTestLogger())

			res, err := svc.Sense(context.Background(), "https://example.com", []string{"email"}, 0)
			require.NoError(t, err)

			assert.Equal(t, SourceStatic, res.Source)
			require.Len(t, res.Hints, 1)
			assert.Equal(t, "#static", res.Hints[0].Selector)
			assert.Equal(t, []string{"email"}, static.query.Keywords)
			assert.Equal(t, sensing.DefaultLimit, static.query.Limit)
			assert.Equal(t, 0, cache.Len())
		})
	}
}

func TestSenseNothingFound(t *testing.T) {
	static := &fakeStatic{err: errors.New("status 503")}
	svc := NewService(nil, static, nil, logger.NewTestLogger())

	res, err := svc.Sense(context.Background(), "https://example.com", nil, 8)
	require.NoError(t, err)
	assert.False(t, res.HasHints)
	assert.Empty(t, res.Hints)
	assert.Equal(t, SourceStatic, res.Source)
}

func TestSenseInvalidURL(t *testing.T) {
	svc := NewService(nil, nil, nil, logger.NewTestLogger())

	_, err := svc.Sense(context.Background(), "", nil, 8)
	assert.ErrorIs(t, err, ErrNoURL)

	_, err = svc.Sense(context.Background(), "https://", nil, 8)
	assert.ErrorIs(t, err, sensing.ErrInvalidURL)
}

func TestSenseCollapsesConcurrentMisses(t *testing.T) {
	runner := &fakeRunner{hints: liveHints, gate: make(chan struct{})}
	svc := NewService(runner, &fakeStatic{}, hintcache.NewMemoryCache(), logger.NewTestLogger())

	var wg sync.WaitGroup
	results := make([]*Result, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Sense(context.Background(), "https://example.com", nil, 8)
			if err == nil {
				results[i] = res
			}
		}(i)
	}

	assert.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(runner.gate)
	wg.Wait()

	assert.Equal(t, int32(1), runner.calls.Load())
	for _, res := range results {
		require.NotNil(t, res)
		assert.Len(t, res.Hints, 2)
	}
	results[0].Hints[0].Selector = "changed"
	assert.Equal(t, "#q", results[1].Hints[0].Selector)
}

func TestSenseFromPrompt(t *testing.T) {
	runner := &fakeRunner{hints: liveHints}
	svc := NewService(runner, nil, nil, logger.NewTestLogger())

	res, err := svc.SenseFromPrompt(context.Background(), `Go to https://shop.test/, search for "red shoes"`)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/", res.URL)
	assert.Equal(t, []string{"red shoes", `"red shoes"`}, res.Keywords)
	assert.Equal(t, SourceRuntime, res.Source)

	_, err = svc.SenseFromPrompt(context.Background(), "click the big button")
	assert.ErrorIs(t, err, ErrNoURL)
}

func TestSenseScopedBypassesCache(t *testing.T) {
	runner := &fakeRunner{hints: liveHints}
	cache := hintcache.NewMemoryCache()
	cache.Put("https://example.com", []protocol.SelectorHint{{Selector: "#cached", Score: 9}})
	svc := NewService(runner, nil, cache, logger.NewTestLogger())

	res, err := svc.SenseScoped(context.Background(), "https://example.com", "forms", []string{"email"}, 4)
	require.NoError(t, err)
	assert.Equal(t, SourceRuntime, res.Source)
	assert.Equal(t, "#q", res.Hints[0].Selector)

	require.Len(t, runner.actions, 1)
	sense := runner.actions[0][2]
	assert.Equal(t, protocol.ActionSenseElements, sense.Type)
	assert.Equal(t, "forms", sense.Scope)

	hints, ok := cache.Get("https://example.com")
	require.True(t, ok)
	assert.Equal(t, "#cached", hints[0].Selector)
}

var pageHints = []protocol.SelectorHint{
	{Selector: "#search", Tag: "input", Score: 1.8, Attributes: map[string]string{"tag": "input", "id": "search", "placeholder": "Search"}},
	{Selector: "#checkout", Tag: "button", Score: 0.5, Attributes: map[string]string{"tag": "button", "id": "checkout", "text": "Checkout"}},
}

func selectors(hints []protocol.SelectorHint) []string {
	var out []string
	for _, h := range hints {
		out = append(out, h.Selector)
	}
	return out
}

func TestSenseCacheHitRescoresForKeywords(t *testing.T) {
	runner := &fakeRunner{hints: pageHints}
	svc := NewService(runner, &fakeStatic{}, hintcache.NewMemoryCache(), logger.NewTestLogger())
	ctx := context.Background()

	first, err := svc.Sense(ctx, "https://shop.test", []string{"search"}, 8)
	require.NoError(t, err)
	require.Equal(t, SourceRuntime, first.Source)

	tests := []struct {
		name     string
		keywords []string
		want     []string
		score    float64
	}{
		{name: "different keywords", keywords: []string{"checkout button"}, want: []string{"#checkout"}, score: 0.3 + 0.3 + 0.5},
		{name: "same keywords", keywords: []string{"search"}, want: []string{"#search"}, score: 1.0 + 0.5 + 0.2 + 0.1},
		{name: "no keywords", keywords: nil, want: []string{"#search", "#checkout"}, score: 0.2 + 0.5 + 0.2 + 0.1},
		{name: "nothing relevant", keywords: []string{"newsletter"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Sense(ctx, "https://shop.test", tt.keywords, 8)
			require.NoError(t, err)
			assert.Equal(t, SourceCache, res.Source)
			assert.Equal(t, tt.want, selectors(res.Hints))
			assert.Equal(t, len(tt.want) > 0, res.HasHints)
			if len(tt.want) > 0 {
				assert.InDelta(t, tt.score, res.Hints[0].Score, 1e-9)
			}
		})
	}
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestSenseJoinedLookupRescoresForKeywords(t *testing.T) {
	runner := &fakeRunner{hints: pageHints, gate: make(chan struct{})}
	svc := NewService(runner, &fakeStatic{}, hintcache.NewMemoryCache(), logger.NewTestLogger())

	var (
		wg             sync.WaitGroup
		leader, joiner *Result
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		leader, _ = svc.Sense(context.Background(), "https://shop.test", []string{"search"}, 8)
	}()
	assert.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		joiner, _ = svc.Sense(context.Background(), "https://shop.test", []string{"checkout"}, 8)
	}()
	time.Sleep(50 * time.Millisecond)
	close(runner.gate)
	wg.Wait()

	require.NotNil(t, leader)
	require.NotNil(t, joiner)
	assert.Equal(t, []string{"#search", "#checkout"}, selectors(leader.Hints))
	assert.Equal(t, []string{"#checkout"}, selectors(joiner.Hints))
	assert.Equal(t, int32(1), runner.calls.Load())
}
