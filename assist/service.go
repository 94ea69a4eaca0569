// Package assist finds selector hints for a page, preferring a live browser
// session on the worker and falling back to the page's static markup.
package assist

import (
	"context"
	"errors"
	"slices"

	"golang.org/x/sync/singleflight"

	"github.com/hairizuan-noorazman/browser-steps/hintcache"
	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
	"github.com/hairizuan-noorazman/browser-steps/sensing"
	"github.com/hairizuan-noorazman/browser-steps/session"
)

// ErrNoURL is returned when no target URL was given or found in a prompt.
var ErrNoURL = errors.New("no url to sense")

// Source tells where a Result's hints came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceRuntime Source = "runtime"
	SourceStatic  Source = "static"
)

const senseTimeoutMs = 20000

// Result is the outcome of one hint lookup.
type Result struct {
	URL      string                  `json:"url"`
	Keywords []string                `json:"keywords"`
	Hints    []protocol.SelectorHint `json:"hints"`
	HasHints bool                    `json:"hasHints"`
	Source   Source                  `json:"source"`
}

// StepRunner runs a stepwise session. *session.Coordinator satisfies it.
type StepRunner interface {
	ExecuteStepwise(ctx context.Context, actions []protocol.Action, stopOnError bool, sessionID string) (*session.Outcome, error)
}

// StaticSensor ranks hints from fetched markup. *sensing.StaticSensor
// satisfies it.
type StaticSensor interface {
	Sense(ctx context.Context, rawURL string, q sensing.Query) ([]protocol.SelectorHint, error)
}

// Service looks up selector hints through the cache, a live sensing
// session and static sensing, in that order.
type Service struct {
	runner StepRunner
	static StaticSensor
	cache  hintcache.Cache
	logger logger.Logger

	group singleflight.Group
}

// NewService creates a hint service. runner and static may be nil to
// disable that source; cache may be nil to disable caching.
func NewService(runner StepRunner, static StaticSensor, cache hintcache.Cache, log logger.Logger) *Service {
	return &Service{
		runner: runner,
		static: static,
		cache:  cache,
		logger: log.WithField("component", "assist"),
	}
}

// Sense returns up to limit hints for rawURL. Live hints are cached under
// the normalized URL; concurrent misses for the same URL share one lookup.
func (s *Service) Sense(ctx context.Context, rawURL string, keywords []string, limit int) (*Result, error) {
	return s.SenseScoped(ctx, rawURL, "", keywords, limit)
}

// SenseScoped is Sense restricted to a named scope (forms, links, actions)
// or a CSS group. Scoped lookups bypass the cache, which holds default-scope
// hints only.
func (s *Service) SenseScoped(ctx context.Context, rawURL, scope string, keywords []string, limit int) (*Result, error) {
	if rawURL == "" {
		return nil, ErrNoURL
	}
	target, err := sensing.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	keywords = CompactKeywords(keywords)
	limit = sensing.ClampLimit(limit)
	key := hintcache.Key(target)
	cached := s.cache != nil && scope == ""

	result := &Result{URL: target, Keywords: keywords}
	if cached {
		if hints, ok := s.cache.Get(key); ok {
			s.logger.Debug(ctx, "Selector hints served from cache", map[string]interface{}{"url": target})
			result.Hints = Rescore(hints, keywords, limit)
			result.Source = SourceCache
			result.HasHints = len(result.Hints) > 0
			return result, nil
		}
	}

	v, err, shared := s.group.Do(scope+"|"+key, func() (interface{}, error) {
		return s.lookup(ctx, target, sensing.Query{Keywords: keywords, Scope: scope, Limit: limit}, cached)
	})
	if err != nil {
		return nil, err
	}
	found := v.(*Result)
	if shared {
		s.logger.Debug(ctx, "Joined in-flight hint lookup", map[string]interface{}{"url": target})
	}

	result.Hints = protocol.CloneHints(found.Hints)
	if shared && !slices.Equal(found.Keywords, keywords) {
		result.Hints = Rescore(result.Hints, keywords, limit)
	}
	result.Source = found.Source
	result.HasHints = len(result.Hints) > 0
	return result, nil
}

// SenseFromPrompt extracts the target URL and keywords from prompt and
// senses with the default limit.
func (s *Service) SenseFromPrompt(ctx context.Context, prompt string) (*Result, error) {
	target := ExtractPrimaryURL(prompt)
	if target == "" {
		return nil, ErrNoURL
	}
	return s.Sense(ctx, target, ExtractKeywords(prompt), sensing.DefaultLimit)
}

// Rescore scores hints against keywords, drops those that do not match any
// keyword when keywords are given, and ranks the rest. hints is modified in
// place.
func Rescore(hints []protocol.SelectorHint, keywords []string, limit int) []protocol.SelectorHint {
	kept := hints[:0]
	for _, h := range hints {
		h.Score = sensing.Score(h.Tag, h.Attributes, keywords)
		if len(keywords) > 0 && !sensing.Matches(h.Tag, h.Attributes, keywords) {
			continue
		}
		kept = append(kept, h)
	}
	return sensing.Rank(kept, limit)
}

func (s *Service) lookup(ctx context.Context, target string, q sensing.Query, cache bool) (*Result, error) {
	hints := s.live(ctx, target, q)
	if len(hints) > 0 {
		if cache {
			s.cache.Put(hintcache.Key(target), hints)
		}
		return &Result{Keywords: q.Keywords, Hints: hints, Source: SourceRuntime}, nil
	}

	if s.static == nil {
		return &Result{Source: SourceStatic}, nil
	}
	hints, err := s.static.Sense(ctx, target, q)
	if err != nil {
		s.logger.Warn(ctx, "Static sensing failed", map[string]interface{}{
			"url":   target,
			"error": err.Error(),
		})
		return &Result{Source: SourceStatic}, nil
	}
	return &Result{Keywords: q.Keywords, Hints: hints, Source: SourceStatic}, nil
}

// live opens a short headless session on the worker, senses the page and
// quits. Failures are logged and yield no hints.
func (s *Service) live(ctx context.Context, target string, q sensing.Query) []protocol.SelectorHint {
	if s.runner == nil {
		return nil
	}
	actions := []protocol.Action{
		{Type: protocol.ActionOpenBrowser, Headless: protocol.Bool(true), Note: "sense session"},
		{Type: protocol.ActionGoto, URL: target, Note: "sense session"},
		{
			Type:      protocol.ActionSenseElements,
			Keywords:  q.Keywords,
			Scope:     q.Scope,
			Limit:     protocol.Int(q.Limit),
			TimeoutMs: protocol.Int(senseTimeoutMs),
			Note:      "auto-sense hints",
		},
		{Type: protocol.ActionQuit, Note: "sense cleanup"},
	}

	out, err := s.runner.ExecuteStepwise(ctx, actions, true, "")
	if err != nil {
		s.logger.Warn(ctx, "Live sensing failed", map[string]interface{}{"url": target, "error": err.Error()})
		return nil
	}
	for _, step := range out.Steps {
		if step.Type != protocol.ActionSenseElements || !step.OK {
			continue
		}
		var hints []protocol.SelectorHint
		if err := step.Decode(&hints); err != nil {
			s.logger.Warn(ctx, "Live sensing returned undecodable hints", map[string]interface{}{
				"url":   target,
				"error": err.Error(),
			})
			return nil
		}
		return hints
	}
	if !out.OK {
		s.logger.Warn(ctx, "Live sensing session did not complete", map[string]interface{}{
			"url":     target,
			"message": out.Message,
		})
	}
	return nil
}
