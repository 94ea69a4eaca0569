package sensing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hairizuan-noorazman/browser-steps/browser"
	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
)

// Query describes one sensing pass.
type Query struct {
	Keywords []string
	// Text is used as the single keyword when Keywords is empty.
	Text  string
	Scope string
	Limit int
}

// QueryFromAction extracts the sensing parameters of a sense_elements action.
func QueryFromAction(a protocol.Action) Query {
	q := Query{Keywords: a.Keywords, Text: a.Text, Scope: a.Scope}
	if a.Limit != nil {
		q.Limit = *a.Limit
	}
	return q
}

// Engine senses elements on a live page.
type Engine struct {
	logger logger.Logger
}

// NewEngine creates a live sensing engine.
func NewEngine(log logger.Logger) *Engine {
	return &Engine{logger: log.WithField("component", "sensing")}
}

// Sense enumerates elements in scope on the driver's current frame and
// returns them ranked. Elements that are hidden or go stale mid-inspection
// are skipped.
func (e *Engine) Sense(ctx context.Context, drv browser.Driver, q Query) ([]protocol.SelectorHint, error) {
	keywords := Keywords(q.Keywords, q.Text)
	limit := ClampLimit(q.Limit)
	scope := ScopeSelector(q.Scope)

	elements, err := drv.FindAll(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate candidates: %w", err)
	}

	hints := make([]protocol.SelectorHint, 0, len(elements))
	for _, el := range elements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hint, ok, err := e.inspect(ctx, el, keywords)
		if err != nil {
			if !errors.Is(err, browser.ErrStaleElement) {
				e.logger.Debug(ctx, "Skipping element after inspection error", map[string]interface{}{
					"error": err.Error(),
				})
			}
			continue
		}
		if ok {
			hints = append(hints, hint)
		}
	}

	e.logger.Debug(ctx, "Sensed elements", map[string]interface{}{
		"scope":      scope,
		"candidates": len(elements),
		"kept":       len(hints),
		"limit":      limit,
	})
	return Rank(hints, limit), nil
}

func (e *Engine) inspect(ctx context.Context, el browser.Element, keywords []string) (protocol.SelectorHint, bool, error) {
	displayed, err := el.Displayed(ctx)
	if err != nil || !displayed {
		return protocol.SelectorHint{}, false, err
	}

	tag, err := el.TagName(ctx)
	if err != nil {
		return protocol.SelectorHint{}, false, err
	}
	tag = strings.ToLower(tag)

	attrs := map[string]string{"tag": tag}
	for _, name := range collectedAttributes {
		v, err := el.Attribute(ctx, name)
		if err != nil {
			if errors.Is(err, browser.ErrStaleElement) {
				return protocol.SelectorHint{}, false, err
			}
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			attrs[name] = v
		}
	}

	text, err := el.Text(ctx)
	if err != nil {
		return protocol.SelectorHint{}, false, err
	}
	if text = strings.TrimSpace(text); text == "" {
		text = attrs["value"]
	}
	if text != "" {
		attrs["text"] = text
	}

	score := Score(tag, attrs, keywords)
	if len(keywords) > 0 && score <= 0 {
		return protocol.SelectorHint{}, false, nil
	}

	selector := SynthesizeSelector(tag, attrs, func() (string, error) {
		return el.StructuralPath(ctx)
	})
	if selector == "" {
		return protocol.SelectorHint{}, false, nil
	}

	hint := protocol.SelectorHint{
		Selector:   selector,
		Tag:        tag,
		Score:      score,
		Attributes: attrs,
	}
	if r, err := el.Rect(ctx); err == nil {
		hint.Rect = &protocol.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	}
	return hint, true, nil
}
