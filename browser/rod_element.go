package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const structuralPathJS = `() => {
  const path = [];
  let el = this;
  while (el && el.nodeType === Node.ELEMENT_NODE && path.length < 6) {
    let part = el.nodeName.toLowerCase();
    if (el.id) {
      path.unshift(part + "#" + CSS.escape(el.id));
      break;
    }
    let nth = 1;
    for (let sib = el.previousElementSibling; sib; sib = sib.previousElementSibling) {
      if (sib.nodeName === el.nodeName) nth++;
    }
    path.unshift(part + ":nth-of-type(" + nth + ")");
    el = el.parentNode;
  }
  return path.join(" > ");
}`

const clearJS = `() => {
  if ("value" in this) this.value = "";
  else if (this.isContentEditable) this.textContent = "";
  this.dispatchEvent(new Event("input", { bubbles: true }));
  this.dispatchEvent(new Event("change", { bubbles: true }));
}`

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click(ctx context.Context) error {
	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click: %w", classify(err))
	}
	return nil
}

func (e *rodElement) Clear(ctx context.Context) error {
	if _, err := e.el.Context(ctx).Eval(clearJS); err != nil {
		return fmt.Errorf("failed to clear: %w", classify(err))
	}
	return nil
}

func (e *rodElement) SendKeys(ctx context.Context, text string) error {
	if err := e.el.Context(ctx).Input(text); err != nil {
		return fmt.Errorf("failed to type: %w", classify(err))
	}
	return nil
}

func (e *rodElement) PressKey(ctx context.Context, key Key) error {
	if err := e.el.Context(ctx).Type(rodKey(key)); err != nil {
		return fmt.Errorf("failed to press %s: %w", key, classify(err))
	}
	return nil
}

func (e *rodElement) ScrollIntoView(ctx context.Context) error {
	if err := e.el.Context(ctx).ScrollIntoView(); err != nil {
		return fmt.Errorf("failed to scroll into view: %w", classify(err))
	}
	return nil
}

func (e *rodElement) Displayed(ctx context.Context) (bool, error) {
	visible, err := e.el.Context(ctx).Visible()
	if err != nil {
		return false, classify(err)
	}
	return visible, nil
}

func (e *rodElement) TagName(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.tagName`)
	if err != nil {
		return "", classify(err)
	}
	return strings.ToLower(res.Value.Str()), nil
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", classify(err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", classify(err)
	}
	return text, nil
}

func (e *rodElement) Rect(ctx context.Context) (Rect, error) {
	shape, err := e.el.Context(ctx).Shape()
	if err != nil {
		return Rect{}, classify(err)
	}
	box := shape.Box()
	if box == nil {
		return Rect{}, fmt.Errorf("element has no layout box")
	}
	return Rect{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

func (e *rodElement) StructuralPath(ctx context.Context) (string, error) {
	res, err := e.el.Context(ctx).Eval(structuralPathJS)
	if err != nil {
		return "", classify(err)
	}
	return res.Value.Str(), nil
}
