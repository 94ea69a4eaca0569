package sensing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hairizuan-noorazman/browser-steps/logger"
	"github.com/hairizuan-noorazman/browser-steps/protocol"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxDocumentBytes = 10 << 20
)

// ErrInvalidURL is returned for URLs that cannot be normalized.
var ErrInvalidURL = errors.New("invalid url")

// NormalizeURL trims raw and adds an https:// scheme when none is present.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidURL, raw)
	}
	return s, nil
}

// StaticSensor senses elements from server-rendered markup without a browser.
type StaticSensor struct {
	client    *http.Client
	userAgent string
	logger    logger.Logger
}

// StaticOption configures a StaticSensor.
type StaticOption func(*StaticSensor)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) StaticOption {
	return func(s *StaticSensor) { s.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) StaticOption {
	return func(s *StaticSensor) { s.userAgent = ua }
}

// NewStaticSensor creates a static sensor with a 10s HTTP timeout and a
// desktop browser User-Agent.
func NewStaticSensor(log logger.Logger, opts ...StaticOption) *StaticSensor {
	s := &StaticSensor{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: defaultUserAgent,
		logger:    log.WithField("component", "static_sensing"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sense fetches rawURL and ranks its elements. Hints scoring below
// StaticScoreFloor are dropped.
func (s *StaticSensor) Sense(ctx context.Context, rawURL string, q Query) ([]protocol.SelectorHint, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("failed to fetch %s: status %d", target, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", target, err)
	}

	hints := SenseDocument(doc, q)
	s.logger.Debug(ctx, "Static sensing completed", map[string]interface{}{
		"url":   target,
		"hints": len(hints),
	})
	return hints, nil
}

// SenseDocument ranks elements of a parsed document.
func SenseDocument(doc *goquery.Document, q Query) []protocol.SelectorHint {
	keywords := Keywords(q.Keywords, q.Text)
	limit := ClampLimit(q.Limit)

	var hints []protocol.SelectorHint
	doc.Find(ScopeSelector(q.Scope)).Each(func(_ int, sel *goquery.Selection) {
		if len(sel.Nodes) == 0 || hiddenInMarkup(sel) {
			return
		}
		node := sel.Nodes[0]
		tag := strings.ToLower(node.Data)

		attrs := map[string]string{"tag": tag}
		for _, name := range collectedAttributes {
			if v, ok := sel.Attr(name); ok {
				if v = strings.TrimSpace(v); v != "" {
					attrs[name] = v
				}
			}
		}
		text := ownText(node)
		if text == "" {
			text = collapseSpace(sel.Text())
		}
		if text == "" {
			text = attrs["value"]
		}
		if text != "" {
			attrs["text"] = text
		}

		score := Score(tag, attrs, keywords)
		if score < StaticScoreFloor {
			return
		}

		selector := SynthesizeSelector(tag, attrs, func() (string, error) {
			return structuralPath(node), nil
		})
		if selector == "" {
			return
		}

		hints = append(hints, protocol.SelectorHint{
			Selector:   selector,
			Tag:        tag,
			Score:      score,
			Attributes: attrs,
		})
	})

	if hints == nil {
		return []protocol.SelectorHint{}
	}
	return Rank(hints, limit)
}

func hiddenInMarkup(sel *goquery.Selection) bool {
	if t, ok := sel.Attr("type"); ok && strings.EqualFold(strings.TrimSpace(t), "hidden") {
		return true
	}
	if _, ok := sel.Attr("hidden"); ok {
		return true
	}
	if style, ok := sel.Attr("style"); ok {
		compact := strings.ToLower(strings.Join(strings.Fields(style), ""))
		if strings.Contains(compact, "display:none") {
			return true
		}
	}
	return false
}

func ownText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	}
	return collapseSpace(b.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func structuralPath(n *html.Node) string {
	var parts []string
	for el := n; el != nil && el.Type == html.ElementNode && len(parts) < 6; el = el.Parent {
		if id := nodeAttr(el, "id"); id != "" {
			parts = append([]string{el.Data + "#" + cssIdent(id)}, parts...)
			break
		}
		nth := 1
		for sib := el.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == el.Data {
				nth++
			}
		}
		parts = append([]string{fmt.Sprintf("%s:nth-of-type(%d)", el.Data, nth)}, parts...)
	}
	return strings.Join(parts, " > ")
}

func nodeAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
