// Package sensing ranks interactive page elements against caller keywords
// and synthesizes a CSS selector for each, against a live browser or a
// statically fetched document.
package sensing

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hairizuan-noorazman/browser-steps/protocol"
)

const (
	DefaultLimit = 8
	MaxLimit     = 20

	// StaticScoreFloor drops weak matches from static sensing.
	StaticScoreFloor = 0.15

	baseScore          = 0.2
	wholeKeywordScore  = 1.0
	tokenScore         = 0.3
	maxValueSelectorLn = 40
)

// Attributes copied from each candidate, in haystack order.
var collectedAttributes = []string{"id", "name", "type", "placeholder", "aria-label", "data-testid", "value"}

var (
	scopeDefault = "input, textarea, select, button, a, [role=button], [role=link], [role=search]"
	scopeForms   = "input, textarea, select, button, [role=textbox]"
	scopeLinks   = "a, [role=link]"
	scopeActions = "button, [role=button], input[type='submit'], input[type='button']"
)

// ScopeSelector maps a scope name onto a CSS selector group. Unknown or
// empty scopes use the default interactive group.
func ScopeSelector(scope string) string {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "forms", "inputs":
		return scopeForms
	case "links":
		return scopeLinks
	case "actions", "buttons":
		return scopeActions
	default:
		return scopeDefault
	}
}

// ClampLimit applies the default for non-positive limits and caps at MaxLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Keywords returns the action's keywords, or its text as the single keyword
// when no keywords were given.
func Keywords(keywords []string, text string) []string {
	if len(keywords) == 0 && text != "" {
		return []string{text}
	}
	return keywords
}

func haystack(tag string, attrs map[string]string) string {
	parts := []string{tag}
	for _, name := range collectedAttributes {
		if v, ok := attrs[name]; ok {
			parts = append(parts, v)
		}
	}
	if v, ok := attrs["text"]; ok {
		parts = append(parts, v)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Score rates an element's tag and attributes against keywords.
func Score(tag string, attrs map[string]string, keywords []string) float64 {
	score := keywordScore(haystack(tag, attrs), keywords)
	if len(keywords) == 0 {
		score = baseScore
	}

	if _, ok := attrs["id"]; ok {
		score += 0.5
	}
	if _, ok := attrs["name"]; ok {
		score += 0.2
	}
	if _, ok := attrs["placeholder"]; ok {
		score += 0.2
	}
	if _, ok := attrs["aria-label"]; ok {
		score += 0.25
	}
	if tag == "input" || tag == "textarea" {
		score += 0.1
	}
	return score
}

// Matches reports whether any keyword, or any token of one, occurs in the
// element's tag or attributes.
func Matches(tag string, attrs map[string]string, keywords []string) bool {
	return keywordScore(haystack(tag, attrs), keywords) > 0
}

func keywordScore(hay string, keywords []string) float64 {
	score := 0.0
	for _, keyword := range keywords {
		kw := strings.ToLower(strings.TrimSpace(keyword))
		if kw == "" {
			continue
		}
		if strings.Contains(hay, kw) {
			score += wholeKeywordScore
			continue
		}
		for _, token := range strings.Fields(kw) {
			if utf8.RuneCountInString(token) >= 2 && strings.Contains(hay, token) {
				score += tokenScore
			}
		}
	}
	return score
}

// Rank sorts hints by descending score, keeping document order among equal
// scores, and truncates to limit.
func Rank(hints []protocol.SelectorHint, limit int) []protocol.SelectorHint {
	sort.SliceStable(hints, func(i, j int) bool {
		return hints[i].Score > hints[j].Score
	})
	if len(hints) > limit {
		hints = hints[:limit]
	}
	return hints
}
