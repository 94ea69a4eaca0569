package assist

import (
	"regexp"
	"strings"
)

var (
	urlPattern        = regexp.MustCompile(`https?://[^\s,;]+`)
	wwwPattern        = regexp.MustCompile(`www\.[^\s,;]+`)
	quotedPattern     = regexp.MustCompile(`["“”']([^"“”']{1,120})["“”']`)
	trailingPunct     = regexp.MustCompile(`[)\].,;]+$`)
	fragmentSeparator = regexp.MustCompile(`[\r\n,.]`)
	lineSeparator     = regexp.MustCompile(`[\r\n]+`)
)

// keywordVerbs introduce a keyword fragment in free text.
var keywordVerbs = []string{"search for", "look for", "find", "type"}

// ExtractPrimaryURL returns the first http(s) URL in text, or the first
// www. host with https:// prepended. Trailing punctuation is dropped.
func ExtractPrimaryURL(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	if m := urlPattern.FindString(text); m != "" {
		return trailingPunct.ReplaceAllString(m, "")
	}
	if m := wwwPattern.FindString(text); m != "" {
		return "https://" + trailingPunct.ReplaceAllString(m, "")
	}
	return ""
}

// ExtractKeywords pulls sensing keywords out of a prompt: quoted phrases of
// 2 to 80 characters, then the fragment following each of keywordVerbs.
// When neither yields anything, every line mentioning "search" is used.
func ExtractKeywords(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		candidate := strings.TrimSpace(m[1])
		if n := len([]rune(candidate)); n >= 2 && n <= 80 {
			add(candidate)
		}
	}

	lower := strings.ToLower(text)
	for _, verb := range keywordVerbs {
		idx := strings.Index(lower, verb)
		if idx < 0 || idx+len(verb) > len(text) {
			continue
		}
		fragment := strings.TrimSpace(text[idx+len(verb):])
		if fragment == "" {
			continue
		}
		candidate := strings.TrimSpace(fragmentSeparator.Split(fragment, 2)[0])
		if len([]rune(candidate)) >= 2 {
			add(candidate)
		}
	}

	if len(out) == 0 {
		for _, line := range lineSeparator.Split(text, -1) {
			if strings.Contains(strings.ToLower(line), "search") {
				add(strings.TrimSpace(line))
			}
		}
	}
	return out
}

// CompactKeywords trims keywords, drops blanks and removes duplicates,
// keeping first-seen order.
func CompactKeywords(keywords []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
