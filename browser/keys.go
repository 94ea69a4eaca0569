package browser

import "strings"

// Key is a named keyboard key.
type Key string

const (
	KeyEnter      Key = "ENTER"
	KeyTab        Key = "TAB"
	KeyEscape     Key = "ESCAPE"
	KeyBackspace  Key = "BACKSPACE"
	KeyDelete     Key = "DELETE"
	KeySpace      Key = "SPACE"
	KeyArrowUp    Key = "ARROW_UP"
	KeyArrowDown  Key = "ARROW_DOWN"
	KeyArrowLeft  Key = "ARROW_LEFT"
	KeyArrowRight Key = "ARROW_RIGHT"
	KeyHome       Key = "HOME"
	KeyEnd        Key = "END"
	KeyPageUp     Key = "PAGE_UP"
	KeyPageDown   Key = "PAGE_DOWN"
)

var keyNames = map[string]Key{
	"ENTER":       KeyEnter,
	"RETURN":      KeyEnter,
	"TAB":         KeyTab,
	"ESCAPE":      KeyEscape,
	"BACKSPACE":   KeyBackspace,
	"BACK_SPACE":  KeyBackspace,
	"DELETE":      KeyDelete,
	"SPACE":       KeySpace,
	"ARROW_UP":    KeyArrowUp,
	"UP":          KeyArrowUp,
	"ARROW_DOWN":  KeyArrowDown,
	"DOWN":        KeyArrowDown,
	"ARROW_LEFT":  KeyArrowLeft,
	"LEFT":        KeyArrowLeft,
	"ARROW_RIGHT": KeyArrowRight,
	"RIGHT":       KeyArrowRight,
	"HOME":        KeyHome,
	"END":         KeyEnd,
	"PAGE_UP":     KeyPageUp,
	"PAGE_DOWN":   KeyPageDown,
}

// ParseKey resolves a key name case-insensitively. Empty or unknown names
// resolve to KeyEnter.
func ParseKey(name string) Key {
	if k, ok := LookupKey(name); ok {
		return k
	}
	return KeyEnter
}

// LookupKey resolves a key name case-insensitively.
func LookupKey(name string) (Key, bool) {
	k, ok := keyNames[strings.ToUpper(strings.TrimSpace(name))]
	return k, ok
}
