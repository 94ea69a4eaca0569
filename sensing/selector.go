package sensing

import (
	"fmt"
	"strings"
)

var literalEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `"`, `\"`)

// EscapeLiteral escapes a value for use inside a quoted CSS attribute
// selector.
func EscapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

// SynthesizeSelector picks the most specific selector available for an
// element: #id, data-testid, name, aria-label, placeholder, a short value,
// then the structural path. It returns "" when nothing can be built.
func SynthesizeSelector(tag string, attrs map[string]string, structural func() (string, error)) string {
	if id := attrs["id"]; id != "" {
		return "#" + EscapeLiteral(id)
	}
	if v := attrs["data-testid"]; v != "" {
		return fmt.Sprintf("[data-testid='%s']", EscapeLiteral(v))
	}
	for _, name := range []string{"name", "aria-label", "placeholder"} {
		if v := attrs[name]; v != "" {
			return fmt.Sprintf("%s[%s='%s']", tag, name, EscapeLiteral(v))
		}
	}
	if v := attrs["value"]; v != "" && len([]rune(v)) <= maxValueSelectorLn {
		return fmt.Sprintf("%s[value='%s']", tag, EscapeLiteral(v))
	}
	if structural == nil {
		return ""
	}
	path, err := structural()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(path)
}

// cssIdent escapes an identifier for use after '#' in a selector.
func cssIdent(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-', r >= 0x80:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				fmt.Fprintf(&b, `\%x `, r)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
