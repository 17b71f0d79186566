package actions

import (
	"encoding/json"
	"regexp"
)

// placeholderRe matches {{word}} and {{word.word...}} placeholders.
// Anything else between braces ({{ spaced out }}, {{a..b}}) is not a
// placeholder and is left untouched.
var placeholderRe = regexp.MustCompile(`\{\{(\w+(?:\.\w+)*)\}\}`)

// Render expands every {{path}} placeholder in tmpl against run.
// Unknown paths expand to the empty string; rendering never fails.
func Render(tmpl string, run *Context) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := match[2 : len(match)-2]
		v, ok := run.Resolve(path)
		if !ok {
			return ""
		}
		return stringify(v)
	})
}

// stringify converts a resolved JSON-ish value to its template text:
// strings verbatim, null empty, everything else compact JSON.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
