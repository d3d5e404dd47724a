// Package sanitize strips code-like and overlong text before anything is persisted.
package sanitize

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// RedactionSentinel replaces any string that carries a fenced code block
	RedactionSentinel = "[redacted:code]"

	// Ellipsis marks a string cut at the length cap
	Ellipsis = "..."

	DefaultMaxLength = 2000
	DefaultMaxDepth  = 6
	DefaultMaxItems  = 200
)

const codeFence = "```"

// Redactor applies the string rule to every string leaf of a value.
// The zero value is not usable; call New or use Default.
type Redactor struct {
	MaxLength int // runes kept per string, including the ellipsis
	MaxDepth  int // containers nested deeper than this are dropped
	MaxItems  int // elements or keys kept per container
}

// New returns a redactor with the given length cap and default bounds.
// maxLength <= 0 selects DefaultMaxLength.
func New(maxLength int) *Redactor {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Redactor{
		MaxLength: maxLength,
		MaxDepth:  DefaultMaxDepth,
		MaxItems:  DefaultMaxItems,
	}
}

// Default is the redactor with all default bounds
var Default = New(DefaultMaxLength)

// String redacts one string. Fenced code yields the sentinel; otherwise only the
// first line survives, trimmed and capped.
func (r *Redactor) String(s string) string {
	if strings.Contains(s, codeFence) {
		return RedactionSentinel
	}
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= r.MaxLength {
		return s
	}
	keep := r.MaxLength - len(Ellipsis)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return string(runes[:keep]) + Ellipsis
}

// Value walks maps and slices and redacts every string leaf. Non-string scalars
// pass through unchanged.
func (r *Redactor) Value(v interface{}) interface{} {
	return r.walk(v, 0)
}

func (r *Redactor) walk(v interface{}, depth int) interface{} {
	switch t := v.(type) {
	case string:
		return r.String(t)
	case map[string]interface{}:
		if depth >= r.MaxDepth {
			return nil
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > r.MaxItems {
			keys = keys[:r.MaxItems]
		}
		out := make(map[string]interface{}, len(keys))
		for _, k := range keys {
			out[k] = r.walk(t[k], depth+1)
		}
		return out
	case []interface{}:
		if depth >= r.MaxDepth {
			return nil
		}
		n := len(t)
		if n > r.MaxItems {
			n = r.MaxItems
		}
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			out[i] = r.walk(t[i], depth+1)
		}
		return out
	default:
		return v
	}
}

// Fields redacts every top-level field of a decoded record except the ones in
// keep. Kept fields are identity or evidence fields and are stored verbatim.
// Each field value gets the full depth budget, as if passed to Value.
func (r *Redactor) Fields(data map[string]interface{}, keep map[string]bool) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if keep[k] {
			out[k] = v
			continue
		}
		out[k] = r.walk(v, 0)
	}
	return out
}
