// Package placeholders expands {{name}} references in request templates.
//
// A placeholder may carry a fallback: {{name|fallback}} resolves to the
// fallback when name is not bound. A placeholder without a fallback whose
// name is not bound is left in the text unchanged, so a report of the
// rendered request shows exactly what was missing.
package placeholders

import (
	"regexp"
	"strings"
)

var pattern = regexp.MustCompile(`\{\{([^{}|]+)(?:\|([^{}]*))?\}\}`)

// Expand replaces every {{name}} and {{name|fallback}} in template with
// the bound value. Expansion is a single pass: braces inside substituted
// values are not rescanned.
func Expand(template string, values map[string]string) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return pattern.ReplaceAllStringFunc(template, func(match string) string {
		idx := pattern.FindStringSubmatchIndex(match)
		if idx == nil {
			return match
		}
		name := match[idx[2]:idx[3]]
		if value, ok := values[name]; ok {
			return value
		}
		// idx[4] >= 0 means a |fallback clause was written, even an empty one.
		if idx[4] >= 0 {
			return match[idx[4]:idx[5]]
		}
		return match
	})
}

// ExpandMap expands placeholders in every value of the given map.
// Keys are never expanded. Returns nil for an empty input map.
func ExpandMap(m map[string]string, values map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for key, value := range m {
		out[key] = Expand(value, values)
	}
	return out
}
