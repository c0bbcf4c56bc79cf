package check

import (
	"github.com/tidwall/gjson"
)

// lookup resolves a JSON path against a response body. Paths may use the
// $.field form or the bare field form; a lone "$" addresses the whole
// document.
func lookup(body []byte, path string) gjson.Result {
	return gjson.GetBytes(body, normalizePath(path))
}

func normalizePath(path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			return path[2:]
		}
		if len(path) == 1 {
			return "@this"
		}
	}
	return path
}
