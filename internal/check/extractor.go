package check

import (
	"regexp"
)

// Logger receives warnings about extraction rules that did not match.
type Logger interface {
	Warn(format string, args ...interface{})
}

// Extractor captures one value from a response body into a named variable.
// Exactly one of Path or Regex should be set; Path wins when both are.
type Extractor struct {
	// Path is a JSON path expression ("$.user.id" or "user.id").
	Path string

	// Regex is a pattern applied to the raw body. With a capture group the
	// first group is taken, otherwise the full match.
	Regex string

	// Variable names the store entry the value is written to.
	Variable string
}

// ExtractAll applies every extractor to the body and returns the captured
// values keyed by variable name. Rules that do not match yield an empty
// string and a warning on the logger; extraction never aborts a step.
// A nil logger suppresses warnings.
func ExtractAll(body []byte, extractors []Extractor, logger Logger) map[string]string {
	result := make(map[string]string)
	for _, ex := range extractors {
		var value string
		switch {
		case ex.Path != "":
			value = extractPath(body, ex.Path, logger)
		case ex.Regex != "":
			value = extractRegex(body, ex.Regex, logger)
		}
		result[ex.Variable] = value
	}
	return result
}

func extractPath(body []byte, path string, logger Logger) string {
	result := lookup(body, path)
	if !result.Exists() {
		if logger != nil {
			logger.Warn("extract path not found: %s", path)
		}
		return ""
	}
	return result.String()
}

func extractRegex(body []byte, pattern string, logger Logger) string {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		if logger != nil {
			logger.Warn("invalid extract regex %s: %v", pattern, err)
		}
		return ""
	}

	match := regex.FindSubmatch(body)
	if match == nil {
		if logger != nil {
			logger.Warn("extract regex matched nothing: %s", pattern)
		}
		return ""
	}
	if len(match) > 1 {
		return string(match[1])
	}
	return string(match[0])
}
