// Package jsonx cleans malformed LLM output into parseable JSON.
package jsonx

import (
	"encoding/json"
	"strings"
)

// CleanResponse strips markdown fences and surrounding prose, returning the
// first balanced JSON object found in the response. LLM providers routinely
// wrap JSON in ```json fences or lead-in sentences despite instructions.
func CleanResponse(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)
	return extractObject(response)
}

// Unmarshal cleans response and decodes it into v.
func Unmarshal(response string, v any) error {
	return json.Unmarshal([]byte(CleanResponse(response)), v)
}

// IsValid reports whether s is parseable JSON after cleaning.
func IsValid(s string) bool {
	return json.Valid([]byte(CleanResponse(s)))
}

// extractObject returns the first brace-balanced object in s, or s unchanged
// when no opening brace exists.
func extractObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return s
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
