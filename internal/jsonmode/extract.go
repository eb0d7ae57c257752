package jsonmode

import (
	"encoding/json"
	"strings"
)

// ExtractJSON returns the first balanced JSON object or array embedded in s,
// stripping markdown code fences first. ok is false when no parseable
// candidate exists.
func ExtractJSON(s string) (string, bool) {
	s = stripFences(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	candidate, ok := balancedSlice(s[start:])
	if !ok {
		return "", false
	}
	if !json.Valid([]byte(candidate)) {
		return "", false
	}
	return candidate, true
}

// stripFences drops markdown fence lines, keeping their content
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// balancedSlice scans s, which starts with an opening brace or bracket, and
// returns the prefix up to the matching closer. Braces inside string
// literals and escaped quotes do not count.
func balancedSlice(s string) (string, bool) {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, ch)
		case '}', ']':
			if len(stack) == 0 {
				return "", false
			}
			open := stack[len(stack)-1]
			if (ch == '}' && open != '{') || (ch == ']' && open != '[') {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
