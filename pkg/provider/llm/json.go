package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSONObject is returned by [ExtractJSONObject] when the text contains no
// valid JSON object.
var ErrNoJSONObject = errors.New("llm: no JSON object in reply")

// ExtractJSONObject returns the first valid JSON object in text. Models asked
// for JSON sometimes wrap it in a markdown code fence or surround it with
// prose; both are tolerated.
func ExtractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) && strings.HasPrefix(text, "{") {
		return text, nil
	}
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := objectEnd(text[start:]); end > 0 {
			candidate := text[start : start+end]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return "", ErrNoJSONObject
}

// objectEnd returns the length of the balanced {...} prefix of s, honouring
// string literals, or 0 when the braces never balance.
func objectEnd(s string) int {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
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
				return i + 1
			}
		}
	}
	return 0
}
