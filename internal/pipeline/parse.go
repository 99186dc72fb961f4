package pipeline

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

// Outcome is the result of parsing a model response: Parsed or Malformed.
type Outcome interface {
	isOutcome()
}

// Parsed holds a decoded JSON object. Recovered is true when the object had to
// be located inside surrounding prose or a code fence.
type Parsed struct {
	Object    map[string]any
	Recovered bool
}

// Malformed carries the raw text that could not be decoded.
type Malformed struct {
	Raw string
}

func (Parsed) isOutcome()    {}
func (Malformed) isOutcome() {}

var objectSpan = regexp.MustCompile(`(?s)\{.*\}`)

// ParseObject decodes text as a JSON object, first directly and then by
// locating the first top-level {...} span.
func ParseObject(text string) Outcome {
	trimmed := strings.TrimSpace(text)
	if obj, ok := decodeObject(trimmed); ok {
		return Parsed{Object: obj}
	}

	if span := objectSpan.FindString(trimmed); span != "" {
		if obj, ok := decodeObject(span); ok {
			return Parsed{Object: obj, Recovered: true}
		}
	}
	if span := balancedSpan(trimmed); span != "" {
		if obj, ok := decodeObject(span); ok {
			return Parsed{Object: obj, Recovered: true}
		}
	}
	return Malformed{Raw: text}
}

func decodeObject(s string) (map[string]any, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return obj, true
}

// balancedSpan returns the first brace-balanced {...} span, respecting JSON
// string literals, or "" if braces never balance.
func balancedSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
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
	return ""
}
