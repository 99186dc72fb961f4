package logging

import (
	"io"
	"regexp"
	"strings"
)

// Sanitizer redacts provider keys and tokens from text.
type Sanitizer struct {
	patterns []*regexp.Regexp
	redacted string
}

// NewSanitizer creates a sanitizer with default patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultPatterns(),
		redacted: "[REDACTED]",
	}
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// OpenAI and Anthropic
		`sk-(?:ant-)?[A-Za-z0-9_-]{20,}`,
		// Google AI
		`AIza[A-Za-z0-9_-]{35}`,
		// Hugging Face
		`hf_[A-Za-z0-9]{20,}`,
		// Bearer tokens
		`(?i)bearer\s+[A-Za-z0-9._~+/=-]{20,}`,
		// key=... in query strings
		`(?i)([?&]key=)[^&\s"]+`,
		// Generic API keys
		`(?i)api[_-]?key["'\s:=]+[A-Za-z0-9_-]{20,}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Sanitize redacts sensitive information from a string.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, pattern := range s.patterns {
		if pattern.NumSubexp() > 0 {
			result = pattern.ReplaceAllString(result, "${1}"+s.redacted)
			continue
		}
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	return result
}

var defaultSanitizer = NewSanitizer()

// Redact sanitizes s with the default patterns.
func Redact(s string) string {
	return defaultSanitizer.Sanitize(s)
}

var (
	ansiPattern  = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Excerpt returns a redacted, whitespace-collapsed prefix of s of at most n
// runes, for attaching model output to diagnostics.
func Excerpt(s string, n int) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
	s = Redact(s)

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

// redactingWriter sanitizes everything written through it.
type redactingWriter struct {
	w io.Writer
	s *Sanitizer
}

// NewRedactingWriter wraps w so every write is sanitized.
func NewRedactingWriter(w io.Writer) io.Writer {
	return &redactingWriter{w: w, s: defaultSanitizer}
}

func (r *redactingWriter) Write(p []byte) (int, error) {
	clean := r.s.Sanitize(string(p))
	if _, err := io.WriteString(r.w, clean); err != nil {
		return 0, err
	}
	return len(p), nil
}
