// Package logging configures zerolog loggers whose output never carries
// provider keys.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls log level and format.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// New returns a logger writing to stderr.
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter returns a logger writing to w through the redacting writer.
func NewWithWriter(cfg Config, w io.Writer) zerolog.Logger {
	out := NewRedactingWriter(w)
	if strings.EqualFold(cfg.Format, "console") {
		out = NewRedactingWriter(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
