// Package logging builds the root zerolog.Logger every worker derives
// its own named sub-logger from via log.With().Str(...).Logger(), the
// same pattern the teacher's engine establishes with its own DefaultLogger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger writing to stderr with a timestamp field.
// format "console" selects zerolog's human-readable ConsoleWriter; any
// other value (including "") keeps the default structured JSON output.
// An unrecognized level falls back to info rather than failing startup.
func New(level, format string) zerolog.Logger {
	var w io.Writer = os.Stderr
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	l := zerolog.New(w).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return l.Level(lvl)
}
