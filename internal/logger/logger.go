// Package logger configures structured, leveled logging for the whole
// process. It replaces the donor's stdlib `log` + emoji-prefixed strings
// with zerolog while keeping the donor's habit of one terse line per
// event.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a zerolog.Logger writing to stdout at the given level name
// ("debug", "info", "warn", "error"; anything else falls back to "info").
func New(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
	l := parseLevel(level)
	return zerolog.New(os.Stdout).Level(l).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
