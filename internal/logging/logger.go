// Package logging builds the zerolog loggers used by the CLI and the analysis
// orchestrator.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ParseLevel maps a configuration level name to a zerolog level
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// New returns a timestamped logger writing JSON lines to w
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// NewConsole returns a logger with human readable output on w
func NewConsole(w io.Writer, level zerolog.Level) zerolog.Logger {
	return New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}, level)
}

// FromConfig builds the process logger on stderr from a level name and the
// output format switch
func FromConfig(levelName string, jsonOutput bool) (zerolog.Logger, error) {
	level, err := ParseLevel(levelName)
	if err != nil {
		return zerolog.Nop(), err
	}
	if jsonOutput {
		return New(os.Stderr, level), nil
	}
	return NewConsole(os.Stderr, level), nil
}

// Component derives a child logger tagged with the subsystem name
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
