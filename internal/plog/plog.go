// Package plog provides global conditional logging for application
// components, structured through zerolog.
package plog

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var enabled = false

// base is the process-wide zerolog sink; console-formatted by default since
// coordinator/worker output is read by a human operator, not scraped.
var base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

// Enable turns on conditional log output.
func Enable() {
	enabled = true
}

// Enabled reports whether conditional logging is currently turned on.
func Enabled() bool {
	return enabled
}

// A Logger represents a logger object that logs output in the manner of a
// structured logger but can be conditionally enabled. By default,
// conditional logging is disabled.
type Logger struct {
	logger zerolog.Logger
}

// New creates a new conditional logger with the given prefix and structured
// fields. prefixFormat/prefixArgs form the free-text message prefix, matching
// the role/id labeling used throughout coordinator and worker output.
func New(prefixFormat string, prefixArgs ...any) *Logger {
	prefix := fmt.Sprintf(prefixFormat, prefixArgs...)
	return &Logger{logger: base.With().Str("component", prefix).Logger()}
}

// Printf logs output conditionally (if enabled) in the manner of log.Printf.
func (l *Logger) Printf(format string, a ...any) {
	if !enabled {
		return
	}
	l.logger.Info().Msg(fmt.Sprintf(format, a...))
}

// Errorf logs output unconditionally, i.e. always, in the manner of
// log.Printf.
func (l *Logger) Errorf(format string, a ...any) {
	l.logger.Error().Msg(fmt.Sprintf(format, a...))
}
