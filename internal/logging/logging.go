// Package logging is the engine's ambient logging layer (SPEC_FULL.md
// component K). No example repo in the retrieval pack imports a
// structured-logging library (zap, logrus, zerolog) directly from its
// own code — only transitively, through dependencies — so this wraps
// the standard library's log.Logger with a four-level gate instead of
// reaching for one, the way the teacher's own code never logs beyond
// the occasional fmt.Print in its CLI. See DESIGN.md for the full
// justification.
//
// The LINEAGEDB_LOG environment variable selects the minimum level
// (debug, info, warn, error; default info). Logging is informational
// only and never affects commit semantics (spec.md §6).
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level is a logging verbosity threshold.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name, defaulting to Info on anything
// unrecognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Logger is a minimum-level-gated wrapper around *log.Logger.
type Logger struct {
	min Level
	out *log.Logger
}

// New builds a Logger writing to w at the given minimum level.
func New(w io.Writer, min Level) *Logger {
	return &Logger{min: min, out: log.New(w, "", log.LstdFlags|log.Lmicroseconds)}
}

// FromEnv builds a Logger writing to stderr whose level is taken from
// the LINEAGEDB_LOG environment variable (spec.md §6 "Environment").
func FromEnv() *Logger {
	return New(os.Stderr, ParseLevel(os.Getenv("LINEAGEDB_LOG")))
}

func (l *Logger) log(level Level, format string, args ...any) {
	if l == nil || level < l.min {
		return
	}
	l.out.Output(3, fmt.Sprintf("[%s] %s", level, fmt.Sprintf(format, args...)))
}

func (l *Logger) Debugf(format string, args ...any) { l.log(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(Error, format, args...) }
