// Package log provides the engine's process-wide log sink (component C9 of
// the design). It mirrors the shape of the teacher's cmd.StatsAndLogging /
// blog.Logger split: a single package-level logger is configured once and
// every subsystem writes through it, filtered by a severity level that can
// be changed at runtime via SetLevel.
package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// Level is the process-wide severity. Levels are ordered None < Error <
// Info < Debug; a record is emitted iff level <= current level and current
// level != None.
type Level int

const (
	None Level = iota
	Error
	Info
	Debug
)

func (l Level) String() string {
	switch l {
	case None:
		return "NONE"
	case Error:
		return "ERROR"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name ("error", "info",
// "debug", "none") into a Level, defaulting to an error when unrecognized.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "none":
		return None, nil
	case "error":
		return Error, nil
	case "info":
		return Info, nil
	case "debug":
		return Debug, nil
	default:
		return None, fmt.Errorf("unrecognized log level %q", s)
	}
}

// Logger is a severity-filtered sink. The zero value is not usable; build
// one with New.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
	// delegate carries structured key/value fields to anything that wants
	// them (e.g. a tracing backend); stdr adapts it onto the standard
	// library logger so the library has no mandatory structured-logging
	// dependency at the call site.
	delegate logr.Logger
}

// New builds a Logger writing formatted lines to w, starting at the given
// level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		out:      w,
		level:    level,
		delegate: stdr.New(stdlog.New(w, "", 0)),
	}
}

// Default is the process-wide logger used by callers that don't carry an
// explicit *Logger reference, matching the teacher's single package-level
// AuditLogger convention. It writes to stderr at Error level until SetLevel
// or SetOutput is called.
var defaultLogger = New(os.Stderr, Error)

// Default returns the process-wide logger.
func Default() *Logger { return defaultLogger }

// SetLevel changes the process-wide logger's severity.
func SetLevel(level Level) { defaultLogger.SetLevel(level) }

// SetLevel changes this logger's severity under its own lock, matching the
// "serialized access" requirement for the log sink's mutable level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the logger's current severity.
func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *Logger) emit(level Level, msg string) {
	l.mu.Lock()
	cur := l.level
	out := l.out
	l.mu.Unlock()

	if cur == None || level > cur {
		return
	}
	fmt.Fprintf(out, "TrustPin [%s] [%s] %s\n", time.Now().UTC().Format("2006-01-02 15:04:05"), level, msg)
}

// Errorf logs at Error severity.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.emit(Error, fmt.Sprintf(format, args...))
}

// Infof logs at Info severity.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.emit(Info, fmt.Sprintf(format, args...))
}

// Debugf logs at Debug severity.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.emit(Debug, fmt.Sprintf(format, args...))
}

// WithFields returns the structured logr.Logger backing this sink, for
// callers (e.g. the CLI) that want key/value pairs rather than a formatted
// string.
func (l *Logger) WithFields() logr.Logger {
	return l.delegate
}

// Errorf logs at Error severity on the default logger.
func Errorf(format string, args ...interface{}) { defaultLogger.Errorf(format, args...) }

// Infof logs at Info severity on the default logger.
func Infof(format string, args ...interface{}) { defaultLogger.Infof(format, args...) }

// Debugf logs at Debug severity on the default logger.
func Debugf(format string, args ...interface{}) { defaultLogger.Debugf(format, args...) }
