package cli

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"tlog.app/go/tlog"
)

// Logger provides structured logging for CLI tools. Every record carries the
// session id of the run.
type Logger struct {
	Verbose   bool
	DebugMode bool
	Session   string

	l *tlog.Logger
}

// NewSession returns a fresh session id.
func NewSession() string { return uuid.NewString() }

// NewLogger creates a logger writing console records to w.
func NewLogger(w io.Writer, verbose, debug bool) *Logger {
	return &Logger{
		Verbose:   verbose,
		DebugMode: debug,
		Session:   NewSession(),
		l:         tlog.New(tlog.NewConsoleWriter(w, tlog.LstdFlags)),
	}
}

// Install makes l the process logger and enables the pass topics. Debug mode
// without explicit topics enables every topic.
func (l *Logger) Install(topics string) {
	if topics == "" && l.DebugMode {
		topics = "*"
	}
	l.l.SetVerbosity(topics)
	tlog.DefaultLogger = l.l
}

// Tlog exposes the underlying logger.
func (l *Logger) Tlog() *tlog.Logger { return l.l }

func (l *Logger) print(level, format string, args []interface{}) {
	l.l.Printw(fmt.Sprintf(format, args...), "level", level, "session", l.Session)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.Verbose {
		l.print("info", format, args)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.DebugMode {
		l.print("debug", format, args)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.print("warn", format, args)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.print("error", format, args)
}
