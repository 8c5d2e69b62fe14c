// Package logger provides process-wide logging for civicwatch.
// Debug and Info messages are emitted only in verbose mode (--verbose);
// warnings and errors are always emitted. Records are written by a
// log/slog text handler so they stay greppable as key=value lines.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	handler slog.Handler
)

func init() {
	handler = newHandler(output)
}

// newHandler builds the text handler. Timestamps are dropped so output is
// stable for tests and for piping into other tools.
func newHandler(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	handler = newHandler(w)
}

// Slog returns a *slog.Logger writing through the package handler, for
// libraries that take a structured logger.
func Slog() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slog.New(handler)
}

func emit(level slog.Level, gated bool, format string, args []any) {
	mu.RLock()
	defer mu.RUnlock()
	if gated && !verbose {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	_ = handler.Handle(context.Background(), slog.NewRecord(time.Time{}, level, msg, 0))
}

// Debug logs a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	emit(slog.LevelDebug, true, format, args)
}

// Info logs an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	emit(slog.LevelInfo, true, format, args)
}

// Warn logs a warning.
func Warn(format string, args ...any) {
	emit(slog.LevelWarn, false, format, args)
}

// Error logs an error.
func Error(format string, args ...any) {
	emit(slog.LevelError, false, format, args)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}
