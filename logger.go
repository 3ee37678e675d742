package bmapdb

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with bmapdb-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithTable adds a table field to the logger.
func (l *Logger) WithTable(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", name),
	}
}

// LogOpen logs opening a database.
func (l *Logger) LogOpen(ctx context.Context, dir string, memoryLimit int64) {
	l.InfoContext(ctx, "database opened",
		"dir", dir,
		"memory_limit", memoryLimit,
	)
}

// LogCheck logs the outcome of checking one table.
func (l *Logger) LogCheck(ctx context.Context, table string, repaired bool, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "table check failed",
			"table", table,
			"error", err,
		)
	case repaired:
		l.InfoContext(ctx, "table repaired",
			"table", table,
		)
	default:
		l.DebugContext(ctx, "table check passed",
			"table", table,
		)
	}
}

// LogBackup logs a backup or restore run. tables is 0 when every table was
// included.
func (l *Logger) LogBackup(ctx context.Context, op string, tables int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"tables", tables,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, op+" completed",
			"tables", tables,
			"duration", duration,
		)
	}
}
