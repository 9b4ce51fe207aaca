// Package logger wraps log/slog with the attribute conventions used
// across the service. Every log line that concerns a request carries
// user_id, failures carry error, and traced requests carry request_id.
package logger

import (
	"context"
	"log/slog"
	"os"
)

// Logger carries a configured slog.Logger and derives scoped children.
type Logger struct {
	*slog.Logger
}

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func parseLevel(level string) slog.Level {
	if lv, ok := levels[level]; ok {
		return lv
	}
	return slog.LevelInfo
}

// New builds a logger writing to stdout. Format "json" selects the
// JSON handler, anything else the text handler.
func New(level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return &Logger{Logger: slog.New(h)}
}

// Default builds a text logger at info level.
func Default() *Logger {
	return New("info", "text")
}

func (l *Logger) derive(key string, value any) *Logger {
	return &Logger{Logger: l.With(key, value)}
}

// WithContext attaches the request ID carried by ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if reqID := ctx.Value("request_id"); reqID != nil {
		return l.derive("request_id", reqID)
	}
	return l
}

// WithUser scopes the logger to one user.
func (l *Logger) WithUser(userID string) *Logger {
	return l.derive("user_id", userID)
}

// WithError attaches the error message.
func (l *Logger) WithError(err error) *Logger {
	return l.derive("error", err.Error())
}
