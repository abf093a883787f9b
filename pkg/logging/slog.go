package logging

import (
	"context"
	"log/slog"
	"os"
)

// SlogLogger adapts log/slog to the Logger interface.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger builds a JSON-handler logger writing to stderr, matching
// the level names the agent config file exposes ("debug", "info", etc.).
func NewSlogLogger(level string) *SlogLogger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return &SlogLogger{l: slog.New(handler)}
}

func attrs(fields map[string]interface{}) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func (s *SlogLogger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	s.l.DebugContext(ctx, message, attrs(fields)...)
}

func (s *SlogLogger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	s.l.InfoContext(ctx, message, attrs(fields)...)
}

func (s *SlogLogger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	s.l.WarnContext(ctx, message, attrs(fields)...)
}

func (s *SlogLogger) Error(ctx context.Context, message string, fields map[string]interface{}) {
	s.l.ErrorContext(ctx, message, attrs(fields)...)
}
