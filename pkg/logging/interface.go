// Package logging defines the structured logging interface used throughout
// the agent. Unlike the gateway's multi-tenant Logger (which queries and
// streams from a remote aggregator), this agent runs as a single host
// process, so the interface is trimmed to the leveled-write surface and
// backed by log/slog.
package logging

import "context"

// Logger is the structured logging contract every component depends on.
type Logger interface {
	Debug(ctx context.Context, message string, fields map[string]interface{})
	Info(ctx context.Context, message string, fields map[string]interface{})
	Warn(ctx context.Context, message string, fields map[string]interface{})
	Error(ctx context.Context, message string, fields map[string]interface{})
}
