package logging

import (
	"context"
)

// contextKey is a type for context keys to avoid collisions.
type contextKey int

const (
	correlationIDKey contextKey = iota
	loggerKey
)

// WithCorrelationIDCtx returns a new context with the correlation ID set.
func WithCorrelationIDCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromCtx extracts the correlation ID from the context.
func CorrelationIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLoggerCtx returns a new context with the logger attached.
func WithLoggerCtx(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromCtx returns a logger from the context. If none is found, returns the
// global logger configured with the context's correlation ID.
func FromCtx(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}

	l := Global()
	if id := CorrelationIDFromCtx(ctx); id != "" {
		l = l.WithCorrelationID(id)
	}
	return l
}
