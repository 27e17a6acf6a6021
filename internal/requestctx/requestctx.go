// Package requestctx carries per-request values (correlation id, start time, scoped logger)
// through context.Context so that no request state lives in globals.
package requestctx

import (
	"context"
	"log/slog"
	"time"

	"intensityapi/internal/logging"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	startKey
	loggerKey
)

// WithRequestID returns a copy of ctx carrying the correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the correlation id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithStart records when the request entered the service.
func WithStart(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startKey, t)
}

// Start returns the recorded entry time, if any.
func Start(ctx context.Context) (time.Time, bool) {
	if ctx == nil {
		return time.Time{}, false
	}
	t, ok := ctx.Value(startKey).(time.Time)
	return t, ok
}

// WithLogger attaches a request-scoped logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request-scoped logger, falling back to base tagged with the request id.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	if base == nil {
		base = logging.Discard()
	}
	if id := RequestID(ctx); id != "" {
		return base.With("request_id", id)
	}
	return base
}
