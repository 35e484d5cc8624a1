// Package reqlog attaches a per-request correlation id to a context and
// hands back a log/slog logger scoped to it, so every log line emitted
// while handling one HTTP request can be traced back to that request.
package reqlog

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is an unexported type for context keys in this package, so
// they can never collide with keys defined elsewhere.
type contextKey string

const requestIDKey contextKey = "request_id"

// WithRequestID attaches id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id attached to ctx, if any.
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}

// Logger returns a logger carrying ctx's request id as a structured
// field. Contexts with no request id (e.g. a bare context.Background()
// in a test) fall back to the default logger unscoped.
func Logger(ctx context.Context) *slog.Logger {
	if id, ok := RequestID(ctx); ok {
		return slog.Default().With("request_id", id)
	}
	return slog.Default()
}

// Middleware assigns a fresh request id to every inbound request,
// attaches it to the request's context, and echoes it back as a
// response header so a client-reported failure can be correlated with
// server-side logs.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}
