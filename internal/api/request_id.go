package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// requestIDHeader carries the request ID between webhooker and whatever
// fronts it (proxies, load balancers, log shippers).
const requestIDHeader = "X-Request-ID"

// requestIDKey is unexported so only this package can construct it.
type requestIDKey struct{}

// RequestIDFromContext returns the request ID, or "" when none was set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID stores a request ID on the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID assigns every request an ID: the client's X-Request-ID when
// present, otherwise a fresh UUID. The ID is stored on the context, echoed
// back on the response, and attached to a request-scoped logger so ingest
// and queue log lines for the same request correlate.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		ctx := ContextWithRequestID(r.Context(), id)
		ctx = contextWithLogger(ctx, slog.Default().With("request_id", id))

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loggerKey struct{}

func contextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the request-scoped logger, falling back to
// slog.Default outside a request.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
