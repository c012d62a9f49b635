package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/sqlassist/sqlassist/internal/config"
)

type contextKey struct{}

// NewLogger returns the process logger. Every record carries the service name
// and profile; a nil writer discards output.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKey{}, traceID)
}

// TraceIDFromContext returns "" outside a request handled by TraceMiddleware.
func TraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(contextKey{}).(string)
	return traceID
}
