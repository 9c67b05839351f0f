package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/docsmith/internal/api/shared"
	"github.com/phrazzld/docsmith/internal/platform/logger"
	"github.com/phrazzld/docsmith/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
)

// NewTraceMiddleware starts a span for each request, assigns it a trace ID
// and stores a logger carrying that ID in the request context. It should be
// applied early in the chain so every handler can use both.
func NewTraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartSpan(r.Context(), "http.request",
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			)
			defer span.End()

			ctx = shared.SetTraceID(ctx)
			traceID := shared.GetTraceID(ctx)

			log := base.With(slog.String("trace_id", traceID))
			ctx = logger.WithContext(ctx, log)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
