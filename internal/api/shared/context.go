package shared

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/docsmith/internal/tracing"
)

// ContextKey is the type of request context keys set by this package.
type ContextKey string

// TraceIDKey is the key for the trace ID in the request context.
const TraceIDKey ContextKey = "traceID"

// SetTraceID adds a trace ID to the context. The OpenTelemetry trace ID is
// reused when a sampled span is active so that logs, error responses and
// exported traces share one identifier.
func SetTraceID(ctx context.Context) context.Context {
	traceID := tracing.TraceID(ctx)
	if traceID == "" {
		traceID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context, or "" if none is set.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}
