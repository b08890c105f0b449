package tracing

import (
	"context"
	"fmt"
	"strings"
)

// TraceparentHeader is the carrier key used by Inject and Extract
const TraceparentHeader = "traceparent"

const (
	traceparentVersion = "00"
	traceparentSampled = "01"
)

// FormatTraceparent encodes a trace/span pair as "00-{traceId}-{spanId}-01"
func FormatTraceparent(traceID, spanID string) string {
	return fmt.Sprintf("%s-%s-%s-%s", traceparentVersion, traceID, spanID, traceparentSampled)
}

// ParseTraceparent decodes a traceparent value. It fails unless the value has
// exactly four hyphen-delimited fields with non-empty trace and span ids.
// The returned context's SpanID is the remote span.
func ParseTraceparent(value string) (TraceContext, bool) {
	parts := strings.Split(value, "-")
	if len(parts) != 4 {
		return TraceContext{}, false
	}
	if parts[1] == "" || parts[2] == "" {
		return TraceContext{}, false
	}
	return TraceContext{TraceID: parts[1], SpanID: parts[2]}, true
}

// Extract reads a trace context from a header carrier
func Extract(headers map[string]string) (TraceContext, bool) {
	value, ok := headers[TraceparentHeader]
	if !ok {
		return TraceContext{}, false
	}
	return ParseTraceparent(value)
}

// Context keys for in-process propagation
type contextKey string

const traceContextKey contextKey = "trace_context"

// ContextWithTrace returns a copy of ctx carrying tc
func ContextWithTrace(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey, tc)
}

// TraceFromContext retrieves the trace context stored by ContextWithTrace
func TraceFromContext(ctx context.Context) (TraceContext, bool) {
	tc, ok := ctx.Value(traceContextKey).(TraceContext)
	return tc, ok
}
