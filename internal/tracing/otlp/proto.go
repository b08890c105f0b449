package otlp

import (
	"encoding/hex"
	"fmt"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/tracing"
)

// ToProto converts a batch to the OTLP collector request. Trace and span ids
// must be hex encoded.
func ToProto(batch *tracing.ExportBatch) (*coltracepb.ExportTraceServiceRequest, error) {
	req := &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: make([]*tracepb.ResourceSpans, 0, len(batch.ResourceSpans)),
	}

	for _, rs := range batch.ResourceSpans {
		out := &tracepb.ResourceSpans{
			Resource: &resourcepb.Resource{Attributes: keyValues(rs.Resource.Attributes)},
		}
		for _, ss := range rs.ScopeSpans {
			scope := &tracepb.ScopeSpans{
				Scope: &commonpb.InstrumentationScope{Name: ss.Scope.Name, Version: ss.Scope.Version},
				Spans: make([]*tracepb.Span, 0, len(ss.Spans)),
			}
			for _, s := range ss.Spans {
				span, err := toProtoSpan(s)
				if err != nil {
					return nil, err
				}
				scope.Spans = append(scope.Spans, span)
			}
			out.ScopeSpans = append(out.ScopeSpans, scope)
		}
		req.ResourceSpans = append(req.ResourceSpans, out)
	}
	return req, nil
}

func toProtoSpan(s tracing.ExportSpan) (*tracepb.Span, error) {
	traceID, err := decodeID(s.TraceID, 16)
	if err != nil {
		return nil, fmt.Errorf("span %s: trace id: %w", s.Name, err)
	}
	spanID, err := decodeID(s.SpanID, 8)
	if err != nil {
		return nil, fmt.Errorf("span %s: span id: %w", s.Name, err)
	}

	span := &tracepb.Span{
		TraceId:           traceID,
		SpanId:            spanID,
		Name:              s.Name,
		Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
		StartTimeUnixNano: s.StartTimeUnixNano,
		EndTimeUnixNano:   s.EndTimeUnixNano,
		Attributes:        keyValues(s.Attributes),
		Status: &tracepb.Status{
			Code:    tracepb.Status_StatusCode(s.Status.Code),
			Message: s.Status.Message,
		},
	}

	if s.ParentSpanID != "" {
		parent, err := decodeID(s.ParentSpanID, 8)
		if err != nil {
			return nil, fmt.Errorf("span %s: parent span id: %w", s.Name, err)
		}
		span.ParentSpanId = parent
	}

	for _, ev := range s.Events {
		span.Events = append(span.Events, &tracepb.Span_Event{
			TimeUnixNano: ev.TimeUnixNano,
			Name:         ev.Name,
			Attributes:   keyValues(ev.Attributes),
		})
	}
	return span, nil
}

func decodeID(s string, size int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("expected %d bytes, got %d", size, len(b))
	}
	return b, nil
}

func keyValues(kvs []tracing.KeyValue) []*commonpb.KeyValue {
	out := make([]*commonpb.KeyValue, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, &commonpb.KeyValue{
			Key: kv.Key,
			Value: &commonpb.AnyValue{
				Value: &commonpb.AnyValue_StringValue{StringValue: kv.Value.StringValue},
			},
		})
	}
	return out
}
