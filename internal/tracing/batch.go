package tracing

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/bytedance/sonic"
)

// Resource attribute keys
const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
)

// ScopeName identifies this instrumentation in exported batches
const ScopeName = "qantum-tracing"

// OTLP status codes
const (
	StatusCodeUnset = 0
	StatusCodeOK    = 1
	StatusCodeError = 2
)

// ExportBatch is the resource-scoped span collection shipped to a sink. Its
// JSON form is the OTLP/HTTP JSON trace request.
type ExportBatch struct {
	ResourceSpans []ResourceSpans `json:"resourceSpans"`
}

// ResourceSpans groups spans by service identity
type ResourceSpans struct {
	Resource   Resource     `json:"resource"`
	ScopeSpans []ScopeSpans `json:"scopeSpans"`
}

// Resource carries service.name and service.version
type Resource struct {
	Attributes []KeyValue `json:"attributes"`
}

// ScopeSpans groups spans by instrumentation scope
type ScopeSpans struct {
	Scope Scope        `json:"scope"`
	Spans []ExportSpan `json:"spans"`
}

// Scope identifies the instrumentation library
type Scope struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ExportSpan is a finished span in export form
type ExportSpan struct {
	TraceID           string        `json:"traceId"`
	SpanID            string        `json:"spanId"`
	ParentSpanID      string        `json:"parentSpanId,omitempty"`
	Name              string        `json:"name"`
	StartTimeUnixNano uint64        `json:"startTimeUnixNano,string"`
	EndTimeUnixNano   uint64        `json:"endTimeUnixNano,string"`
	Status            ExportStatus  `json:"status"`
	Attributes        []KeyValue    `json:"attributes"`
	Events            []ExportEvent `json:"events"`
}

// ExportStatus is the OTLP status of a span. Message carries "timeout" for
// spans that ended by deadline, which OTLP has no code for.
type ExportStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// ExportEvent is a span event in export form
type ExportEvent struct {
	TimeUnixNano uint64     `json:"timeUnixNano,string"`
	Name         string     `json:"name"`
	Attributes   []KeyValue `json:"attributes"`
}

// KeyValue is a flattened attribute
type KeyValue struct {
	Key   string   `json:"key"`
	Value AnyValue `json:"value"`
}

// AnyValue holds a stringified attribute value
type AnyValue struct {
	StringValue string `json:"stringValue"`
}

// SpanCount returns the number of spans across all resources
func (b *ExportBatch) SpanCount() int {
	n := 0
	for _, rs := range b.ResourceSpans {
		for _, ss := range rs.ScopeSpans {
			n += len(ss.Spans)
		}
	}
	return n
}

// BuildBatch groups finished spans by service identity, preserving the order
// in which services and spans first appear.
func BuildBatch(spans []*Span, serviceName, serviceVersion string) *ExportBatch {
	batch := &ExportBatch{}
	index := make(map[string]int)

	for _, s := range spans {
		service := s.ServiceName()
		if service == "" {
			service = serviceName
		}

		i, ok := index[service]
		if !ok {
			i = len(batch.ResourceSpans)
			index[service] = i
			batch.ResourceSpans = append(batch.ResourceSpans, ResourceSpans{
				Resource: Resource{Attributes: []KeyValue{
					stringKV(AttrServiceName, service),
					stringKV(AttrServiceVersion, serviceVersion),
				}},
				ScopeSpans: []ScopeSpans{{Scope: Scope{Name: ScopeName}}},
			})
		}

		scope := &batch.ResourceSpans[i].ScopeSpans[0]
		scope.Spans = append(scope.Spans, toExportSpan(s))
	}
	return batch
}

func toExportSpan(s *Span) ExportSpan {
	es := ExportSpan{
		TraceID:           s.TraceID,
		SpanID:            s.SpanID,
		ParentSpanID:      s.ParentSpanID,
		Name:              s.OperationName,
		StartTimeUnixNano: uint64(s.StartTime.UnixNano()),
		EndTimeUnixNano:   uint64(s.EndTime.UnixNano()),
		Status:            exportStatus(s.Status, s.StatusMessage),
		Attributes:        flattenTags(s.Tags),
		Events:            make([]ExportEvent, 0, len(s.Events)),
	}
	for _, ev := range s.Events {
		es.Events = append(es.Events, ExportEvent{
			TimeUnixNano: uint64(ev.Timestamp.UnixNano()),
			Name:         ev.Name,
			Attributes:   flattenAttributes(ev.Attributes),
		})
	}
	return es
}

func exportStatus(status Status, message string) ExportStatus {
	switch status {
	case StatusOK:
		return ExportStatus{Code: StatusCodeOK, Message: message}
	case StatusError:
		return ExportStatus{Code: StatusCodeError, Message: message}
	case StatusTimeout:
		if message == "" {
			message = string(StatusTimeout)
		}
		return ExportStatus{Code: StatusCodeError, Message: message}
	default:
		return ExportStatus{Code: StatusCodeUnset, Message: message}
	}
}

func stringKV(key, value string) KeyValue {
	return KeyValue{Key: key, Value: AnyValue{StringValue: value}}
}

// flattenTags emits tags sorted by key so batches are deterministic
func flattenTags(tags map[string]string) []KeyValue {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, stringKV(k, tags[k]))
	}
	return kvs
}

func flattenAttributes(attrs map[string]any) []KeyValue {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		kvs = append(kvs, stringKV(k, Stringify(attrs[k])))
	}
	return kvs
}

// Stringify renders an attribute value. Scalars use their natural form;
// composite values are JSON encoded.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	}
	if s, err := sonic.MarshalString(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}
