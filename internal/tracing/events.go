package tracing

import "time"

// EventType names a manager lifecycle event
type EventType string

const (
	EventSpanStarted     EventType = "span.started"
	EventSpanEnded       EventType = "span.ended"
	EventExportSucceeded EventType = "export.succeeded"
	EventExportFailed    EventType = "export.failed"
)

// Event is delivered to subscribers. Span is a copy and may be mutated freely.
type Event struct {
	Type  EventType
	Time  time.Time
	Span  *Span
	Count int
	Err   error
}
