package tracing

import (
	"maps"
	"time"
)

// Status is the outcome recorded on a span
type Status string

const (
	// StatusUnset is the zero value; a span still unset when it ends is
	// finalized as StatusOK.
	StatusUnset   Status = ""
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Span represents a single unit of work in a trace
type Span struct {
	TraceID       string
	SpanID        string
	ParentSpanID  string
	OperationName string
	Service       string
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
	Status        Status
	StatusMessage string
	Tags          map[string]string
	Events        []SpanEvent
}

// SpanEvent is a timestamped annotation within a span
type SpanEvent struct {
	Timestamp  time.Time
	Name       string
	Attributes map[string]any
}

// TraceContext is the current position in the span stack
type TraceContext struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// IsZero reports whether the context is empty
func (tc TraceContext) IsZero() bool {
	return tc.TraceID == "" && tc.SpanID == ""
}

// Finished reports whether the span has been sealed
func (s *Span) Finished() bool {
	return !s.EndTime.IsZero()
}

// Clone returns a deep copy. Collaborators only ever receive clones.
func (s *Span) Clone() *Span {
	if s == nil {
		return nil
	}
	c := *s
	c.Tags = maps.Clone(s.Tags)
	if s.Events != nil {
		c.Events = make([]SpanEvent, len(s.Events))
		for i, ev := range s.Events {
			ev.Attributes = maps.Clone(ev.Attributes)
			c.Events[i] = ev
		}
	}
	return &c
}

// ServiceName returns the service identity used for export grouping. A
// "service.name" tag overrides the manager's service.
func (s *Span) ServiceName() string {
	if name, ok := s.Tags[AttrServiceName]; ok && name != "" {
		return name
	}
	return s.Service
}

// seal finalizes the span. status overrides whatever was set; an unset result
// becomes ok.
func (s *Span) seal(now time.Time, status Status) {
	if now.Before(s.StartTime) {
		now = s.StartTime
	}
	s.EndTime = now
	s.Duration = now.Sub(s.StartTime)
	if status != StatusUnset {
		s.Status = status
	}
	if s.Status == StatusUnset {
		s.Status = StatusOK
	}
}
