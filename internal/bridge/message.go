package bridge

import (
	"errors"

	"github.com/bytedance/sonic"
)

// Priority is an ordering hint, not a scheduling guarantee
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Well-known message types
const (
	TypeRequest   = "request"
	TypeResponse  = "response"
	TypeEvent     = "event"
	TypeHeartbeat = "heartbeat"
)

// Broadcast is the wildcard recipient
const Broadcast = "*"

// Message is the unit exchanged over the bridge. A reply sets ParentSpanID
// to the request's SpanID.
type Message struct {
	ID           string   `json:"id"`
	TraceID      string   `json:"traceId"`
	SpanID       string   `json:"spanId"`
	ParentSpanID string   `json:"parentSpanId,omitempty"`
	From         string   `json:"from"`
	To           string   `json:"to"`
	Type         string   `json:"type"`
	Priority     Priority `json:"priority"`
	Payload      any      `json:"payload"`
	// Timestamp is unix milliseconds
	Timestamp int64 `json:"timestamp"`
}

// Clone returns a shallow copy; Payload is shared
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// Reply builds a response correlated to m
func (m *Message) Reply(id, spanID, from string, payload any, timestamp int64) *Message {
	return &Message{
		ID:           id,
		TraceID:      m.TraceID,
		SpanID:       spanID,
		ParentSpanID: m.SpanID,
		From:         from,
		To:           m.From,
		Type:         TypeResponse,
		Priority:     m.Priority,
		Payload:      payload,
		Timestamp:    timestamp,
	}
}

var errMissingID = errors.New("message has no id")

// EncodeMessage serializes a message to its JSON wire form
func EncodeMessage(m *Message) ([]byte, error) {
	return sonic.Marshal(m)
}

// DecodeMessage parses a wire message. Messages without an id are rejected;
// a missing priority defaults to normal.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.ID == "" {
		return nil, errMissingID
	}
	if m.Priority == "" {
		m.Priority = PriorityNormal
	}
	return &m, nil
}
