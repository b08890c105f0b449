package bridge

import "time"

// EventType names a bridge lifecycle event
type EventType string

const (
	EventStateChanged       EventType = "state.changed"
	EventMessageReceived    EventType = "message.received"
	EventMessageSent        EventType = "message.sent"
	EventMessageQueued      EventType = "message.queued"
	EventMessageTimeout     EventType = "message.timeout"
	EventParseError         EventType = "parse.error"
	EventHeartbeat          EventType = "heartbeat"
	EventReconnectScheduled EventType = "reconnect.scheduled"
)

// Event is delivered to subscribers outside the bridge lock. Message is a
// copy.
type Event struct {
	Type    EventType
	Time    time.Time
	State   State
	From    State
	Message *Message
	Err     error
	Attempt int
	Delay   time.Duration
}
