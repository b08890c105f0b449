package bridge

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMessageTimeout is matched by every *MessageTimeoutError
	ErrMessageTimeout = errors.New("message timed out")
	// ErrConnectionLost rejects pending requests when the transport drops
	ErrConnectionLost = errors.New("connection lost")
	// ErrBridgeClosed is returned after Close
	ErrBridgeClosed = errors.New("bridge closed")
	// ErrNotConnected is returned by operations that need a live transport
	ErrNotConnected = errors.New("bridge not connected")
	// ErrDuplicateRequest is returned when a span id is already awaiting a reply
	ErrDuplicateRequest = errors.New("request with this span id already pending")
)

// ConnectionError reports a failed transport connect
type ConnectionError struct {
	Attempt int
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// MessageTimeoutError reports that no correlated reply arrived in time
type MessageTimeoutError struct {
	MessageID string
	SpanID    string
	Timeout   time.Duration
}

func (e *MessageTimeoutError) Error() string {
	return fmt.Sprintf("message %s (span %s) got no reply within %v", e.MessageID, e.SpanID, e.Timeout)
}

// Is makes errors.Is(err, ErrMessageTimeout) hold
func (e *MessageTimeoutError) Is(target error) bool {
	return target == ErrMessageTimeout
}

// ParseError reports a malformed inbound payload
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed inbound message: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
