package bridge

import (
	"time"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/config"
	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/scheduler"
)

// PendingPolicy decides what happens to requests awaiting a reply when the
// transport drops.
type PendingPolicy string

const (
	// PendingReject fails every pending request with ErrConnectionLost
	PendingReject PendingPolicy = config.PendingReject
	// PendingRetry puts pending requests back at the front of the offline
	// queue until MaxRetries is reached. The original deadline still applies.
	PendingRetry PendingPolicy = config.PendingRetry
	// PendingLeave keeps the requests pending; their timeouts still apply
	PendingLeave PendingPolicy = config.PendingLeave
)

// PendingRequest is a message awaiting a correlated reply
type PendingRequest struct {
	Message    Message
	SentAt     time.Time
	Retries    int
	MaxRetries int
	Timeout    time.Duration

	resolve func(*Message)
	reject  func(error)
	timer   scheduler.Handle
	armed   bool
	queued  bool // a retry copy waits in the offline queue
}

// PendingInfo is a read-only view of a pending request
type PendingInfo struct {
	SpanID    string    `json:"spanId"`
	MessageID string    `json:"messageId"`
	Type      string    `json:"type"`
	SentAt    time.Time `json:"sentAt"`
	Retries   int       `json:"retries"`
}

func (p *PendingRequest) info() PendingInfo {
	return PendingInfo{
		SpanID:    p.Message.SpanID,
		MessageID: p.Message.ID,
		Type:      p.Message.Type,
		SentAt:    p.SentAt,
		Retries:   p.Retries,
	}
}
