package bridge

import (
	"context"
	"sync"
)

// Envelope is an offline queue entry
type Envelope struct {
	Message Message `json:"message"`
	// Track registers a pending request when the envelope is flushed.
	// Broadcasts and heartbeats are untracked.
	Track bool `json:"track"`
	// Requeued marks a request moved back from the pending map after a
	// transport drop; its pending entry is reused on flush.
	Requeued bool `json:"requeued,omitempty"`
}

// Queue holds messages while the bridge is offline. Implementations must be
// FIFO: PushFront entries come out before anything already queued, in the
// order given.
type Queue interface {
	Push(ctx context.Context, env Envelope) error
	PushFront(ctx context.Context, envs ...Envelope) error
	Pop(ctx context.Context) (Envelope, bool, error)
	Len(ctx context.Context) (int, error)
	// Remove deletes the requeued envelope of the request spanID, if any
	Remove(ctx context.Context, spanID string) (bool, error)
}

// MemoryQueue is an in-process Queue
type MemoryQueue struct {
	mu    sync.Mutex
	items []Envelope
}

// NewMemoryQueue creates an empty queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(_ context.Context, env Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, env)
	return nil
}

func (q *MemoryQueue) PushFront(_ context.Context, envs ...Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]Envelope, 0, len(envs)+len(q.items))
	items = append(items, envs...)
	q.items = append(items, q.items...)
	return nil
}

func (q *MemoryQueue) Pop(context.Context) (Envelope, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Envelope{}, false, nil
	}
	env := q.items[0]
	q.items[0] = Envelope{}
	q.items = q.items[1:]
	return env, true, nil
}

func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

func (q *MemoryQueue) Remove(_ context.Context, spanID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, env := range q.items {
		if env.Requeued && env.Message.SpanID == spanID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
