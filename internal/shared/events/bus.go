// Package events provides an explicit observer registry used by the tracing
// manager and the message bridge to publish lifecycle events.
//
// Subscribers are invoked synchronously, in subscription order, outside the
// bus lock. A subscriber may unsubscribe itself (or others) from inside its
// callback.
package events

import (
	"sync"
)

// Subscription identifies a registered handler
type Subscription uint64

// Bus dispatches events of type E to registered handlers
type Bus[E any] struct {
	mu       sync.RWMutex
	next     Subscription
	handlers []entry[E]
}

type entry[E any] struct {
	id Subscription
	fn func(E)
}

// NewBus creates an empty bus
func NewBus[E any]() *Bus[E] {
	return &Bus[E]{}
}

// Subscribe registers fn and returns a handle for Unsubscribe
func (b *Bus[E]) Subscribe(fn func(E)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	b.handlers = append(b.handlers, entry[E]{id: b.next, fn: fn})
	return b.next
}

// Unsubscribe removes a handler. Returns false if it was not registered.
func (b *Bus[E]) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, h := range b.handlers {
		if h.id == sub {
			b.handlers = append(b.handlers[:i:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers ev to every handler registered at the time of the call
func (b *Bus[E]) Publish(ev E) {
	b.mu.RLock()
	snapshot := make([]entry[E], len(b.handlers))
	copy(snapshot, b.handlers)
	b.mu.RUnlock()

	for _, h := range snapshot {
		h.fn(ev)
	}
}

// Len returns the number of registered handlers
func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
