package tracing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithSpan runs fn inside a span named name. The span ends on every exit
// path: ok when fn returns nil, timeout when it returns a deadline error,
// error otherwise (with an "exception" event). A panic is recorded and
// re-raised after the span ends.
func (m *Manager) WithSpan(ctx context.Context, name string, fn func(ctx context.Context) error, attrs map[string]string) error {
	_, err := WithSpanResult(ctx, m, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, attrs)
	return err
}

// WithSpanResult is WithSpan for functions that return a value
func WithSpanResult[T any](ctx context.Context, m *Manager, name string, fn func(ctx context.Context) (T, error), attrs map[string]string) (result T, err error) {
	m.StartSpan(name, attrs)

	m.mu.Lock()
	depth := len(m.stack) - 1
	own := m.stack[depth].ctx
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.finishScope(depth, own.SpanID, StatusError, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		switch {
		case err == nil:
			m.finishScope(depth, own.SpanID, StatusOK, nil)
		case errors.Is(err, context.DeadlineExceeded):
			m.finishScope(depth, own.SpanID, StatusTimeout, err)
		default:
			m.finishScope(depth, own.SpanID, StatusError, err)
		}
	}()

	return fn(ContextWithTrace(ctx, own))
}

// finishScope ends spans fn left open above depth, then the scope's own span.
// Nothing happens if fn already ended the scope's span itself.
func (m *Manager) finishScope(depth int, spanID string, status Status, cause error) {
	m.mu.Lock()
	if len(m.stack) <= depth || m.stack[depth].ctx.SpanID != spanID {
		m.mu.Unlock()
		return
	}

	var ended []*Span
	for len(m.stack) > depth+1 {
		if s, _ := m.popLocked(StatusUnset); s != nil {
			ended = append(ended, s)
		}
	}

	if span := m.currentSpanLocked(); span != nil && cause != nil {
		span.StatusMessage = cause.Error()
		span.Events = append(span.Events, exceptionEvent(cause))
	}
	if s, _ := m.popLocked(status); s != nil {
		ended = append(ended, s)
	}

	full := len(m.buffer) >= m.cfg.MaxBufferedSpans
	buffered := len(m.buffer)
	m.mu.Unlock()

	m.afterEnd(ended, buffered, full)
}

func exceptionEvent(err error) SpanEvent {
	return SpanEvent{
		Timestamp: time.Now(),
		Name:      "exception",
		Attributes: map[string]any{
			"exception.type":    fmt.Sprintf("%T", err),
			"exception.message": err.Error(),
		},
	}
}
