package tracing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSpan(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus Status
		exception  bool
	}{
		{"success", nil, StatusOK, false},
		{"failure", errors.New("boom"), StatusError, true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), StatusTimeout, true},
		{"cancelled", context.Canceled, StatusError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t, 1, nil)

			err := m.WithSpan(context.Background(), "work", func(ctx context.Context) error {
				tc, ok := TraceFromContext(ctx)
				assert.True(t, ok)
				cur, _ := m.CurrentContext()
				assert.Equal(t, cur.SpanID, tc.SpanID)
				return tt.err
			}, map[string]string{"kind": "test"})
			assert.Equal(t, tt.err, err)

			_, ok := m.CurrentContext()
			assert.False(t, ok, "context cleared after scope")

			spans := m.Buffered()
			require.Len(t, spans, 1)
			assert.Equal(t, tt.wantStatus, spans[0].Status)
			assert.Equal(t, "test", spans[0].Tags["kind"])
			if tt.exception {
				require.Len(t, spans[0].Events, 1)
				assert.Equal(t, "exception", spans[0].Events[0].Name)
				assert.Equal(t, tt.err.Error(), spans[0].Events[0].Attributes["exception.message"])
			} else {
				assert.Empty(t, spans[0].Events)
			}
		})
	}
}

func TestWithSpanNestsUnderCurrent(t *testing.T) {
	m := newTestManager(t, 1, nil)

	rootID := m.StartTrace("root", nil)
	require.NoError(t, m.WithSpan(context.Background(), "inner", func(context.Context) error { return nil }, nil))

	cur, ok := m.CurrentContext()
	require.True(t, ok)
	assert.Equal(t, rootID, cur.SpanID)
	assert.Equal(t, rootID, m.Buffered()[0].ParentSpanID)
}

func TestWithSpanPanicEndsSpanAndRepanics(t *testing.T) {
	m := newTestManager(t, 1, nil)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = m.WithSpan(context.Background(), "explodes", func(context.Context) error {
			panic("kaboom")
		}, nil)
	})

	_, ok := m.CurrentContext()
	assert.False(t, ok)
	spans := m.Buffered()
	require.Len(t, spans, 1)
	assert.Equal(t, StatusError, spans[0].Status)
	assert.Equal(t, "panic: kaboom", spans[0].StatusMessage)
}

func TestWithSpanUnwindsLeakedChildren(t *testing.T) {
	m := newTestManager(t, 1, nil)

	err := m.WithSpan(context.Background(), "outer", func(context.Context) error {
		m.StartSpan("leaked-1", nil)
		m.StartSpan("leaked-2", nil)
		return nil
	}, nil)
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 0, stats.Depth)

	var names []string
	for _, s := range m.Buffered() {
		names = append(names, s.OperationName)
	}
	assert.Equal(t, []string{"leaked-2", "leaked-1", "outer"}, names)
}

func TestWithSpanResult(t *testing.T) {
	m := newTestManager(t, 1, nil)

	got, err := WithSpanResult(context.Background(), m, "compute", func(context.Context) (int, error) {
		return 42, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, StatusOK, m.Buffered()[0].Status)
}

func TestWithSpanUnsampled(t *testing.T) {
	m := newTestManager(t, 0, nil)

	err := m.WithSpan(context.Background(), "dropped", func(context.Context) error {
		return errors.New("still returned")
	}, nil)
	assert.EqualError(t, err, "still returned")
	assert.Equal(t, 0, m.Stats().Buffered)
	assert.Equal(t, 0, m.Stats().Depth)
}
