package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/shared/id"
)

func TestTraceparentRoundTrip(t *testing.T) {
	gen := id.NewGenerator()
	for i := 0; i < 100; i++ {
		traceID := id.NewTraceID().String()
		spanID := gen.SpanID().String()

		tc, ok := ParseTraceparent(FormatTraceparent(traceID, spanID))
		require.True(t, ok)
		assert.Equal(t, traceID, tc.TraceID)
		assert.Equal(t, spanID, tc.SpanID)
	}
}

func TestManagerTraceparentRoundTrip(t *testing.T) {
	m := newTestManager(t, 1, nil)

	_, ok := m.Traceparent()
	assert.False(t, ok)

	m.StartTrace("op", nil)
	m.StartSpan("child", nil)
	cur, _ := m.CurrentContext()

	tp, ok := m.Traceparent()
	require.True(t, ok)
	assert.Equal(t, "00-"+cur.TraceID+"-"+cur.SpanID+"-01", tp)

	parsed, ok := ParseTraceparent(tp)
	require.True(t, ok)
	assert.Equal(t, cur.TraceID, parsed.TraceID)
	assert.Equal(t, cur.SpanID, parsed.SpanID)
}

func TestParseTraceparentRejectsWrongFieldCount(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"no hyphens", "00af7651916cd43dd8448eb211c80319c"},
		{"three fields", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331"},
		{"five fields", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01-extra"},
		{"trailing hyphen", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01-"},
		{"two fields", "00-01"},
		{"empty ids", "00---01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, ok := ParseTraceparent(tt.value)
			assert.False(t, ok)
			assert.True(t, tc.IsZero())
		})
	}
}

func TestInjectExtract(t *testing.T) {
	m := newTestManager(t, 1, nil)

	headers := map[string]string{}
	m.Inject(headers)
	assert.NotContains(t, headers, TraceparentHeader)

	m.StartTrace("op", nil)
	m.Inject(headers)

	cur, _ := m.CurrentContext()
	tc, ok := Extract(headers)
	require.True(t, ok)
	assert.Equal(t, cur.TraceID, tc.TraceID)
	assert.Equal(t, cur.SpanID, tc.SpanID)

	_, ok = Extract(map[string]string{})
	assert.False(t, ok)
}

func TestContextWithTrace(t *testing.T) {
	_, ok := TraceFromContext(context.Background())
	assert.False(t, ok)

	want := TraceContext{TraceID: "t", SpanID: "s"}
	got, ok := TraceFromContext(ContextWithTrace(context.Background(), want))
	require.True(t, ok)
	assert.Equal(t, want, got)
}
