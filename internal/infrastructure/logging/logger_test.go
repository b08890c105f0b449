package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/QAntum-Fortres/QANTUM-FRAMEWORK-PRIVATE-sub015/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		wantDebug bool
	}{
		{"from config", FromConfig(config.LogConfig{Level: "info"}), false, false},
		{"development", FromConfig(config.LogConfig{Level: "debug", Development: true}), false, true},
		{"empty level", Config{}, false, false},
		{"bad level", Config{Level: "loud"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDebug, logger.Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestForNode(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Wrap(zap.New(core)).ForNode("qantum", "node-a").Named("bridge").Info("connected")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "bridge", entry.LoggerName)
	assert.Equal(t, "qantum", entry.ContextMap()[KeyService])
	assert.Equal(t, "node-a", entry.ContextMap()[KeyNode])
}

func TestTraceFields(t *testing.T) {
	assert.Len(t, TraceFields("", ""), 0)
	assert.Len(t, TraceFields("t", ""), 1)

	fields := TraceFields("t", "s")
	require.Len(t, fields, 2)
	assert.Equal(t, zap.String(KeyTrace, "t"), fields[0])
	assert.Equal(t, zap.String(KeySpan, "s"), fields[1])
}

func TestWrapNil(t *testing.T) {
	l := Wrap(nil)
	require.NotNil(t, l)
	l.Named("x").Info("discarded")
}
