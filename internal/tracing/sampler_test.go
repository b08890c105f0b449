package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want Sampler
	}{
		{-1, NeverSampler{}},
		{0, NeverSampler{}},
		{1, AlwaysSampler{}},
		{2, AlwaysSampler{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NewSampler(tt.rate))
	}
	assert.IsType(t, &RatioSampler{}, NewSampler(0.5))
}

func TestRatioSamplerApproximatesRate(t *testing.T) {
	s := NewRatioSampler(0.25)

	kept := 0
	const n = 20000
	for i := 0; i < n; i++ {
		if s.ShouldSample("trace", "op") {
			kept++
		}
	}
	assert.InDelta(t, 0.25, float64(kept)/n, 0.03)
}

func TestRatioSamplerClamps(t *testing.T) {
	assert.True(t, NewRatioSampler(5).ShouldSample("t", "n"))
	assert.False(t, NewRatioSampler(-5).ShouldSample("t", "n"))
}
