package tracing

import (
	"math/rand"
	"sync"
)

// Sampler decides whether a newly created span is recorded
type Sampler interface {
	ShouldSample(traceID, name string) bool
}

// AlwaysSampler records every span
type AlwaysSampler struct{}

// ShouldSample always returns true
func (AlwaysSampler) ShouldSample(string, string) bool { return true }

// NeverSampler drops every span
type NeverSampler struct{}

// ShouldSample always returns false
func (NeverSampler) ShouldSample(string, string) bool { return false }

// RatioSampler records a fraction of spans. Each span gets its own draw.
type RatioSampler struct {
	ratio float64
	mu    sync.Mutex
	rng   *rand.Rand
}

// NewRatioSampler creates a sampler that keeps the given fraction of spans.
// Ratio is clamped to [0,1].
func NewRatioSampler(ratio float64) *RatioSampler {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return &RatioSampler{
		ratio: ratio,
		rng:   rand.New(rand.NewSource(rand.Int63())),
	}
}

// ShouldSample keeps the span when a uniform draw does not exceed the ratio
func (s *RatioSampler) ShouldSample(string, string) bool {
	s.mu.Lock()
	draw := s.rng.Float64()
	s.mu.Unlock()
	return draw < s.ratio
}

// NewSampler picks the cheapest sampler for a configured rate
func NewSampler(rate float64) Sampler {
	switch {
	case rate <= 0:
		return NeverSampler{}
	case rate >= 1:
		return AlwaysSampler{}
	default:
		return NewRatioSampler(rate)
	}
}
