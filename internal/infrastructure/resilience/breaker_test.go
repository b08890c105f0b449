package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSink = errors.New("sink unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func call(b *Breaker, fail bool) error {
	return b.Do(context.Background(), func(context.Context) error {
		if fail {
			return errSink
		}
		return nil
	})
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		requests      []bool // true = failure
		expectedState State
	}{
		{"stays closed on successes", []bool{false, false, false}, StateClosed},
		{"stays closed below threshold", []bool{true, true}, StateClosed},
		{"opens after consecutive failures", []bool{true, true, true}, StateOpen},
		{"success resets the streak", []bool{true, true, false, true, true}, StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", Settings{FailureThreshold: 3, Cooldown: time.Minute})
			for _, fail := range tt.requests {
				_ = call(breaker, fail)
			}
			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerFailsFastWhenOpen(t *testing.T) {
	breaker := New("test", Settings{FailureThreshold: 1, Cooldown: time.Minute})
	require.ErrorIs(t, call(breaker, true), errSink)

	called := false
	err := breaker.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var transitions []string
	breaker := New("sink", Settings{
		FailureThreshold: 2,
		Cooldown:         10 * time.Second,
		Now:              clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = call(breaker, true)
	_ = call(breaker, true)
	require.Equal(t, StateOpen, breaker.State())

	clock.Advance(10 * time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, call(breaker, false))
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	breaker := New("sink", Settings{FailureThreshold: 1, Cooldown: time.Second, Now: clock.Now})

	_ = call(breaker, true)
	clock.Advance(time.Second)
	require.Equal(t, StateHalfOpen, breaker.State())

	_ = call(breaker, true)
	assert.Equal(t, StateOpen, breaker.State())
	assert.ErrorIs(t, call(breaker, false), ErrCircuitOpen)
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	breaker := New("sink", Settings{FailureThreshold: 1, Cooldown: time.Second, HalfOpenProbes: 1, Now: clock.Now})

	_ = call(breaker, true)
	clock.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = breaker.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, call(breaker, false), ErrTooManyRequests)
	close(release)

	assert.Eventually(t, func() bool { return breaker.State() == StateClosed }, time.Second, 5*time.Millisecond)
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	breaker := New("sink", Settings{FailureThreshold: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := breaker.Do(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(0), breaker.Counts().Failures)
}

func TestBreakerCounts(t *testing.T) {
	breaker := New("test", Settings{FailureThreshold: 10})

	_ = call(breaker, false)
	_ = call(breaker, true)
	_ = call(breaker, true)

	counts := breaker.Counts()
	assert.Equal(t, uint32(3), counts.Calls)
	assert.Equal(t, uint32(2), counts.Failures)
	assert.Equal(t, uint32(2), counts.ConsecutiveFailures)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
