package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAfterFires(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired atomic.Bool
	_, err := s.After(10*time.Millisecond, func() { fired.Store(true) })
	require.NoError(t, err)

	assert.Eventually(t, fired.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, s.Pending())
}

func TestCancel(t *testing.T) {
	s := New()
	defer s.Stop()

	var fired atomic.Bool
	h, err := s.After(20*time.Millisecond, func() { fired.Store(true) })
	require.NoError(t, err)

	assert.True(t, s.Cancel(h))
	assert.False(t, s.Cancel(h))

	time.Sleep(40 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestEvery(t *testing.T) {
	s := New()

	var ticks atomic.Int32
	_, err := s.Every(5*time.Millisecond, func() { ticks.Add(1) })
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Wait()
	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())
}

func TestStopCancelsEverything(t *testing.T) {
	s := New()

	var fired atomic.Int32
	_, _ = s.After(20*time.Millisecond, func() { fired.Add(1) })
	_, _ = s.After(30*time.Millisecond, func() { fired.Add(1) })
	_, _ = s.Every(10*time.Millisecond, func() { fired.Add(1) })
	assert.Equal(t, 3, s.Pending())

	s.Stop()
	s.Stop()
	s.Wait()

	assert.Equal(t, 0, s.Pending())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	_, err := s.After(time.Millisecond, func() {})
	assert.ErrorIs(t, err, ErrStopped)
}
