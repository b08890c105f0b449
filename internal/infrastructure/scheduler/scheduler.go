// Package scheduler owns every timer a component starts, so that a single
// Stop call cancels all of them.
package scheduler

import (
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned when scheduling on a stopped scheduler
var ErrStopped = errors.New("scheduler stopped")

// Handle identifies a scheduled timer
type Handle uint64

// Scheduler is an arena of one-shot and periodic timers
type Scheduler struct {
	mu      sync.Mutex
	next    Handle
	timers  map[Handle]*time.Timer
	tickers map[Handle]chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New creates an empty scheduler
func New() *Scheduler {
	return &Scheduler{
		timers:  make(map[Handle]*time.Timer),
		tickers: make(map[Handle]chan struct{}),
	}
}

// After runs fn once after d. The handle is released before fn runs.
func (s *Scheduler) After(d time.Duration, fn func()) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, ErrStopped
	}

	s.next++
	h := s.next
	s.timers[h] = time.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.timers[h]
		delete(s.timers, h)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	return h, nil
}

// Every runs fn every interval until cancelled. Ticks never overlap.
func (s *Scheduler) Every(interval time.Duration, fn func()) (Handle, error) {
	if interval <= 0 {
		return 0, errors.New("scheduler: interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, ErrStopped
	}

	s.next++
	h := s.next
	done := make(chan struct{})
	s.tickers[h] = done

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return h, nil
}

// Cancel stops a timer. Returns false if it already fired or was unknown.
func (s *Scheduler) Cancel(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(h)
}

func (s *Scheduler) cancelLocked(h Handle) bool {
	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
		return true
	}
	if done, ok := s.tickers[h]; ok {
		close(done)
		delete(s.tickers, h)
		return true
	}
	return false
}

// Pending returns the number of live timers
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers) + len(s.tickers)
}

// Stop cancels every timer and refuses new ones. Idempotent. Periodic
// callbacks already running are allowed to finish, unless Stop is called
// from inside one of them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for h := range s.timers {
		s.cancelLocked(h)
	}
	for h := range s.tickers {
		s.cancelLocked(h)
	}
	s.mu.Unlock()
}

// Wait blocks until all periodic goroutines have exited. Call after Stop.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
