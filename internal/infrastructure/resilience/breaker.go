package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold uint32
	// Cooldown is how long the circuit stays open before probing
	Cooldown time.Duration
	// HalfOpenProbes is the number of calls admitted (and required to succeed) while half-open
	HalfOpenProbes uint32
	// OnStateChange is called whenever the state changes, outside the breaker lock
	OnStateChange func(name string, from State, to State)
	// Now overrides the clock; tests use it to skip the cooldown
	Now func() time.Time
}

// Counts holds the statistics for the circuit breaker
type Counts struct {
	Calls                uint32
	Failures             uint32
	ConsecutiveFailures  uint32
	ConsecutiveSuccesses uint32
}

// Breaker guards a flaky dependency such as a telemetry sink. While open it
// fails fast so callers can keep their data and try again later.
type Breaker struct {
	name     string
	settings Settings

	mu       sync.Mutex
	state    State
	counts   Counts
	openedAt time.Time
	inFlight uint32
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.HalfOpenProbes == 0 {
		settings.HalfOpenProbes = 1
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, promoting open to half-open once the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	state, change := b.refresh()
	b.mu.Unlock()

	b.notify(change)
	return state
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs fn if the breaker admits the call. Context cancellation by the
// caller is not counted as a dependency failure.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.release()
		return err
	}
	b.record(err == nil)
	return err
}

type transition struct {
	from, to State
	changed  bool
}

func (b *Breaker) notify(t transition) {
	if t.changed && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, t.from, t.to)
	}
}

// refresh must be called with mu held.
func (b *Breaker) refresh() (State, transition) {
	if b.state == StateOpen && b.settings.Now().Sub(b.openedAt) >= b.settings.Cooldown {
		return StateHalfOpen, b.moveTo(StateHalfOpen)
	}
	return b.state, transition{}
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to State) transition {
	from := b.state
	if from == to {
		return transition{}
	}
	b.state = to
	b.counts.ConsecutiveFailures = 0
	b.counts.ConsecutiveSuccesses = 0
	b.inFlight = 0
	if to == StateOpen {
		b.openedAt = b.settings.Now()
	}
	return transition{from: from, to: to, changed: true}
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	state, change := b.refresh()

	var err error
	switch state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if b.inFlight >= b.settings.HalfOpenProbes {
			err = ErrTooManyRequests
		}
	}
	if err == nil {
		b.inFlight++
		b.counts.Calls++
	}
	b.mu.Unlock()

	b.notify(change)
	return err
}

func (b *Breaker) release() {
	b.mu.Lock()
	if b.inFlight > 0 {
		b.inFlight--
	}
	b.mu.Unlock()
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	if b.inFlight > 0 {
		b.inFlight--
	}

	var change transition
	if success {
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.HalfOpenProbes {
			change = b.moveTo(StateClosed)
		}
	} else {
		b.counts.Failures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		switch b.state {
		case StateHalfOpen:
			change = b.moveTo(StateOpen)
		case StateClosed:
			if b.counts.ConsecutiveFailures >= b.settings.FailureThreshold {
				change = b.moveTo(StateOpen)
			}
		}
	}
	b.mu.Unlock()

	b.notify(change)
}
