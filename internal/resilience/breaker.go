// Package resilience provides the circuit breaker that guards the radio's
// external links: the AT serial port and the network host link.
//
// [Breaker] is a three-state breaker (closed, open, half-open). A dead serial
// module or a stalled host makes every call fail fast with [ErrCircuitOpen]
// instead of blocking on a timeout each time.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Execute] while the breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. Probes
	// that all succeed close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a [Breaker].
type Config struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is the number of consecutive failures that open the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenProbes is the number of successful probes needed to close
	// the breaker again. Default: 1.
	HalfOpenProbes int

	// IsFailure classifies errors returned by the guarded call. Errors it
	// rejects (for example a refused parameter) are passed through without
	// counting. Default: every non-nil error is a failure.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition with the
	// breaker lock released.
	OnStateChange func(name string, from, to State)
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name          string
	maxFailures   int
	resetTimeout  time.Duration
	probes        int
	isFailure     func(error) bool
	onStateChange func(name string, from, to State)
	now           func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	probesIssued int
	probesOK     int
}

// New creates a [Breaker]. Zero-value fields in cfg get their defaults.
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{
		name:          cfg.Name,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		probes:        cfg.HalfOpenProbes,
		isFailure:     cfg.IsFailure,
		onStateChange: cfg.OnStateChange,
		now:           time.Now,
	}
}

// Execute runs fn unless the breaker is open. The error from fn is returned
// unchanged.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	halfOpened := false
	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probesIssued, b.probesOK = 0, 0
		halfOpened = true
	}
	probe := b.state == StateHalfOpen
	if probe && b.probesIssued >= b.probes {
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	if probe {
		b.probesIssued++
	}
	b.mu.Unlock()
	if halfOpened {
		slog.Info("circuit breaker half-open", "name", b.name)
		b.notify(StateOpen, StateHalfOpen)
	}

	err := fn()

	b.mu.Lock()
	before := b.state
	if b.isFailure(err) {
		b.failLocked(probe)
	} else {
		b.succeedLocked(probe)
	}
	after := b.state
	b.mu.Unlock()
	b.notify(before, after)
	return err
}

func (b *Breaker) failLocked(probe bool) {
	if probe || b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = b.now()
		slog.Warn("circuit breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.maxFailures && b.state == StateClosed {
		b.state = StateOpen
		b.openedAt = b.now()
		slog.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

func (b *Breaker) succeedLocked(probe bool) {
	if !probe {
		b.failures = 0
		return
	}
	if b.state != StateHalfOpen {
		return
	}
	b.probesOK++
	if b.probesOK >= b.probes {
		b.state = StateClosed
		b.failures = 0
		slog.Info("circuit breaker closed", "name", b.name)
	}
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// Execute.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.probesIssued, b.probesOK = 0, 0
	b.mu.Unlock()
	slog.Info("circuit breaker reset", "name", b.name)
	b.notify(from, StateClosed)
}
