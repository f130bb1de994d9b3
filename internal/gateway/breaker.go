package gateway

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CircuitState is the current position of a provider's circuit breaker.
type CircuitState string

const (
	// CircuitClosed - calls flow normally.
	CircuitClosed CircuitState = "closed"
	// CircuitOpen - the provider is skipped until the cooldown elapses.
	CircuitOpen CircuitState = "open"
	// CircuitHalfOpen - cooldown elapsed, exactly one probe call is admitted.
	CircuitHalfOpen CircuitState = "half_open"
)

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	Threshold int           // consecutive failures before opening
	Window    time.Duration // failures further apart than this reset the streak
	Cooldown  time.Duration // time the circuit stays open before a probe
}

// Breaker tracks one provider's health. All state transitions happen under
// a single mutex so concurrent call outcomes cannot double-open or
// double-close the circuit.
type Breaker struct {
	mu sync.Mutex

	name string
	cfg  BreakerConfig
	log  zerolog.Logger

	state         CircuitState
	failures      int       // current consecutive-failure streak
	lastFailure   time.Time // streak resets when failures fall outside the window
	openedAt      time.Time
	probeInFlight bool

	now func() time.Time
}

// NewBreaker creates a closed breaker for one provider.
func NewBreaker(name string, cfg BreakerConfig, log zerolog.Logger) *Breaker {
	return &Breaker{
		name:  name,
		cfg:   cfg,
		log:   log.With().Str("component", "breaker").Str("provider", name).Logger(),
		state: CircuitClosed,
		now:   time.Now,
	}
}

// Allow reports whether a call to the provider may be issued right now.
// When the cooldown of an open circuit has elapsed, the first Allow call
// transitions to half-open and admits a single probe; concurrent callers
// are rejected until the probe's outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.state = CircuitHalfOpen
		b.probeInFlight = true
		b.log.Info().Msg("Circuit half-open, admitting probe call")
		return true

	case CircuitHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}

	return false
}

// RecordSuccess registers a successful call outcome.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitClosed {
		b.log.Info().Msg("Circuit closed after successful probe")
	}
	b.state = CircuitClosed
	b.failures = 0
	b.probeInFlight = false
}

// RecordFailure registers a failed call outcome. A failed probe reopens the
// circuit and restarts the cooldown; in the closed state, the threshold-th
// consecutive failure within the rolling window opens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if b.state == CircuitHalfOpen {
		b.state = CircuitOpen
		b.openedAt = now
		b.probeInFlight = false
		b.lastFailure = now
		b.log.Warn().Msg("Probe call failed, circuit reopened")
		return
	}
	if b.state == CircuitOpen {
		// A call that was already in flight when the circuit opened.
		b.lastFailure = now
		return
	}

	// Failures outside the rolling window start a fresh streak.
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.cfg.Window {
		b.failures = 0
	}
	b.failures++
	b.lastFailure = now

	if b.failures >= b.cfg.Threshold {
		b.state = CircuitOpen
		b.openedAt = now
		b.log.Warn().
			Int("consecutive_failures", b.failures).
			Dur("cooldown", b.cfg.Cooldown).
			Msg("Circuit opened")
	}
}

// State returns the current circuit position.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive-failure streak.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
