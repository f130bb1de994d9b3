package gateway

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestBreaker() (*Breaker, *time.Time) {
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	b := NewBreaker("test", BreakerConfig{
		Threshold: 5,
		Window:    60 * time.Second,
		Cooldown:  30 * time.Second,
	}, zerolog.Nop())
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerStartsClosed(t *testing.T) {
	b, _ := newTestBreaker()
	assert.Equal(t, CircuitClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, CircuitClosed, b.State(), "failure %d should not open", i+1)
	}

	b.RecordFailure()
	assert.Equal(t, CircuitOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	assert.Equal(t, 0, b.Failures())

	// A fresh streak has to reach the threshold again
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerWindowResetsStreak(t *testing.T) {
	b, now := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}

	// The fifth failure lands outside the rolling window: streak restarts
	*now = now.Add(61 * time.Second)
	b.RecordFailure()
	assert.Equal(t, CircuitClosed, b.State())
	assert.Equal(t, 1, b.Failures())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b, now := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, CircuitOpen, b.State())

	// Inside the cooldown, nothing gets through
	*now = now.Add(29 * time.Second)
	assert.False(t, b.Allow())

	// After the cooldown, exactly one probe is admitted
	*now = now.Add(2 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, CircuitHalfOpen, b.State())
	assert.False(t, b.Allow(), "second caller must wait for the probe outcome")

	b.RecordSuccess()
	assert.Equal(t, CircuitClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b, now := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	*now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, CircuitOpen, b.State())

	// The cooldown restarted at the probe failure
	*now = now.Add(29 * time.Second)
	assert.False(t, b.Allow())
	*now = now.Add(2 * time.Second)
	assert.True(t, b.Allow())
}
