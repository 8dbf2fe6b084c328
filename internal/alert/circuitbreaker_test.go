package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	cb := newCircuitBreaker(3, time.Minute)

	assert.True(t, cb.allow())
	cb.recordFailure()
	cb.recordFailure()
	assert.True(t, cb.allow())

	cb.recordFailure()
	assert.False(t, cb.allow())
}

func TestCircuitBreakerSuccessResets(t *testing.T) {
	cb := newCircuitBreaker(3, time.Minute)

	cb.recordFailure()
	cb.recordFailure()
	cb.recordSuccess()

	// The failure streak restarts from zero.
	cb.recordFailure()
	cb.recordFailure()
	assert.True(t, cb.allow())
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb := newCircuitBreaker(2, 10*time.Millisecond)

	cb.recordFailure()
	cb.recordFailure()
	assert.False(t, cb.allow())

	time.Sleep(20 * time.Millisecond)

	// One probe passes after the cooldown.
	assert.True(t, cb.allow())

	// A failed probe reopens immediately.
	cb.recordFailure()
	assert.False(t, cb.allow())
}

func TestCircuitBreakerProbeSuccessCloses(t *testing.T) {
	cb := newCircuitBreaker(2, 10*time.Millisecond)

	cb.recordFailure()
	cb.recordFailure()
	time.Sleep(20 * time.Millisecond)

	assert.True(t, cb.allow())
	cb.recordSuccess()

	assert.True(t, cb.allow())
	cb.recordFailure()
	assert.True(t, cb.allow(), "one failure after recovery must not reopen")
}
