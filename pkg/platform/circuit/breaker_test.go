package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome bool

const (
	ok   outcome = true
	fail outcome = false
)

// replay feeds outcomes to b and returns whether the circuit ended open.
func replay(b *Breaker, outcomes ...outcome) bool {
	for _, o := range outcomes {
		if o {
			b.RecordSuccess()
		} else {
			b.RecordFailure()
		}
	}
	return b.IsOpen()
}

func TestBreakerStartsClosed(t *testing.T) {
	b := New("kafka")
	assert.Equal(t, "kafka", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		closes   int
		outcomes []outcome
		open     bool
	}{
		{name: "below threshold", failures: 3, outcomes: []outcome{fail, fail}, open: false},
		{name: "reaches threshold", failures: 3, outcomes: []outcome{fail, fail, fail}, open: true},
		{name: "success restarts failure run", failures: 3, outcomes: []outcome{fail, fail, ok, fail, fail}, open: false},
		{name: "open until enough successes", failures: 1, closes: 2, outcomes: []outcome{fail, ok}, open: true},
		{name: "closes after success run", failures: 1, closes: 2, outcomes: []outcome{fail, ok, ok}, open: false},
		{name: "failure restarts success run", failures: 1, closes: 3, outcomes: []outcome{fail, ok, ok, fail, ok, ok}, open: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("webhook", WithFailureThreshold(tt.failures), WithSuccessThreshold(tt.closes))
			assert.Equal(t, tt.open, replay(b, tt.outcomes...))
		})
	}
}

func TestBreakerReportsStateChangesOnce(t *testing.T) {
	b := New("kafka", WithFailureThreshold(2), WithSuccessThreshold(1))

	useFallback, change := b.RecordFailure()
	assert.False(t, useFallback)
	assert.False(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)

	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.False(t, change.Opened, "already open")

	usePrimary, change := b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
}

func TestBreakerReset(t *testing.T) {
	b := New("kafka", WithFailureThreshold(1))
	require.True(t, replay(b, fail))

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerAllowsOneProbePerCooldown(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := New("log",
		WithFailureThreshold(2),
		WithSuccessThreshold(1),
		WithCooldown(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	require.True(t, replay(b, fail, fail))
	assert.False(t, b.Allow(), "cooling down")

	now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow(), "probe after cooldown")
	assert.False(t, b.Allow(), "one probe per cooldown")

	b.RecordFailure()
	assert.False(t, b.Allow(), "failed probe waits for the next cooldown")

	now = now.Add(2 * time.Minute)
	require.True(t, b.Allow())
	b.RecordSuccess()
	assert.True(t, b.Allow())
	assert.Equal(t, "closed", b.State().String())
}
