package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterStartsAtMin(t *testing.T) {
	l := NewAdaptiveConcurrencyLimiter(5, 20)
	snap := l.Snapshot()
	assert.Equal(t, 5, snap.CurrentLimit)
	assert.Equal(t, 5, snap.PeakLimit)
	assert.Zero(t, snap.ActiveWorkers)
}

func TestLimiterGrowsAfterStreak(t *testing.T) {
	l := NewAdaptiveConcurrencyLimiter(5, 20)
	for i := 0; i < successStreakThreshold; i++ {
		l.RecordSuccess()
	}
	snap := l.Snapshot()
	assert.Equal(t, 6, snap.CurrentLimit)
	assert.Equal(t, 6, snap.PeakLimit)
}

func TestLimiterGrowthBlockedInsideCooldown(t *testing.T) {
	l := NewAdaptiveConcurrencyLimiter(5, 20)
	now := time.Now()
	l.now = func() time.Time { return now }

	l.RecordRateLimited()
	for i := 0; i < successStreakThreshold; i++ {
		l.RecordSuccess()
	}
	assert.Equal(t, 5, l.Snapshot().CurrentLimit, "growth must wait out the cooldown")

	// After the cooldown the same streak grows the limit.
	l.now = func() time.Time { return now.Add(growthCooldown + time.Second) }
	for i := 0; i < successStreakThreshold; i++ {
		l.RecordSuccess()
	}
	assert.Equal(t, 6, l.Snapshot().CurrentLimit)
}

// Rate-limit scenario: two 429s in a row halve (floored at min) and
// reset the streak.
func TestLimiterHalvesOn429(t *testing.T) {
	l := NewAdaptiveConcurrencyLimiter(5, 40)
	l.current = 32

	l.RecordRateLimited()
	assert.Equal(t, 16, l.Snapshot().CurrentLimit)
	l.RecordRateLimited()
	assert.Equal(t, 8, l.Snapshot().CurrentLimit)
	l.RecordRateLimited()
	l.RecordRateLimited()
	assert.Equal(t, 5, l.Snapshot().CurrentLimit, "never below min")
	assert.Zero(t, l.successStreak)
}

func TestLimiterBoundsInvariant(t *testing.T) {
	l := NewAdaptiveConcurrencyLimiter(3, 6)
	for i := 0; i < 500; i++ {
		if i%7 == 0 {
			l.RecordRateLimited()
		} else {
			l.RecordSuccess()
		}
		snap := l.Snapshot()
		require.GreaterOrEqual(t, snap.CurrentLimit, 3)
		require.LessOrEqual(t, snap.CurrentLimit, 6)
		require.GreaterOrEqual(t, snap.PeakLimit, snap.CurrentLimit)
	}
}

func TestAcquireRelease(t *testing.T) {
	l := NewAdaptiveConcurrencyLimiter(2, 2)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, 2, l.Snapshot().ActiveWorkers)

	// Third acquire blocks until a release.
	done := make(chan struct{})
	go func() {
		_ = l.Acquire(ctx)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("acquire should have blocked at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked acquire was not woken by release")
	}
}

func TestAcquireCancel(t *testing.T) {
	l := NewAdaptiveConcurrencyLimiter(1, 1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// Per-host backoff grows exponentially across consecutive 429s.
func TestRateLimiterExponentialBackoff(t *testing.T) {
	r := NewAdaptiveRateLimiter()
	first := r.RecordRateLimited("https://docs.example.com/a")
	second := r.RecordRateLimited("https://docs.example.com/b")
	assert.Equal(t, baseBackoff, first)
	assert.Equal(t, 2*baseBackoff, second)
	assert.Equal(t, 2, r.Backoff("https://docs.example.com/"))

	// Another host is unaffected.
	assert.Zero(t, r.Backoff("https://other.example.com/"))
}

func TestRateLimiterSuccessDecays(t *testing.T) {
	r := NewAdaptiveRateLimiter()
	r.RecordRateLimited("https://h.example.com/")
	r.RecordRateLimited("https://h.example.com/")
	r.RecordSuccess("https://h.example.com/")
	assert.Equal(t, 1, r.Backoff("https://h.example.com/"))
	r.RecordSuccess("https://h.example.com/")
	assert.Zero(t, r.Backoff("https://h.example.com/"))
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	r := NewAdaptiveRateLimiter()
	for i := 0; i < 5; i++ {
		r.RecordRateLimited("https://slow.example.com/")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Wait(ctx, "https://slow.example.com/")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiterWaitNoBackoff(t *testing.T) {
	r := NewAdaptiveRateLimiter()
	assert.NoError(t, r.Wait(context.Background(), "https://fresh.example.com/"))
}
