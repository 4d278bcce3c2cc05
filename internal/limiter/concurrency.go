// Package limiter provides the adaptive concurrency limiter and the
// per-host adaptive rate limiter used by the fetch pool. Both react to
// 429 responses: the semaphore contracts, the host backoff grows.
package limiter

import (
	"context"
	"sync"
	"time"
)

// Growth thresholds for the concurrency limiter.
const (
	successStreakThreshold = 25
	growthCooldown         = 60 * time.Second
)

// DefaultMinLimit is the starting concurrency per tenant.
const DefaultMinLimit = 5

// Snapshot reports the limiter state for observability.
type Snapshot struct {
	CurrentLimit  int `json:"current_limit"`
	PeakLimit     int `json:"peak_limit"`
	ActiveWorkers int `json:"active_workers"`
	PeakActive    int `json:"peak_active"`
}

// AdaptiveConcurrencyLimiter is a resizable semaphore. Capacity grows
// by one after a sustained success streak and halves on any rate-limit
// signal, always staying inside [minLimit, maxLimit].
type AdaptiveConcurrencyLimiter struct {
	mu sync.Mutex

	minLimit int
	maxLimit int
	current  int
	active   int

	peakLimit  int
	peakActive int

	successStreak int
	lastRateLimit time.Time

	waiters []chan struct{}

	now func() time.Time
}

// NewAdaptiveConcurrencyLimiter builds a limiter starting at minLimit.
func NewAdaptiveConcurrencyLimiter(minLimit, maxLimit int) *AdaptiveConcurrencyLimiter {
	if minLimit <= 0 {
		minLimit = DefaultMinLimit
	}
	if maxLimit < minLimit {
		maxLimit = minLimit
	}
	return &AdaptiveConcurrencyLimiter{
		minLimit:  minLimit,
		maxLimit:  maxLimit,
		current:   minLimit,
		peakLimit: minLimit,
		now:       time.Now,
	}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *AdaptiveConcurrencyLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.active < l.current {
			l.active++
			if l.active > l.peakActive {
				l.peakActive = l.active
			}
			l.mu.Unlock()
			return nil
		}
		wait := make(chan struct{})
		l.waiters = append(l.waiters, wait)
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			l.removeWaiter(wait)
			return ctx.Err()
		}
	}
}

// Release frees a slot.
func (l *AdaptiveConcurrencyLimiter) Release() {
	l.mu.Lock()
	if l.active > 0 {
		l.active--
	}
	l.wakeLocked()
	l.mu.Unlock()
}

// RecordSuccess advances the success streak; after 25 consecutive
// successes with no rate-limit event for a minute, the limit grows.
func (l *AdaptiveConcurrencyLimiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.successStreak++
	if l.successStreak < successStreakThreshold {
		return
	}
	if !l.lastRateLimit.IsZero() && l.now().Sub(l.lastRateLimit) < growthCooldown {
		return
	}
	if l.current < l.maxLimit {
		l.current++
		if l.current > l.peakLimit {
			l.peakLimit = l.current
		}
		l.wakeLocked()
	}
	l.successStreak = 0
}

// RecordRateLimited halves the limit (never below min) and resets the
// success streak.
func (l *AdaptiveConcurrencyLimiter) RecordRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastRateLimit = l.now()
	l.successStreak = 0
	l.current /= 2
	if l.current < l.minLimit {
		l.current = l.minLimit
	}
}

// Snapshot returns the current limiter state.
func (l *AdaptiveConcurrencyLimiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		CurrentLimit:  l.current,
		PeakLimit:     l.peakLimit,
		ActiveWorkers: l.active,
		PeakActive:    l.peakActive,
	}
}

// wakeLocked signals one waiter per free slot; woken workers re-check
// capacity under the lock themselves.
func (l *AdaptiveConcurrencyLimiter) wakeLocked() {
	free := l.current - l.active
	for free > 0 && len(l.waiters) > 0 {
		close(l.waiters[0])
		l.waiters = l.waiters[1:]
		free--
	}
}

func (l *AdaptiveConcurrencyLimiter) removeWaiter(target chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range l.waiters {
		if w == target {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}
