package limiter

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// Backoff shape for the per-host rate limiter.
const (
	baseBackoff = time.Second
	maxBackoff  = 5 * time.Minute
)

// AdaptiveRateLimiter tracks consecutive 429s per host and imposes an
// exponential backoff delay before the next request to that host. A
// success decays the host's counter toward zero.
type AdaptiveRateLimiter struct {
	mu    sync.Mutex
	hosts map[string]*hostState

	sleep func(ctx context.Context, d time.Duration) error
}

type hostState struct {
	consecutive429 int
	blockedUntil   time.Time
}

// NewAdaptiveRateLimiter creates an empty per-host limiter.
func NewAdaptiveRateLimiter() *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		hosts: make(map[string]*hostState),
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the host's current backoff window has passed.
func (r *AdaptiveRateLimiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)

	r.mu.Lock()
	state := r.hosts[host]
	var delay time.Duration
	if state != nil {
		delay = time.Until(state.blockedUntil)
	}
	r.mu.Unlock()

	return r.sleep(ctx, delay)
}

// RecordRateLimited bumps the host's 429 counter and extends its
// backoff window exponentially.
func (r *AdaptiveRateLimiter) RecordRateLimited(rawURL string) time.Duration {
	host := hostOf(rawURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.hosts[host]
	if state == nil {
		state = &hostState{}
		r.hosts[host] = state
	}
	state.consecutive429++

	delay := baseBackoff << (state.consecutive429 - 1)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	state.blockedUntil = time.Now().Add(delay)
	return delay
}

// RecordSuccess decays the host's counter toward zero.
func (r *AdaptiveRateLimiter) RecordSuccess(rawURL string) {
	host := hostOf(rawURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.hosts[host]
	if state == nil {
		return
	}
	if state.consecutive429 > 0 {
		state.consecutive429--
	}
	if state.consecutive429 == 0 {
		delete(r.hosts, host)
	}
}

// Backoff returns the host's current consecutive-429 count, for status
// reporting.
func (r *AdaptiveRateLimiter) Backoff(rawURL string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state := r.hosts[hostOf(rawURL)]; state != nil {
		return state.consecutive429
	}
	return 0
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return rawURL
}
