package frontend

import (
	"sync"
	"time"
)

// DefaultRateLimitWindow is the width of a session's fixed rate-limit window.
const DefaultRateLimitWindow = 60 * time.Second

// DefaultRateLimitCap is the number of requests allowed per window.
const DefaultRateLimitCap = 2000

// RateLimiter enforces a fixed, per-session request cap: a window opens on
// first use and every request within it counts against Cap; once the window
// elapses the counter resets rather than tokens trickling back in. This
// mirrors the counter-and-cleanup shape of the DNS server's token bucket
// limiter but as a single fixed window, matching the subscription-unlimited
// semantics the connection hello frame advertises.
type RateLimiter struct {
	cap    int
	window time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// NewRateLimiter returns a RateLimiter with defaults applied where unset.
func NewRateLimiter(requestCap int, window time.Duration) *RateLimiter {
	if requestCap <= 0 {
		requestCap = DefaultRateLimitCap
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &RateLimiter{cap: requestCap, window: window}
}

// Allow reports whether another request may proceed right now, implementing
// session.Limiter.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if r.windowStart.IsZero() || now.Sub(r.windowStart) >= r.window {
		r.windowStart = now
		r.count = 0
	}
	if r.count >= r.cap {
		return false
	}
	r.count++
	return true
}

// ResetAt returns when the current window resets, for the rate-limit error
// frame's reset field. Returns the zero time before first use.
func (r *RateLimiter) ResetAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.windowStart.IsZero() {
		return time.Time{}
	}
	return r.windowStart.Add(r.window)
}
