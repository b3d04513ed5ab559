package realtime

import (
	"sync"
	"time"
)

// RateLimiter bounds how many envelopes one transport may submit inside a
// sliding window. Every connection owns its own limiter, so a chatty
// client only ever throttles itself.
type RateLimiter struct {
	mu     sync.Mutex
	stamps []time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter falls back to the package defaults on non-positive inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		stamps: make([]time.Time, 0, limit),
		limit:  limit,
		window: window,
	}
}

// Allow records an event at now and reports whether it fits the window.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Stamps are appended in order, so everything up to the first one
	// still inside the window can be dropped in one slice move.
	cut := now.Add(-r.window)
	stale := 0
	for stale < len(r.stamps) && !r.stamps[stale].After(cut) {
		stale++
	}
	r.stamps = append(r.stamps[:0], r.stamps[stale:]...)

	if len(r.stamps) >= r.limit {
		return false
	}
	r.stamps = append(r.stamps, now)
	return true
}
