package authapi

import (
	"sync"
	"time"
)

// ipThrottle is a per-IP sliding-window limiter for login attempts.
// Entries for idle IPs are dropped once their window empties.
type ipThrottle struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	byIP   map[string][]time.Time
}

func newIPThrottle(limit int, window time.Duration) *ipThrottle {
	if limit <= 0 {
		limit = 20
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &ipThrottle{
		limit:  limit,
		window: window,
		byIP:   make(map[string][]time.Time),
	}
}

// Allow reports whether an attempt from ip at time "now" should proceed.
// An empty ip (unparseable remote address) is never throttled here; the
// credential check still gates it.
func (t *ipThrottle) Allow(ip string, now time.Time) bool {
	if ip == "" {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cut := now.Add(-t.window)
	events := t.byIP[ip][:0]
	for _, at := range t.byIP[ip] {
		if at.After(cut) {
			events = append(events, at)
		}
	}

	if len(events) >= t.limit {
		t.byIP[ip] = events
		return false
	}

	t.byIP[ip] = append(events, now)
	return true
}
