package magiclink

import (
	"sync"
	"time"
)

// rateLimiter is a keyed sliding-window limiter. Keys whose window is empty are dropped.
type rateLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	limit  int
	window time.Duration
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	return &rateLimiter{
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// allow records an event for key at now, or reports how long until the oldest one leaves the window.
// A nil limiter allows everything.
func (r *rateLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	if r == nil {
		return true, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cut := now.Add(-r.window)
	prev := r.events[key]
	dst := prev[:0]
	for _, t := range prev {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}

	if len(dst) >= r.limit {
		r.events[key] = dst
		return false, dst[0].Sub(cut)
	}
	r.events[key] = append(dst, now)

	// Opportunistic sweep keeps the map bounded by active keys.
	if len(r.events) > 1024 {
		for k, ev := range r.events {
			if len(ev) == 0 || !ev[len(ev)-1].After(cut) {
				delete(r.events, k)
			}
		}
	}
	return true, 0
}
