package marketdata

import (
	"log"
	"sync"
	"time"
)

// RateLimitGuard is the process-wide circuit breaker for upstream fetching.
// Repeated classified rate-limit errors trip it into a cooldown window during
// which all fetch activity is suspended, not just for the offending symbol.
// Any successful fetch resets the error counter.
type RateLimitGuard struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	consecutiveErrors int
	limited           bool
	backoffUntil      time.Time

	now func() time.Time
}

// GuardStatus is a point-in-time view of the guard state
type GuardStatus struct {
	Limited           bool      `json:"limited"`
	BackoffUntil      time.Time `json:"backoff_until"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
}

// NewRateLimitGuard creates a guard that trips after threshold consecutive
// rate-limit errors and stays tripped for cooldown.
func NewRateLimitGuard(threshold int, cooldown time.Duration) *RateLimitGuard {
	if threshold <= 0 {
		threshold = 3
	}
	return &RateLimitGuard{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether fetching may proceed. A tripped guard whose deadline
// has passed collapses back to clear with the counter reset.
func (g *RateLimitGuard) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.limited {
		return true
	}
	if g.now().Before(g.backoffUntil) {
		return false
	}

	// Cooldown elapsed, recover
	g.limited = false
	g.backoffUntil = time.Time{}
	g.consecutiveErrors = 0
	log.Println("Rate limit cooldown elapsed, resuming quote fetching")
	return true
}

// RecordSuccess resets the consecutive error counter
func (g *RateLimitGuard) RecordSuccess() {
	g.mu.Lock()
	g.consecutiveErrors = 0
	g.mu.Unlock()
}

// RecordRateLimit counts one classified rate-limit error and trips the guard
// once the threshold is reached. Returns true if this call tripped it.
func (g *RateLimitGuard) RecordRateLimit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.limited {
		return false
	}

	g.consecutiveErrors++
	if g.consecutiveErrors < g.threshold {
		return false
	}

	g.limited = true
	g.backoffUntil = g.now().Add(g.cooldown)
	log.Printf("Upstream rate limit tripped after %d consecutive errors, suspending fetches until %s",
		g.consecutiveErrors, g.backoffUntil.Format(time.RFC3339))
	return true
}

// Status returns the current guard state
func (g *RateLimitGuard) Status() GuardStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GuardStatus{
		Limited:           g.limited,
		BackoffUntil:      g.backoffUntil,
		ConsecutiveErrors: g.consecutiveErrors,
	}
}
