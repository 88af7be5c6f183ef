package services

import (
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between sends within one chat
// session. Purely local state; not shared across devices.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	lastSend time.Time
}

// NewRateLimiter creates a rate limiter with the given minimum interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// CheckAndRecord reports whether a send at the given instant is allowed.
// An allowed send records the instant; a denied one leaves state untouched.
func (l *RateLimiter) CheckAndRecord(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lastSend.IsZero() && now.Sub(l.lastSend) < l.interval {
		return false
	}
	l.lastSend = now
	return true
}
