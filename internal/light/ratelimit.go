package light

import (
	"sync"
	"time"
)

// RateLimiter spaces out periodic decisions per light location
type RateLimiter struct {
	mu           sync.Mutex
	lastDecision map[string]time.Time
	minInterval  time.Duration
	now          func() time.Time
}

// NewRateLimiter creates a rate limiter allowing one decision per minInterval.
// A nil clock uses time.Now.
func NewRateLimiter(minInterval time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		lastDecision: make(map[string]time.Time),
		minInterval:  minInterval,
		now:          now,
	}
}

// ShouldMakeDecision reports whether enough time has passed since the last
// decision for location, recording a new decision when it has
func (rl *RateLimiter) ShouldMakeDecision(location string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if last, exists := rl.lastDecision[location]; exists && now.Sub(last) < rl.minInterval {
		return false
	}

	rl.lastDecision[location] = now
	return true
}

// RecordDecision records a decision made outside the limiter, such as one
// forced by a new submission
func (rl *RateLimiter) RecordDecision(location string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lastDecision[location] = rl.now()
}

// LastDecisionTime returns when the last decision was made for a location
func (rl *RateLimiter) LastDecisionTime(location string) (time.Time, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	last, exists := rl.lastDecision[location]
	return last, exists
}
