package notifier

import (
	"sync"
	"time"
)

// RateLimitConfig bounds how many deliveries may leave per time window.
type RateLimitConfig struct {
	MaxPerWindow int
	Window       time.Duration
	Enabled      bool
}

// DefaultRateLimitConfig allows 10 deliveries per minute.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow: 10,
		Window:       time.Minute,
		Enabled:      true,
	}
}

// RateLimiter is a sliding-window limiter over outbound deliveries. It
// bounds total notification volume regardless of channel so a flapping
// alert cannot flood every receiver.
type RateLimiter struct {
	mu           sync.Mutex
	maxPerWindow int
	window       time.Duration
	sent         []time.Time
	dropped      int64
	enabled      bool
}

// NewRateLimiter creates a limiter from the config, applying defaults for
// non-positive values.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &RateLimiter{
		maxPerWindow: config.MaxPerWindow,
		window:       config.Window,
		sent:         make([]time.Time, 0, config.MaxPerWindow),
		enabled:      config.Enabled,
	}
}

// Allow consumes one delivery slot, or reports false when the window is
// full.
func (r *RateLimiter) Allow() bool {
	if !r.enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.expire(now.Add(-r.window))

	if len(r.sent) >= r.maxPerWindow {
		r.dropped++
		return false
	}
	r.sent = append(r.sent, now)
	return true
}

// expire drops send timestamps older than the cutoff. Caller holds the lock.
func (r *RateLimiter) expire(cutoff time.Time) {
	idx := 0
	for idx < len(r.sent) && r.sent[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		copy(r.sent, r.sent[idx:])
		r.sent = r.sent[:len(r.sent)-idx]
	}
}

// Dropped returns how many deliveries the limiter has refused.
func (r *RateLimiter) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Reset clears the limiter state.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = r.sent[:0]
	r.dropped = 0
}
