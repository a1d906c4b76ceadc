package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/good-yellow-bee/flare/internal/models"
)

// originLimiterTTL is how long an idle origin's limiter is kept before its
// state is discarded.
const originLimiterTTL = 30 * time.Minute

// RateLimiter throttles receipts per origin. Each origin gets its own token
// bucket; idle buckets are evicted so the map does not grow without bound.
type RateLimiter struct {
	Base
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*originLimiter
}

type originLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows limit receipts per second per origin with the given
// burst.
func NewRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*originLimiter),
	}
}

func (p *RateLimiter) Name() string { return "ratelimit" }

func (p *RateLimiter) PreReceive(ctx context.Context, a *models.Alert) (*models.Alert, error) {
	if !p.allow(a.Origin, time.Now()) {
		return nil, &RateLimitError{Reason: fmt.Sprintf("too many alerts from origin %q", a.Origin)}
	}
	return a, nil
}

func (p *RateLimiter) allow(origin string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ol, ok := p.limiters[origin]
	if !ok {
		ol = &originLimiter{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.limiters[origin] = ol
	}
	ol.lastSeen = now

	for key, other := range p.limiters {
		if key != origin && now.Sub(other.lastSeen) > originLimiterTTL {
			delete(p.limiters, key)
		}
	}
	return ol.limiter.AllowN(now, 1)
}
