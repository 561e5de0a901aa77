// rate_limiter.go - Token bucket limiter guarding remote engine calls

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a simple token bucket. One token is consumed per remote
// engine call; tokens refill at a fixed interval up to the bucket size.
type Limiter struct {
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	mu         sync.Mutex
}

// New creates a limiter with the given bucket size and refill interval.
func New(maxTokens int, refillRate time.Duration) *Limiter {
	return &Limiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or the context is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refill()
		if l.tokens > 0 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// refill adds tokens for the time elapsed since the last refill.
// Caller holds the mutex.
func (l *Limiter) refill() {
	now := time.Now()
	added := int(now.Sub(l.lastRefill) / l.refillRate)
	if added > 0 {
		l.tokens += added
		if l.tokens > l.maxTokens {
			l.tokens = l.maxTokens
		}
		l.lastRefill = now
	}
}
