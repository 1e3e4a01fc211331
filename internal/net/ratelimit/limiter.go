// Package ratelimit spaces out listing page requests per provider.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per provider. Each bucket has burst 1 so
// consecutive Wait calls for the same provider are at least interval apart.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	interval map[string]time.Duration
}

// NewLimiter creates an empty limiter; providers are registered lazily.
func NewLimiter() *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		interval: make(map[string]time.Duration),
	}
}

// SetInterval sets the minimum spacing between requests for provider.
// A zero interval disables throttling for it.
func (l *Limiter) SetInterval(provider string, interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.interval[provider] = interval
	if limiter, ok := l.limiters[provider]; ok {
		limiter.SetLimit(limitFor(interval))
	}
}

// Interval returns the configured spacing for provider.
func (l *Limiter) Interval(provider string) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.interval[provider]
}

func (l *Limiter) getLimiter(provider string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[provider]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[provider]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(limitFor(l.interval[provider]), 1)
	l.limiters[provider] = limiter
	return limiter
}

// Wait blocks until the next request for provider is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, provider string) error {
	return l.getLimiter(provider).Wait(ctx)
}

// Allow reports whether a request for provider may proceed right now.
func (l *Limiter) Allow(provider string) bool {
	return l.getLimiter(provider).Allow()
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}
