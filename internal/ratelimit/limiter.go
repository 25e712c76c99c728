// Package ratelimit provides per-key token buckets, used to bound how often
// a single client address may query the server.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/GlowingScrewdriver/go-sntp/internal/clock"
)

// Limiter manages one token bucket per key. A bucket holds Requests tokens
// and refills at Requests per Interval.
type Limiter struct {
	clock    clock.Clock
	limit    rate.Limit
	burst    int
	limiters map[string]*entry
	mu       sync.Mutex
}

type entry struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter. requests <= 0 disables limiting.
func NewLimiter(requests int, interval time.Duration, c clock.Clock) *Limiter {
	if c == nil {
		c = &clock.RealClock{}
	}
	l := &Limiter{
		clock:    c,
		burst:    requests,
		limiters: make(map[string]*entry),
	}
	if requests > 0 && interval > 0 {
		l.limit = rate.Every(interval / time.Duration(requests))
	} else {
		l.limit = rate.Inf
	}
	return l
}

// Allow reports whether a request for key may proceed, consuming a token
// if so.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN reports whether n requests for key may proceed.
func (l *Limiter) AllowN(key string, n int) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.bucket.AllowN(now, n)
}

// Reset clears the bucket for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// CleanupExpired removes buckets not used within maxAge.
func (l *Limiter) CleanupExpired(maxAge time.Duration) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > maxAge {
			delete(l.limiters, key)
		}
	}
}

// StartCleanup runs CleanupExpired every interval until ctx is done.
func (l *Limiter) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.CleanupExpired(maxAge)
			}
		}
	}()
}
