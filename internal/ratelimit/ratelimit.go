package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter implements token bucket rate limiting per key.
// Keys without an explicit configuration share the default rate and burst.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit // tokens per second
	burst   int
}

// New creates a new Limiter. A non-positive perSecond disables throttling.
func New(perSecond float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   toLimit(perSecond),
		burst:   max(burst, 1),
	}
}

// Configure sets the rate and burst for a single key, replacing any bucket
// already created for it.
func (l *Limiter) Configure(key string, perSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buckets[key] = rate.NewLimiter(toLimit(perSecond), max(burst, 1))
}

// Allow reports whether a request for the given key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Wait blocks until a token for the key is available or ctx is done.
// It fails fast when the wait would outlast the context deadline.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.bucket(key).Wait(ctx)
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}

func toLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}
