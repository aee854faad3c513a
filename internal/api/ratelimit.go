package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// clientRateLimiter keeps one token bucket per key. Keys are admin client
// names, a small fixed set, so buckets are never evicted.
type clientRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newClientRateLimiter(rps float64, burst int) *clientRateLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst < 1 {
		burst = 1
	}
	return &clientRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether a request for key may proceed now
func (l *clientRateLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

func (l *clientRateLimiter) limiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok = l.limiters[key]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.limit, l.burst)
	l.limiters[key] = limiter
	return limiter
}
