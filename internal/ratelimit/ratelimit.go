package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles actions per key
type Limiter interface {
	Allow(key string) bool
}

// InMemoryLimiter keeps one token bucket per key
type InMemoryLimiter struct {
	keys map[string]*entry
	mu   sync.Mutex
	r    rate.Limit
	b    int
	idle time.Duration
	now  func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewInMemoryLimiter allows requests per window with the given burst.
// NewInMemoryLimiter(5, time.Hour, 3) lets an author submit three highlights
// back to back and then one every twelve minutes.
func NewInMemoryLimiter(requests int, per time.Duration, burst int) *InMemoryLimiter {
	if requests <= 0 {
		requests = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &InMemoryLimiter{
		keys: make(map[string]*entry),
		r:    rate.Every(per / time.Duration(requests)),
		b:    burst,
		idle: per,
		now:  time.Now,
	}
}

// Allow checks if key may perform an action now
func (l *InMemoryLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, exists := l.keys[key]
	if !exists {
		e = &entry{limiter: rate.NewLimiter(l.r, l.b)}
		l.keys[key] = e
	}
	e.lastSeen = now

	return e.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than the window; a dropped key
// starts again with a full burst, which it would have refilled to anyway.
func (l *InMemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, e := range l.keys {
		if now.Sub(e.lastSeen) > l.idle {
			delete(l.keys, key)
			removed++
		}
	}
	return removed
}
