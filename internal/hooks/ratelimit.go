package hooks

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	bucketRate  = 60 // events per second
	bucketBurst = 60
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sourceLimiter rate-limits hook posts per remote source so one misfiring
// hook script cannot starve the rest.
type sourceLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func newSourceLimiter() *sourceLimiter {
	return &sourceLimiter{buckets: make(map[string]*bucket)}
}

// allow reports whether source may post another event now.
func (l *sourceLimiter) allow(source string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[source]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(bucketRate), bucketBurst)}
		l.buckets[source] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow()
}

// prune evicts buckets idle longer than maxIdle. Called by the maintenance
// sweeper.
func (l *sourceLimiter) prune(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for source, b := range l.buckets {
		if time.Since(b.lastSeen) > maxIdle {
			delete(l.buckets, source)
			n++
		}
	}
	return n
}
