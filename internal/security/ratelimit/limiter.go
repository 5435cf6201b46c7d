package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aryan0dhankhar/tenantcore/internal/observability/metrics"
)

// staleAfter is how long an idle tenant bucket is kept.
const staleAfter = 15 * time.Minute

// Limiter is a per-tenant token bucket. Each tenant may burst up to perMinute requests
// and refills at perMinute per minute.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	now       func() time.Time
	cleanup   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter starts a limiter. perMinute <= 0 disables limiting.
func NewLimiter(perMinute int) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		now:     time.Now,
		cleanup: time.NewTicker(5 * time.Minute),
		done:    make(chan struct{}),
	}
	go l.cleanupOldBuckets()
	return l
}

// Allow reports whether tenantID may make another request. Requests without a tenant
// are not limited.
func (l *Limiter) Allow(tenantID string) bool {
	if tenantID == "" || l.burst <= 0 {
		return true
	}
	l.mu.Lock()
	now := l.now()
	b, ok := l.buckets[tenantID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[tenantID] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	if !b.limiter.AllowN(now, 1) {
		metrics.ObserveRateLimited(tenantID)
		return false
	}
	return true
}

func (l *Limiter) cleanupOldBuckets() {
	for {
		select {
		case <-l.cleanup.C:
			l.evictStale()
		case <-l.done:
			return
		}
	}
}

func (l *Limiter) evictStale() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	threshold := l.now().Add(-staleAfter)
	evicted := 0
	for tenantID, b := range l.buckets {
		if b.lastSeen.Before(threshold) {
			delete(l.buckets, tenantID)
			evicted++
		}
	}
	return evicted
}

func (l *Limiter) Stop() {
	l.closeOnce.Do(func() {
		l.cleanup.Stop()
		close(l.done)
	})
}
