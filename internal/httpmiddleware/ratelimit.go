// Package httpmiddleware holds gin middleware shared by the API server.
package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// SimpleTokenBucket rate-limits requests per client IP. Buckets refill at
// perMinute and hold at most burst tokens, so a station uploading a batch of
// queued scans after an outage is not throttled to the steady-state rate.
// In-memory; a multi-replica deployment needs a Redis variant instead.
type SimpleTokenBucket struct {
	burst  int
	rate   int
	exempt map[string]struct{}

	mu    sync.Mutex
	state map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// idleEvictAfter is how long a client may be silent before its bucket is
// dropped. Full again on return, which is the refill ceiling anyway.
const idleEvictAfter = 10 * time.Minute

// NewSimpleTokenBucket creates a limiter refilling at perMinute with burst
// headroom. burst <= 0 defaults to perMinute.
func NewSimpleTokenBucket(perMinute, burst int) *SimpleTokenBucket {
	if burst <= 0 {
		burst = perMinute
	}
	return &SimpleTokenBucket{
		burst:  burst,
		rate:   perMinute,
		exempt: make(map[string]struct{}),
		state:  make(map[string]*bucket),
	}
}

// Exempt excludes paths (probes, scrapers) from limiting.
func (l *SimpleTokenBucket) Exempt(paths ...string) *SimpleTokenBucket {
	for _, p := range paths {
		l.exempt[p] = struct{}{}
	}
	return l
}

// GinMiddleware returns a gin handler enforcing the per-IP limit.
func (l *SimpleTokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := l.exempt[c.FullPath()]; ok {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *SimpleTokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	b, ok := l.state[key]
	if !ok {
		l.evictIdle(now)
		b = &bucket{tokens: l.burst - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// evictIdle drops buckets silent past the eviction window. Caller holds mu;
// runs only when a new client shows up, so steady traffic pays nothing.
func (l *SimpleTokenBucket) evictIdle(now time.Time) {
	if len(l.state) < 256 {
		return
	}
	for key, b := range l.state {
		if now.Sub(b.last) > idleEvictAfter {
			delete(l.state, key)
		}
	}
}
