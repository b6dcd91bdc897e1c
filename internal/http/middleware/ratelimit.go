// Package middleware contains the Gin middleware of the local inventory API.
//
// This file implements a per-client token-bucket limiter on x/time/rate.
// Buckets are keyed by KeyFunc (client IP by default) and swept when idle.
// With WritesOnly, reads pass untouched; requests marked as idempotent
// replays by IdempotencyValidator bypass the limiter. Rejections answer 429
// with a Retry-After header.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc maps a request to the identity of its token bucket.
type KeyFunc func(*gin.Context) string

// KeyByClientIP buckets requests per client address.
func KeyByClientIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

// RateLimitOptions configures RateLimiter.
type RateLimitOptions struct {
	RPS   float64
	Burst int
	Key   KeyFunc
	// WritesOnly exempts GET, HEAD and OPTIONS. Reads are served locally and
	// cheap; writes may fan out into remote calls.
	WritesOnly bool
	// IdleTTL evicts buckets not seen for this long. Defaults to 10m.
	IdleTTL time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-key token-bucket limiter over x/time/rate. It is safe
// for concurrent use.
type RateLimiter struct {
	opts RateLimitOptions

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups uint64
}

// NewRateLimiter builds a limiter; burst values <= 0 become 1.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Key == nil {
		opts.Key = KeyByClientIP()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{opts: opts, buckets: make(map[string]*bucket)}
}

// limiter returns the bucket of key. Idle buckets are swept every 1000
// lookups, before the requested one is refreshed.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= 1000 {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.opts.IdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(rl.opts.RPS), rl.opts.Burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// IsRateBypass reports whether IdempotencyValidator exempted the request.
func IsRateBypass(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyRateBypass)
	b, _ := v.(bool)
	return b
}

// Handler enforces the limits, answering 429 with Retry-After when a bucket
// is empty.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || (rl.opts.WritesOnly && safeMethod(c.Request.Method)) {
			c.Next()
			return
		}
		if rl.limiter(rl.opts.Key(c), time.Now()).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}
