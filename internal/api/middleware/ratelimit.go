package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cataloghq/datastore/internal/metrics"
)

// RateLimiter implements token bucket rate limiting keyed by client IP.
// The raw-SQL search endpoint executes untrusted query text on the read
// role, so it gets a much tighter budget than the rest of the API.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewRateLimiter creates a new rate limiter.
//
// Parameters:
//   - rps: Requests per second allowed per client
//   - burst: Number of requests that may be made in quick succession
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// getLimiter gets or creates a rate limiter for the given identifier.
func (rl *RateLimiter) getLimiter(identifier string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[identifier]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[identifier] = limiter
	}
	return limiter
}

// Allow reports whether the identifier may proceed now.
func (rl *RateLimiter) Allow(identifier string) bool {
	return rl.getLimiter(identifier).Allow()
}

// Middleware returns a gin handler enforcing the limit per client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			metrics.HTTPRateLimited.Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
