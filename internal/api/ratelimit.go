package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/memecoin-radar/internal/ratelimit"
)

// NewRateLimiter builds the admin API's per-client-IP limiter on top of the
// same token-bucket implementation internal/httpfetch uses to pace outbound
// calls per upstream source — here keyed by caller IP instead of source
// name, at a rate derived from the admin endpoint's own allowance rather
// than a published upstream limit.
func NewRateLimiter(ratePerMin, burst int) *ratelimit.Limiter {
	return ratelimit.NewWithDefault(ratelimit.Config{
		RatePerSec: float64(ratePerMin) / 60.0,
		Burst:      float64(burst),
	})
}

// RateLimitMiddleware returns a Gin handler that rejects requests beyond
// limiter's per-IP allowance with a 429 carrying the radar's admin-API error
// shape, distinct from the auth and validation error bodies this same group
// of routes can return.
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter := limiter.AllowRetry(c.ClientIP())
		if !allowed {
			c.Header("Retry-After", retryAfter.String())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "admin_rate_limit_exceeded",
				"retryAfter": retryAfter.String(),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
