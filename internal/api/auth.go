package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/memecoin-radar/internal/config"
	"github.com/rawblock/memecoin-radar/internal/obs"
)

// ──────────────────────────────────────────────────────────────────
// Bearer Token Authentication Middleware
//
// Reads API_AUTH_TOKEN (via config.Store) at request time. If set, all
// protected routes require: Authorization: Bearer <token>
//
// Public read endpoints (hotlist, leaderboard, stream, health) are excluded;
// only the admin config endpoint sits behind this middleware.
// ──────────────────────────────────────────────────────────────────

// AuthMiddleware returns a Gin middleware that validates bearer tokens
// against the currently active config snapshot. If no token is configured,
// all requests are allowed (dev mode).
func AuthMiddleware(configStore *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := configStore.Get()
		token := cfg.APIAuthToken

		if token == "" {
			if cfg.GinMode == "release" {
				obs.Component("api").Warn().Msg("API_AUTH_TOKEN unset in release mode; admin endpoints are unauthenticated")
			}
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing Authorization header",
				"hint":  "Use: Authorization: Bearer <API_AUTH_TOKEN>",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid Authorization header format"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
