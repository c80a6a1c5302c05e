package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/memecoin-radar/internal/config"
	"github.com/rawblock/memecoin-radar/internal/orchestrator"
	"github.com/rawblock/memecoin-radar/pkg/models"
)

// APIHandler serves the read-only radar views plus the admin config endpoint.
type APIHandler struct {
	orch        *orchestrator.Orchestrator
	configStore *config.Store
}

// SetupRouter builds the full gin.Engine: CORS, public read endpoints, the
// websocket stream, and the auth+rate-limited admin config endpoint.
func SetupRouter(orch *orchestrator.Orchestrator, configStore *config.Store) *gin.Engine {
	cfg := configStore.Get()
	gin.SetMode(cfg.GinMode)
	r := gin.Default()

	r.Use(corsMiddleware(configStore))

	handler := &APIHandler{orch: orch, configStore: configStore}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", HandleStream(orch))
		pub.GET("/hotlist", handler.handleHotlist)
		pub.GET("/hotlist/top", handler.handleHotlistTop)
		pub.GET("/leaderboards", handler.handleLeaderboards)
		pub.GET("/leaderboards/:category", handler.handleLeaderboard)
		pub.GET("/token/:chain/:address", handler.handleToken)
		pub.GET("/alerts/recent", handler.handleRecentAlerts)
		pub.POST("/webhooks/cex-listing", handler.handleCEXListingWebhook)
	}

	admin := r.Group("/api/v1/admin")
	admin.Use(AuthMiddleware(configStore))
	admin.Use(RateLimitMiddleware(NewRateLimiter(30, 5)))
	{
		admin.GET("/config", handler.handleGetConfig)
		admin.PUT("/config", handler.handlePutConfig)
	}

	return r
}

// corsMiddleware mirrors the allow-list-or-wildcard CORS policy the active
// config snapshot carries in AllowedOrigins.
func corsMiddleware(configStore *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed := configStore.Get().AllowedOrigins
		origin := c.Request.Header.Get("Origin")
		switch {
		case len(allowed) == 0:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		default:
			for _, a := range allowed {
				if strings.TrimSpace(a) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	report := h.orch.Health()
	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *APIHandler) handleHotlist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.orch.Hotlist()})
}

func (h *APIHandler) handleHotlistTop(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.orch.HotlistTop()})
}

func (h *APIHandler) handleLeaderboards(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.orch.Leaderboards()})
}

func (h *APIHandler) handleLeaderboard(c *gin.Context) {
	category := models.LeaderboardCategory(c.Param("category"))
	tokens, ok := h.orch.Leaderboard(category)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown leaderboard category"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category, "data": tokens})
}

func (h *APIHandler) handleToken(c *gin.Context) {
	chain := models.ChainId(c.Param("chain"))
	address := c.Param("address")
	if !chain.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown chain"})
		return
	}
	summary, ok := h.orch.Token(chain, address)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *APIHandler) handleRecentAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	c.JSON(http.StatusOK, gin.H{"data": h.orch.Alerts().RecentAlerts(limit)})
}

// handleCEXListingWebhook lets an out-of-process Sentinel deployment push a
// CEXListingEvent directly into the Orchestrator, bypassing the in-process
// channel wiring cmd/radar sets up by default.
func (h *APIHandler) handleCEXListingWebhook(c *gin.Context) {
	var ev models.CEXListingEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	h.orch.IngestListing(c.Request.Context(), ev)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *APIHandler) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.configStore.Get())
}

// handlePutConfig accepts a partial threshold/cadence/gate override and
// swaps it in atomically. Identifying connection fields (ports, auth token,
// database/redis URLs) are intentionally not editable at runtime — those
// require a restart.
func (h *APIHandler) handlePutConfig(c *gin.Context) {
	var req struct {
		Thresholds *config.Thresholds   `json:"thresholds"`
		Cadences   *config.Cadences     `json:"cadences"`
		Gates      *config.FeatureGates `json:"gates"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	next := h.configStore.Get()
	if req.Thresholds != nil {
		next.Thresholds = *req.Thresholds
	}
	if req.Cadences != nil {
		next.Cadences = *req.Cadences
	}
	if req.Gates != nil {
		next.Gates = *req.Gates
	}
	h.configStore.Swap(next)

	c.JSON(http.StatusOK, next)
}
