package router

import (
	"strings"

	"github.com/gin-gonic/gin"

	"llmgateway/internal/config"
	"llmgateway/internal/handler"
	"llmgateway/internal/middleware"
)

func Setup(cfg *config.Config, completionHandler *handler.CompletionHandler, adminHandler *handler.AdminHandler) *gin.Engine {
	r := gin.Default()

	allowedOrigins := strings.Split(cfg.CORSAllowedOrigins, ",")
	if len(allowedOrigins) == 0 || allowedOrigins[0] == "" {
		allowedOrigins = []string{"*"}
	}

	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, o := range allowedOrigins {
			o = strings.TrimSpace(o)
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
		} else if allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Api-Key")
		c.Header("Vary", "Origin")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	auth := middleware.GatewayKeyAuth(cfg.GatewayKeyHash)

	r.GET("/health", adminHandler.Health)

	v1 := r.Group("/v1", rateLimiter.RateLimitByIP(), auth)
	{
		v1.POST("/completions", completionHandler.Complete)
	}

	api := r.Group("/api", auth)
	{
		api.GET("/failover-events", adminHandler.ListFailoverEvents)
		api.GET("/rankings", adminHandler.ListRankings)
		api.POST("/rankings/recalculate", adminHandler.RecalculateRankings)
		api.GET("/usage", adminHandler.ListUsage)
		api.PUT("/models/:id/quality", adminHandler.SetQualityScore)
	}

	return r
}
