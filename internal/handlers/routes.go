package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"php-lambda-launcher/internal/middleware"
)

// RouterConfig holds configuration for setting up routes
type RouterConfig struct {
	Handler           *PHPHandler
	RequestsPerSecond float64
	Burst             int
	SlowThreshold     time.Duration
}

// SetupRoutes installs middleware, the health check and the catch-all bridge
func SetupRoutes(router *gin.Engine, config *RouterConfig) {
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger())
	router.Use(middleware.PerformanceMonitor(config.SlowThreshold))
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())
	if config.RequestsPerSecond > 0 {
		router.Use(middleware.RateLimit(config.RequestsPerSecond, config.Burst))
	}

	router.GET("/_health", config.Handler.Health)

	// Everything else belongs to the PHP application
	router.NoRoute(config.Handler.Serve)
}
