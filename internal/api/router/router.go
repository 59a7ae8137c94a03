package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/telefile/telefile/internal/api/handlers"
	"github.com/telefile/telefile/internal/api/middleware"
	"github.com/telefile/telefile/internal/config"
)

type Router struct {
	engine *gin.Engine
	config *config.Config
}

func NewRouter(cfg *config.Config, healthHandler *handlers.HealthHandler, statsHandler *handlers.StatsHandler) *Router {
	// Set Gin mode
	if cfg.Server.Host == "0.0.0.0" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Add middleware
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationIDMiddleware())

	// Health endpoints
	health := engine.Group("/")
	{
		health.GET("/health", healthHandler.Health)
		health.GET("/ready", healthHandler.Readiness)
		health.GET("/live", healthHandler.Liveness)
	}

	engine.GET("/stats", statsHandler.Stats)

	return &Router{
		engine: engine,
		config: cfg,
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Server builds the HTTP server for the ops endpoints. The caller owns its
// lifecycle.
func (r *Router) Server() *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf("%s:%s", r.config.Server.Host, r.config.Server.Port),
		Handler: r.engine,
	}
}
