package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/distill/api/handler"
	"github.com/use-agent/distill/api/middleware"
	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/pipeline"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is outside auth so monitoring probes always work.
// Background middleware work stops when ctx is done.
func NewRouter(ctx context.Context, p *pipeline.Pipeline, cfg *config.Config, startTime time.Time) *gin.Engine {
	return newRouter(ctx, p, p.ProviderName(), cfg, startTime)
}

func newRouter(ctx context.Context, runner handler.Runner, provider string, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health, no auth.
	v1.GET("/health", handler.Health(provider, cfg.LLM.Model, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	protected.POST("/runs", handler.Run(runner))

	return r
}
