// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package typegraph

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/typegraph/services/typegraph/telemetry"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName names the otelgin server spans.
	ServiceName string

	// RateLimit and RateBurst configure RateLimitMiddleware.
	RateLimit float64
	RateBurst int

	// MaxBodyBytes configures MaxBodyMiddleware. Zero disables the cap.
	MaxBodyBytes int64
}

// RegisterRoutes registers all /v1/typegraph/* endpoints with the router
// group.
//
// Endpoints:
//
//	GET    /v1/typegraph/health
//	GET    /v1/typegraph/queries
//	GET    /v1/typegraph/cache/stats
//	POST   /v1/typegraph/snapshots
//	GET    /v1/typegraph/snapshots
//	GET    /v1/typegraph/snapshots/:id
//	DELETE /v1/typegraph/snapshots/:id
//	GET    /v1/typegraph/snapshots/:id/names
//	GET    /v1/typegraph/snapshots/:id/query/:query
//	GET    /v1/typegraph/snapshots/:id/dot
//	GET    /v1/typegraph/snapshots/:id/facts
//	GET    /v1/typegraph/snapshots/:id/stats
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	tg := rg.Group("/typegraph")
	{
		tg.GET("/health", handlers.HandleHealth)
		tg.GET("/queries", handlers.HandleListQueries)
		tg.GET("/cache/stats", handlers.HandleCacheStats)

		snapshots := tg.Group("/snapshots")
		{
			snapshots.POST("", handlers.HandleCreateSnapshot)
			snapshots.GET("", handlers.HandleListSnapshots)
			snapshots.GET("/:id", handlers.HandleGetSnapshot)
			snapshots.DELETE("/:id", handlers.HandleDeleteSnapshot)
			snapshots.GET("/:id/names", handlers.HandleNames)
			snapshots.GET("/:id/query/:query", handlers.HandleQuery)
			snapshots.GET("/:id/dot", handlers.HandleDot)
			snapshots.GET("/:id/facts", handlers.HandleFacts)
			snapshots.GET("/:id/stats", handlers.HandleStats)
		}
	}
}

// NewRouter builds the gin engine: recovery, tracing, rate limiting, body
// limits, the /v1 API, and /metrics when the Prometheus exporter is active.
func NewRouter(handlers *Handlers, cfg RouterConfig) *gin.Engine {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "typegraph"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))

	if cfg.MaxBodyBytes > 0 {
		router.Use(MaxBodyMiddleware(cfg.MaxBodyBytes))
	}

	if metrics := telemetry.MetricsHandler(); metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	RegisterRoutes(v1, handlers)
	return router
}
