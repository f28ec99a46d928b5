// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recon

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers all reconstruction routes with the router.
//
// Description:
//
//	Registers the /v1/recon/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Endpoints:
//
//	POST /v1/recon/reconstruct/point - Reconstruct a point
//	POST /v1/recon/reconstruct/polyline - Reconstruct a polyline
//	GET  /v1/recon/tree - Describe a reconstruction tree
//	GET  /v1/recon/models - List loaded models
//	GET  /v1/recon/health - Health check
//
// Example:
//
//	svc := recon.NewService(recon.DefaultServiceConfig())
//	v1 := router.Group("/v1")
//	recon.RegisterRoutes(v1, recon.NewHandlers(svc, logger))
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	r := rg.Group("/recon")
	{
		reconstruct := r.Group("/reconstruct")
		{
			reconstruct.POST("/point", handlers.HandleReconstructPoint)
			reconstruct.POST("/polyline", handlers.HandleReconstructPolyline)
		}

		r.GET("/tree", handlers.HandleTree)
		r.GET("/models", handlers.HandleModels)
		r.GET("/health", handlers.HandleHealth)
	}
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// ServiceName names the otelgin spans.
	ServiceName string

	// RateLimit is requests per second per client IP. 0 disables.
	RateLimit float64
	RateBurst int

	// MetricsHandler serves /metrics. Nil uses promhttp.Handler().
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(svc *Service, opts RouterOptions) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "platerecon"
	}
	metrics := opts.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(Metrics())

	limiter := NewRateLimiter(opts.RateLimit, opts.RateBurst)
	v1 := router.Group("/v1", limiter.Middleware())
	RegisterRoutes(v1, NewHandlers(svc, opts.Logger))

	router.GET("/metrics", gin.WrapH(metrics))
	return router
}
