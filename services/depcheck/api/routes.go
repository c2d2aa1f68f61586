// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all depcheck routes with the router.
//
// Description:
//
//	Registers the /v1/depcheck/* endpoints with the given Gin router
//	group. The group should already carry any required middleware.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/depcheck/analyze - Compute control dependence for a CFG
//	GET  /v1/depcheck/health - Health check
//	GET  /v1/depcheck/ready - Readiness check
//
// Example:
//
//	handlers := api.NewHandlers()
//
//	v1 := router.Group("/v1")
//	api.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	depcheck := rg.Group("/depcheck")
	{
		// Analysis
		depcheck.POST("/analyze", handlers.HandleAnalyze)

		// Health checks
		depcheck.GET("/health", handlers.HandleHealth)
		depcheck.GET("/ready", handlers.HandleReady)
	}
}
