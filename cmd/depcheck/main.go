// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command depcheck starts the Depscope dependence-analysis API server.
//
// Depscope depcheck computes control-dependence graphs for control-flow
// graphs submitted over HTTP, using the post-dominance formulation:
//   - Stateless analyze endpoint (complete CFG in, complete CDG out)
//   - Multi-exit CFG normalization through a synthetic exit
//   - Graphviz DOT rendering of results on request
//
// Usage:
//
//	go run ./cmd/depcheck
//	go run ./cmd/depcheck -port 9090
//
// With telemetry disabled (no OTLP collector running):
//
//	OTEL_TRACES_EXPORTER=none go run ./cmd/depcheck
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/depcheck/health
//
//	# Analyze an if-then-else
//	curl -X POST http://localhost:8080/v1/depcheck/analyze \
//	  -H "Content-Type: application/json" \
//	  -d '{"name": "branch", "nodes": [{"id": "cond"}, {"id": "then"},
//	       {"id": "else"}, {"id": "merge"}],
//	       "edges": [{"from": "cond", "to": "then"},
//	                 {"from": "cond", "to": "else"},
//	                 {"from": "then", "to": "merge"},
//	                 {"from": "else", "to": "merge"}]}'
//
//	# Prometheus metrics
//	curl http://localhost:8080/metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/depscope/depscope/services/depcheck/api"
	"github.com/depscope/depscope/services/depcheck/telemetry"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	// Set Gin mode
	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize telemetry before anything emits spans or metrics
	shutdown, err := telemetry.Init(context.Background(), telemetry.DefaultConfig())
	if err != nil {
		slog.Error("Failed to initialize telemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("Telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	// Create handlers
	handlers := api.NewHandlers()

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("depcheck"))
	if *debug {
		router.Use(gin.Logger())
	}

	// Register routes under /v1/depcheck
	v1 := router.Group("/v1")
	api.RegisterRoutes(v1, handlers)

	// Prometheus scrape endpoint, when the exporter is enabled
	if metricsHandler := telemetry.MetricsHandler(); metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	printBanner(*port)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down depcheck server")
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("Telemetry shutdown", slog.String("error", err.Error()))
		}
		os.Exit(0)
	}()

	// Start server
	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting depcheck server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// printBanner prints the startup banner.
func printBanner(port int) {
	fmt.Printf(`
Depscope depcheck
  analyze:  POST http://localhost:%d/v1/depcheck/analyze
  health:   GET  http://localhost:%d/v1/depcheck/health
  metrics:  GET  http://localhost:%d/metrics

`, port, port, port)
}
