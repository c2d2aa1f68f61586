// Copyright (C) 2025 Depscope (maintainers@depscope.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package control

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for control-dependence operations.
var meter = otel.Meter("depcheck.control")

// Metrics for control-dependence construction.
var (
	analyzeLatency metric.Float64Histogram
	analyzeTotal   metric.Int64Counter
	candidateEdges metric.Int64Histogram
	skippedEdges   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		analyzeLatency, err = meter.Float64Histogram(
			"control_dependence_duration_seconds",
			metric.WithDescription("Duration of control-dependence constructions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		analyzeTotal, err = meter.Int64Counter(
			"control_dependence_total",
			metric.WithDescription("Total number of control-dependence constructions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		candidateEdges, err = meter.Int64Histogram(
			"control_dependence_candidate_edges",
			metric.WithDescription("Number of candidate edges classified per construction"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		skippedEdges, err = meter.Int64Counter(
			"control_dependence_skipped_edges_total",
			metric.WithDescription("Candidate edges skipped for missing ancestors"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordAnalyzeMetrics records metrics for one construction.
func recordAnalyzeMetrics(ctx context.Context, duration time.Duration, candidates, skipped int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))

	analyzeLatency.Record(ctx, duration.Seconds(), attrs)
	analyzeTotal.Add(ctx, 1, attrs)

	if success {
		candidateEdges.Record(ctx, int64(candidates))
		if skipped > 0 {
			skippedEdges.Add(ctx, int64(skipped))
		}
	}
}
