// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for graph operations.
var (
	tracer = otel.Tracer("platerecon.graph")
	meter  = otel.Meter("platerecon.graph")
)

// Metrics for tree building and pole loading.
var (
	treeBuildLatency metric.Float64Histogram
	treeBuildTotal   metric.Int64Counter
	platesIndexed    metric.Int64Histogram
	crossOverTotal   metric.Int64Counter
	duplicateTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		treeBuildLatency, err = meter.Float64Histogram(
			"recon_tree_build_duration_seconds",
			metric.WithDescription("Duration of reconstruction tree builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		treeBuildTotal, err = meter.Int64Counter(
			"recon_tree_build_total",
			metric.WithDescription("Total number of reconstruction tree builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		platesIndexed, err = meter.Int64Histogram(
			"recon_tree_plates_indexed",
			metric.WithDescription("Number of plates reachable per tree build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		crossOverTotal, err = meter.Int64Counter(
			"recon_tree_cross_overs_total",
			metric.WithDescription("Edges discarded as cross-overs during tree builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		duplicateTotal, err = meter.Int64Counter(
			"recon_graph_duplicate_poles_total",
			metric.WithDescription("Poles rejected because the plate pair was already linked"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a tree build.
func recordBuildMetrics(ctx context.Context, duration time.Duration, stats BuildStats, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))

	treeBuildLatency.Record(ctx, duration.Seconds(), attrs)
	treeBuildTotal.Add(ctx, 1, attrs)

	if success {
		platesIndexed.Record(ctx, int64(stats.IndexedPlates))
		if stats.CrossOvers > 0 {
			crossOverTotal.Add(ctx, int64(stats.CrossOvers))
		}
	}
}

// recordDuplicatePole counts a rejected duplicate pole.
func recordDuplicatePole(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	duplicateTotal.Add(ctx, 1)
}

// startBuildSpan creates a span for a tree build.
func startBuildSpan(ctx context.Context, root PlateID, edgeCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Tree.Build",
		trace.WithAttributes(
			attribute.Int64("recon.root", int64(root)),
			attribute.Int("recon.edge_count", edgeCount),
		),
	)
}

// setBuildSpanResult sets the result attributes on a build span.
func setBuildSpanResult(span trace.Span, stats BuildStats) {
	span.SetAttributes(
		attribute.Int("recon.rootmost_edges", stats.RootmostEdges),
		attribute.Int("recon.indexed_plates", stats.IndexedPlates),
		attribute.Int("recon.cross_overs", stats.CrossOvers),
	)
}
