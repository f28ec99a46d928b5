// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("platerecon.cache")

// Cache levels used as the "level" attribute.
const (
	levelTree  = "tree"
	levelGraph = "graph"
)

var (
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	cacheBuilds    metric.Int64Counter
	cacheEvictions metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		if cacheHits, err = meter.Int64Counter("recon_cache_hits_total",
			metric.WithDescription("Cache lookups that found an entry")); err != nil {
			metricsErr = err
			return
		}
		if cacheMisses, err = meter.Int64Counter("recon_cache_misses_total",
			metric.WithDescription("Cache lookups that found nothing")); err != nil {
			metricsErr = err
			return
		}
		if cacheBuilds, err = meter.Int64Counter("recon_cache_builds_total",
			metric.WithDescription("Graphs loaded or trees built on a cache miss")); err != nil {
			metricsErr = err
			return
		}
		if cacheEvictions, err = meter.Int64Counter("recon_cache_evictions_total",
			metric.WithDescription("Entries evicted for capacity")); err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func levelAttr(level string) metric.AddOption {
	return metric.WithAttributes(attribute.String("level", level))
}

func recordHit(ctx context.Context, level string) {
	if initMetrics() == nil {
		cacheHits.Add(ctx, 1, levelAttr(level))
	}
}

func recordMiss(ctx context.Context, level string) {
	if initMetrics() == nil {
		cacheMisses.Add(ctx, 1, levelAttr(level))
	}
}

func recordBuild(ctx context.Context, level string) {
	if initMetrics() == nil {
		cacheBuilds.Add(ctx, 1, levelAttr(level))
	}
}

func recordEviction(level string) {
	if initMetrics() == nil {
		cacheEvictions.Add(context.Background(), 1, levelAttr(level))
	}
}
