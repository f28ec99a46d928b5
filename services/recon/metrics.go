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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_http_requests_total",
		Help: "Total HTTP requests by route and status code",
	}, []string{"route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "recon_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"route"})

	reconstructionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_reconstructions_total",
		Help: "Total reconstruction requests by geometry and outcome",
	}, []string{"geometry", "outcome"})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recon_http_rate_limited_total",
		Help: "Total requests rejected by the rate limiter",
	})
)

func recordReconstruction(geometry string, found bool) {
	outcome := "found"
	if !found {
		outcome = "not_found"
	}
	reconstructionsTotal.WithLabelValues(geometry, outcome).Inc()
}
