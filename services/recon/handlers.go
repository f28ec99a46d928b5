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
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/platerecon/services/recon/graph"
	"github.com/AleutianAI/platerecon/services/recon/telemetry"
)

// Handlers contains the HTTP handlers for the reconstruction service.
type Handlers struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, logger: logger}
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	logger := h.logger.With("request_id", requestID(c), "handler", handler)
	return telemetry.LoggerWithTrace(c.Request.Context(), logger)
}

// HandleReconstructPoint handles POST /v1/recon/reconstruct/point.
//
// Description:
//
//	Rotates a present-day point on a plate to its position at the
//	requested time, relative to the anchor plate. A plate that is not
//	reachable from the anchor at that time is not an error: the response
//	has found=false and no point.
//
// Request Body:
//
//	PointRequest
//
// Response:
//
//	200 OK: PointResponse
//	400 Bad Request: Validation error
//	404 Not Found: Model not loaded
//	500 Internal Server Error: Build error
func (h *Handlers) HandleReconstructPoint(c *gin.Context) {
	logger := h.requestLogger(c, "HandleReconstructPoint")

	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, logger, err)
		return
	}

	resp, err := h.svc.ReconstructPoint(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	recordReconstruction("point", resp.Found)
	c.JSON(http.StatusOK, resp)
}

// HandleReconstructPolyline handles POST /v1/recon/reconstruct/polyline.
//
// Request Body:
//
//	PolylineRequest
//
// Response:
//
//	200 OK: PolylineResponse (found=false for an unreachable plate)
//	400 Bad Request: Validation error
//	404 Not Found: Model not loaded
func (h *Handlers) HandleReconstructPolyline(c *gin.Context) {
	logger := h.requestLogger(c, "HandleReconstructPolyline")

	var req PolylineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, logger, err)
		return
	}

	resp, err := h.svc.ReconstructPolyline(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	recordReconstruction("polyline", resp.Found)
	c.JSON(http.StatusOK, resp)
}

// HandleTree handles GET /v1/recon/tree.
//
// Query Parameters:
//
//	model - Model name (optional)
//	time - Reconstruction time in Ma
//	anchor - Anchor plate (optional)
//	plate - Adds the edges from the anchor down to this plate (optional)
//
// Response:
//
//	200 OK: TreeResponse
//	400 Bad Request: Validation error
//	404 Not Found: Model not loaded, or plate not reachable
func (h *Handlers) HandleTree(c *gin.Context) {
	logger := h.requestLogger(c, "HandleTree")

	var req TreeRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, logger, err)
		return
	}

	resp, err := h.svc.TreeSummary(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, logger, err)
		return
	}
	if resp.Stats.CrossOvers > 0 {
		logger.Debug("tree has cross-overs",
			"model", resp.Model, "time", resp.Time, "cross_overs", resp.Stats.CrossOvers)
	}
	c.JSON(http.StatusOK, resp)
}

// HandleModels handles GET /v1/recon/models.
func (h *Handlers) HandleModels(c *gin.Context) {
	c.JSON(http.StatusOK, ModelsResponse{
		Default: h.svc.DefaultModel(),
		Models:  h.svc.Models(),
	})
}

// HandleHealth handles GET /v1/recon/health.
//
// Description:
//
//	Returns 200 while the process is serving, with the number of loaded
//	models and the cache counters.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
		Models:  len(h.svc.Models()),
		Cache:   h.svc.CacheStats(),
	})
}

func (h *Handlers) badRequest(c *gin.Context, logger *slog.Logger, err error) {
	logger.Warn("Invalid request", "error", err)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:     "Invalid request: " + err.Error(),
		Code:      "INVALID_REQUEST",
		RequestID: requestID(c),
	})
}

// writeError maps service errors to status codes.
func (h *Handlers) writeError(c *gin.Context, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"

	switch {
	case errors.Is(err, ErrModelNotLoaded):
		status, code = http.StatusNotFound, "MODEL_NOT_LOADED"
	case errors.Is(err, ErrPlateNotFound):
		status, code = http.StatusNotFound, "PLATE_NOT_FOUND"
	case errors.Is(err, ErrInvalidTime):
		status, code = http.StatusBadRequest, "INVALID_TIME"
	case isClientError(err):
		status, code = http.StatusBadRequest, "INVALID_GEOMETRY"
	case errors.Is(err, graph.ErrMaxEdgesExceeded):
		status, code = http.StatusUnprocessableEntity, "MODEL_TOO_LARGE"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, "CANCELLED"
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err, "code", code)
	} else {
		logger.Info("Request rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		RequestID: requestID(c),
	})
}
