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
	"time"

	"github.com/AleutianAI/platerecon/services/recon/cache"
	"github.com/AleutianAI/platerecon/services/recon/graph"
)

// LatLon is a geographic coordinate in degrees.
type LatLon struct {
	Lat float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lon float64 `json:"lon" binding:"gte=-360,lte=360"`
}

// PointRequest is the request body for POST /v1/recon/reconstruct/point.
type PointRequest struct {
	// Model names the rotation model. Default: the configured default model.
	Model string `json:"model"`

	// Time is the reconstruction time in Ma. Required, may be 0.
	Time float64 `json:"time" binding:"gte=0"`

	// Plate is the plate the point belongs to.
	Plate uint32 `json:"plate"`

	// Anchor is the plate held fixed. Default: the configured default root.
	Anchor *uint32 `json:"anchor,omitempty"`

	// Point is the present-day position.
	Point LatLon `json:"point"`
}

// PointResponse is the response for POST /v1/recon/reconstruct/point.
type PointResponse struct {
	Model  string  `json:"model"`
	Time   float64 `json:"time"`
	Plate  uint32  `json:"plate"`
	Anchor uint32  `json:"anchor"`

	// Found is false when the plate is not reachable from the anchor at
	// this time. Point and Rotation are omitted in that case.
	Found bool `json:"found"`

	Point    *LatLon    `json:"point,omitempty"`
	Rotation *EulerPole `json:"rotation,omitempty"`
}

// PolylineRequest is the request body for POST /v1/recon/reconstruct/polyline.
type PolylineRequest struct {
	Model  string   `json:"model"`
	Time   float64  `json:"time" binding:"gte=0"`
	Plate  uint32   `json:"plate"`
	Anchor *uint32  `json:"anchor,omitempty"`
	Points []LatLon `json:"points" binding:"required,min=2,dive"`
}

// PolylineResponse is the response for POST /v1/recon/reconstruct/polyline.
type PolylineResponse struct {
	Model    string     `json:"model"`
	Time     float64    `json:"time"`
	Plate    uint32     `json:"plate"`
	Anchor   uint32     `json:"anchor"`
	Found    bool       `json:"found"`
	Points   []LatLon   `json:"points,omitempty"`
	Rotation *EulerPole `json:"rotation,omitempty"`
}

// EulerPole is a finite rotation as pole and angle.
type EulerPole struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Angle float64 `json:"angle"`
}

// TreeRequest is the query for GET /v1/recon/tree.
type TreeRequest struct {
	Model  string  `form:"model"`
	Time   float64 `form:"time" binding:"gte=0"`
	Anchor *uint32 `form:"anchor"`

	// Plate, if set, adds the edges from the anchor down to Plate.
	Plate *uint32 `form:"plate"`
}

// TreeNode is one edge of a built tree.
type TreeNode struct {
	Edge        int       `json:"edge"`
	FixedPlate  uint32    `json:"fixed_plate"`
	MovingPlate uint32    `json:"moving_plate"`
	Parent      int       `json:"parent"`
	Depth       int       `json:"depth"`
	Reversed    bool      `json:"reversed"`
	Source      string    `json:"source,omitempty"`
	Composed    EulerPole `json:"composed"`
}

// TreeResponse is the response for GET /v1/recon/tree.
type TreeResponse struct {
	Model       string             `json:"model"`
	Time        float64            `json:"time"`
	Anchor      uint32             `json:"anchor"`
	Poles       int                `json:"poles"`
	Plates      []uint32           `json:"plates"`
	Rootmost    []TreeNode         `json:"rootmost"`
	Path        []TreeNode         `json:"path,omitempty"`
	Stats       graph.BuildStats   `json:"stats"`
	Diagnostics []graph.Diagnostic `json:"diagnostics,omitempty"`
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	Name        string    `json:"name"`
	Source      string    `json:"source"`
	Path        string    `json:"path,omitempty"`
	Samples     int       `json:"samples"`
	Sequences   int       `json:"sequences"`
	Times       int       `json:"times"`
	ParseErrors int       `json:"parse_errors"`
	LoadedAt    time.Time `json:"loaded_at"`
	LoadID      string    `json:"load_id"`
}

// ModelsResponse is the response for GET /v1/recon/models.
type ModelsResponse struct {
	Default string      `json:"default,omitempty"`
	Models  []ModelInfo `json:"models"`
}

// HealthResponse is the response for GET /v1/recon/health.
type HealthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Models  int         `json:"models"`
	Cache   cache.Stats `json:"cache"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code.
	Code string `json:"code,omitempty"`

	// RequestID echoes X-Request-ID.
	RequestID string `json:"request_id,omitempty"`
}
