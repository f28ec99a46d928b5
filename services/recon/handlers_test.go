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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return NewRouter(newTestService(t), RouterOptions{Logger: quietLogger()})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Reconstruct
// =============================================================================

func TestHandlers_ReconstructPoint(t *testing.T) {
	router := setupTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/v1/recon/reconstruct/point", PointRequest{
		Time: 10, Plate: 802, Point: LatLon{Lat: 0, Lon: 0},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PointResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Found)
	require.NotNil(t, resp.Point)
	assert.InDelta(t, 45, resp.Point.Lon, 1e-9)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandlers_ReconstructPointNotFound(t *testing.T) {
	router := setupTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/v1/recon/reconstruct/point", PointRequest{
		Time: 10, Plate: 999, Point: LatLon{Lat: 0, Lon: 0},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, false, raw["found"])
	assert.NotContains(t, raw, "point")
}

func TestHandlers_ReconstructPointValidation(t *testing.T) {
	router := setupTestRouter(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"malformed json", `{"time":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"latitude out of range", `{"time":10,"plate":801,"point":{"lat":95,"lon":0}}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"negative time", `{"time":-5,"plate":801,"point":{"lat":0,"lon":0}}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown model", `{"model":"nope","time":10,"plate":801,"point":{"lat":0,"lon":0}}`, http.StatusNotFound, "MODEL_NOT_LOADED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/recon/reconstruct/point", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Request-ID", "req-1")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp.Code)
			assert.Equal(t, "req-1", resp.RequestID)
			assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
		})
	}
}

func TestHandlers_ReconstructPolyline(t *testing.T) {
	router := setupTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/v1/recon/reconstruct/polyline", PolylineRequest{
		Time: 10, Plate: 801, Points: []LatLon{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 10}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp PolylineResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Found)
	require.Len(t, resp.Points, 2)
	assert.InDelta(t, 30, resp.Points[0].Lon, 1e-9)
	assert.InDelta(t, 40, resp.Points[1].Lon, 1e-9)
}

func TestHandlers_ReconstructPolylineTooShort(t *testing.T) {
	router := setupTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/v1/recon/reconstruct/polyline", PolylineRequest{
		Time: 10, Plate: 801, Points: []LatLon{{Lat: 0, Lon: 0}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Tree, models, health
// =============================================================================

func TestHandlers_Tree(t *testing.T) {
	router := setupTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/v1/recon/tree?time=10&anchor=801&plate=701", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp TreeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint32(801), resp.Anchor)
	assert.Equal(t, []uint32{0, 701, 802}, resp.Plates)
	require.Len(t, resp.Path, 2)
	assert.True(t, resp.Path[0].Reversed)
	assert.Equal(t, uint32(0), resp.Path[0].MovingPlate)
	assert.Equal(t, uint32(701), resp.Path[1].MovingPlate)
}

func TestHandlers_TreeErrors(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/v1/recon/tree?time=10&plate=999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "PLATE_NOT_FOUND")

	w = doJSON(t, router, http.MethodGet, "/v1/recon/tree?time=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_Models(t *testing.T) {
	router := setupTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/v1/recon/models", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ModelsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "global", resp.Default)
	require.Len(t, resp.Models, 1)
	assert.Equal(t, 5, resp.Models[0].Samples)
}

func TestHandlers_Health(t *testing.T) {
	router := setupTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/v1/recon/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
	assert.Equal(t, 1, resp.Models)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := setupTestRouter(t)
	doJSON(t, router, http.MethodGet, "/v1/recon/health", nil)

	w := doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "recon_http_requests_total")
}

func TestRouter_RateLimit(t *testing.T) {
	router := NewRouter(newTestService(t), RouterOptions{
		Logger:    quietLogger(),
		RateLimit: 0.001,
		RateBurst: 1,
	})

	w := doJSON(t, router, http.MethodGet, "/v1/recon/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/recon/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	w = doJSON(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
