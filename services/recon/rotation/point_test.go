// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rotation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromLatLon(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		x, y, z  float64
	}{
		{"origin", 0, 0, 1, 0, 0},
		{"east", 0, 90, 0, 1, 0},
		{"north pole", 90, 0, 0, 0, 1},
		{"south pole", -90, 0, 0, 0, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromLatLon(tt.lat, tt.lon)
			require.NoError(t, err)
			assert.InDelta(t, tt.x, p.X(), 1e-12)
			assert.InDelta(t, tt.y, p.Y(), 1e-12)
			assert.InDelta(t, tt.z, p.Z(), 1e-12)
		})
	}
}

func TestFromLatLon_Invalid(t *testing.T) {
	_, err := FromLatLon(90.5, 0)
	assert.ErrorIs(t, err, ErrInvalidLatitude)

	_, err = FromLatLon(math.NaN(), 0)
	assert.ErrorIs(t, err, ErrInvalidLatitude)

	_, err = FromLatLon(0, math.Inf(1))
	assert.ErrorIs(t, err, ErrInvalidLongitude)
}

func TestLatLon_RoundTrip(t *testing.T) {
	for _, c := range [][2]float64{{12.5, -45}, {-60, 170}, {0, 179.9}, {89, -1}} {
		p := MustLatLon(c[0], c[1])
		lat, lon := p.LatLon()
		assert.InDelta(t, c[0], lat, 1e-9)
		assert.InDelta(t, c[1], lon, 1e-9)
	}
}

func TestLatLon_PoleHasZeroLongitude(t *testing.T) {
	lat, lon := NorthPole.LatLon()
	assert.InDelta(t, 90.0, lat, 1e-12)
	assert.Equal(t, 0.0, lon)
}

func TestNewPointOnSphere(t *testing.T) {
	p, err := NewPointOnSphere(0, 3, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p.Y(), 1e-12)
	assert.InDelta(t, 0.8, p.Z(), 1e-12)
	assert.True(t, p.IsValid())

	_, err = NewPointOnSphere(0, 0, 0)
	assert.ErrorIs(t, err, ErrZeroVector)
}

func TestNewPolyline(t *testing.T) {
	_, err := NewPolyline(NorthPole)
	assert.ErrorIs(t, err, ErrTooFewPoints)

	pts := []PointOnSphere{MustLatLon(0, 0), MustLatLon(1, 1)}
	l, err := NewPolyline(pts...)
	require.NoError(t, err)

	pts[0] = NorthPole
	assert.False(t, l.At(0).Equal(NorthPole), "polyline must copy its input")
	assert.Len(t, l.Points(), 2)
}

func TestPolyline_Equal(t *testing.T) {
	a, _ := NewPolyline(MustLatLon(0, 0), MustLatLon(1, 1))
	b, _ := NewPolyline(MustLatLon(0, 0), MustLatLon(1, 1))
	c, _ := NewPolyline(MustLatLon(0, 0), MustLatLon(1, 1), MustLatLon(2, 2))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
