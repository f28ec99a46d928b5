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
	"fmt"
	"math"
)

// PointOnSphere is a point on the unit sphere stored as a unit 3-vector.
//
// The zero value is not a valid point. Use NewPointOnSphere or FromLatLon.
type PointOnSphere struct {
	x, y, z float64
}

// NorthPole is the point at latitude 90.
var NorthPole = PointOnSphere{x: 0, y: 0, z: 1}

// NewPointOnSphere creates a point from a 3-vector, normalising it.
//
// Outputs:
//
//	PointOnSphere - The normalised point.
//	error - ErrZeroVector if the vector has zero (or non-finite) length.
func NewPointOnSphere(x, y, z float64) (PointOnSphere, error) {
	n := math.Sqrt(x*x + y*y + z*z)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return PointOnSphere{}, ErrZeroVector
	}
	return PointOnSphere{x: x / n, y: y / n, z: z / n}, nil
}

// FromLatLon creates a point from geographic coordinates in degrees.
//
// Inputs:
//
//	lat - Latitude in degrees. Must be within [-90, 90].
//	lon - Longitude in degrees. Any finite value; it wraps.
func FromLatLon(lat, lon float64) (PointOnSphere, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return PointOnSphere{}, fmt.Errorf("%w: %v", ErrInvalidLatitude, lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return PointOnSphere{}, fmt.Errorf("%w: %v", ErrInvalidLongitude, lon)
	}
	latR := lat * math.Pi / 180
	lonR := lon * math.Pi / 180
	cosLat := math.Cos(latR)
	return PointOnSphere{
		x: cosLat * math.Cos(lonR),
		y: cosLat * math.Sin(lonR),
		z: math.Sin(latR),
	}, nil
}

// MustLatLon is like FromLatLon but panics on invalid input.
// Intended for constants and tests.
func MustLatLon(lat, lon float64) PointOnSphere {
	p, err := FromLatLon(lat, lon)
	if err != nil {
		panic(err)
	}
	return p
}

// X returns the x component of the unit vector.
func (p PointOnSphere) X() float64 { return p.x }

// Y returns the y component of the unit vector.
func (p PointOnSphere) Y() float64 { return p.y }

// Z returns the z component of the unit vector.
func (p PointOnSphere) Z() float64 { return p.z }

// LatLon returns the latitude and longitude of the point in degrees.
// Longitude is in (-180, 180].
func (p PointOnSphere) LatLon() (lat, lon float64) {
	z := math.Max(-1, math.Min(1, p.z))
	lat = math.Asin(z) * 180 / math.Pi
	if p.x == 0 && p.y == 0 {
		return lat, 0
	}
	lon = math.Atan2(p.y, p.x) * 180 / math.Pi
	return lat, lon
}

// Equal reports whether two points have identical components.
func (p PointOnSphere) Equal(q PointOnSphere) bool {
	return p.x == q.x && p.y == q.y && p.z == q.z
}

// ApproxEqual reports whether the points are within eps of each other
// (chord distance).
func (p PointOnSphere) ApproxEqual(q PointOnSphere, eps float64) bool {
	dx, dy, dz := p.x-q.x, p.y-q.y, p.z-q.z
	return math.Sqrt(dx*dx+dy*dy+dz*dz) <= eps
}

// IsValid reports whether the point lies on the unit sphere.
func (p PointOnSphere) IsValid() bool {
	n := p.x*p.x + p.y*p.y + p.z*p.z
	return math.Abs(n-1) < 1e-9
}

// String returns the point as "(lat, lon)" in degrees.
func (p PointOnSphere) String() string {
	lat, lon := p.LatLon()
	return fmt.Sprintf("(%.6f, %.6f)", lat, lon)
}

// Polyline is an ordered sequence of at least two points on the sphere.
type Polyline struct {
	points []PointOnSphere
}

// NewPolyline creates a polyline from the given points.
//
// The points are copied; later changes to the caller's slice do not affect
// the polyline.
func NewPolyline(points ...PointOnSphere) (Polyline, error) {
	if len(points) < 2 {
		return Polyline{}, fmt.Errorf("%w: got %d", ErrTooFewPoints, len(points))
	}
	cp := make([]PointOnSphere, len(points))
	copy(cp, points)
	return Polyline{points: cp}, nil
}

// Len returns the number of vertices.
func (l Polyline) Len() int { return len(l.points) }

// At returns the i-th vertex.
func (l Polyline) At(i int) PointOnSphere { return l.points[i] }

// Points returns a copy of the vertices.
func (l Polyline) Points() []PointOnSphere {
	cp := make([]PointOnSphere, len(l.points))
	copy(cp, l.points)
	return cp
}

// Equal reports whether both polylines have identical vertices.
func (l Polyline) Equal(m Polyline) bool {
	if len(l.points) != len(m.points) {
		return false
	}
	for i := range l.points {
		if !l.points[i].Equal(m.points[i]) {
			return false
		}
	}
	return true
}
