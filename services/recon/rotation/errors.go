// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rotation provides finite rotations of the unit sphere and the
// geometry they act on.
//
// A Rotation is the algebraic building block of plate reconstruction. The
// rest of the engine relies only on its group contract:
//
//   - Identity() is the neutral element
//   - Compose(a, b) applies b first, then a
//   - Reverse(a) is the inverse, Compose(Reverse(a), a) == Identity()
//   - a.Apply(p) moves a point, a.ApplyPolyline(l) moves a curve
//
// Rotations are stored as unit quaternions. Callers must not depend on the
// representation; use FromEulerPole / EulerPole to convert to and from the
// pole-and-angle form used in rotation files.
//
// # Thread Safety
//
// All types in this package are immutable values and safe for concurrent use.
package rotation

import "errors"

// Sentinel errors for rotation and geometry construction.
var (
	// ErrZeroVector is returned when a point is built from a zero-length vector.
	ErrZeroVector = errors.New("vector has zero length")

	// ErrInvalidLatitude is returned when a latitude lies outside [-90, 90].
	ErrInvalidLatitude = errors.New("latitude out of range")

	// ErrInvalidLongitude is returned when a longitude is NaN or infinite.
	ErrInvalidLongitude = errors.New("longitude is not finite")

	// ErrTooFewPoints is returned when a polyline has fewer than two points.
	ErrTooFewPoints = errors.New("polyline needs at least two points")

	// ErrInvalidAngle is returned when a rotation angle is NaN or infinite.
	ErrInvalidAngle = errors.New("rotation angle is not finite")
)
