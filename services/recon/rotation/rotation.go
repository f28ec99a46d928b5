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
	"encoding/json"
	"fmt"
	"math"
)

// DefaultEpsilon is the tolerance used by ApproxEqual callers that have no
// better bound of their own.
const DefaultEpsilon = 1e-12

// Rotation is a finite rotation of the unit sphere.
//
// Description:
//
//	Stored as a unit quaternion (w, x, y, z). The zero value is NOT the
//	identity; use Identity(). Rotations are values: every operation returns
//	a new Rotation and never modifies its receiver.
//
// Invariants:
//   - w² + x² + y² + z² == 1 (within floating point drift)
//   - q and -q describe the same rotation; Equal treats them as equal
type Rotation struct {
	w, x, y, z float64
}

// Identity returns the rotation that leaves every point in place.
func Identity() Rotation {
	return Rotation{w: 1}
}

// FromEulerPole creates a rotation of angleDeg degrees about the given pole.
//
// Description:
//
//	Positive angles rotate counter-clockwise when looking down on the pole
//	from outside the sphere, matching the convention of rotation files.
//
// Inputs:
//
//	pole - Rotation axis as a point on the sphere.
//	angleDeg - Rotation angle in degrees. Must be finite.
//
// Outputs:
//
//	Rotation - The rotation.
//	error - ErrInvalidAngle if angleDeg is NaN or infinite.
func FromEulerPole(pole PointOnSphere, angleDeg float64) (Rotation, error) {
	if math.IsNaN(angleDeg) || math.IsInf(angleDeg, 0) {
		return Rotation{}, fmt.Errorf("%w: %v", ErrInvalidAngle, angleDeg)
	}
	half := angleDeg * math.Pi / 360
	s := math.Sin(half)
	return Rotation{
		w: math.Cos(half),
		x: pole.x * s,
		y: pole.y * s,
		z: pole.z * s,
	}, nil
}

// FromEulerPoleLatLon creates a rotation about the pole at (lat, lon).
//
// Example:
//
//	r, err := rotation.FromEulerPoleLatLon(68.0, 129.9, -0.55)
//	if err != nil {
//	    return err
//	}
func FromEulerPoleLatLon(lat, lon, angleDeg float64) (Rotation, error) {
	pole, err := FromLatLon(lat, lon)
	if err != nil {
		return Rotation{}, fmt.Errorf("euler pole: %w", err)
	}
	return FromEulerPole(pole, angleDeg)
}

// FromQuaternion builds a rotation from raw quaternion components,
// normalising them.
func FromQuaternion(w, x, y, z float64) (Rotation, error) {
	n := math.Sqrt(w*w + x*x + y*y + z*z)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Rotation{}, ErrZeroVector
	}
	return Rotation{w: w / n, x: x / n, y: y / n, z: z / n}, nil
}

// Compose returns the rotation that applies b first and then a.
//
// Compose(a, Identity()) returns a with identical components.
func Compose(a, b Rotation) Rotation {
	return Rotation{
		w: a.w*b.w - a.x*b.x - a.y*b.y - a.z*b.z,
		x: a.w*b.x + a.x*b.w + a.y*b.z - a.z*b.y,
		y: a.w*b.y - a.x*b.z + a.y*b.w + a.z*b.x,
		z: a.w*b.z + a.x*b.y - a.y*b.x + a.z*b.w,
	}
}

// Reverse returns the inverse rotation.
func Reverse(a Rotation) Rotation {
	return Rotation{w: a.w, x: -a.x, y: -a.y, z: -a.z}
}

// Apply rotates a point.
func (r Rotation) Apply(p PointOnSphere) PointOnSphere {
	// v' = v + w*t + u×t with t = 2(u×v), u = (x, y, z)
	tx := 2 * (r.y*p.z - r.z*p.y)
	ty := 2 * (r.z*p.x - r.x*p.z)
	tz := 2 * (r.x*p.y - r.y*p.x)
	return PointOnSphere{
		x: p.x + r.w*tx + (r.y*tz - r.z*ty),
		y: p.y + r.w*ty + (r.z*tx - r.x*tz),
		z: p.z + r.w*tz + (r.x*ty - r.y*tx),
	}
}

// ApplyPolyline rotates every vertex of a polyline.
func (r Rotation) ApplyPolyline(l Polyline) Polyline {
	out := make([]PointOnSphere, len(l.points))
	for i, p := range l.points {
		out[i] = r.Apply(p)
	}
	return Polyline{points: out}
}

// EulerPole returns the rotation as a pole and an angle in degrees.
//
// The identity rotation is reported as an angle of 0 about the north pole.
// The returned angle lies in [0, 360].
func (r Rotation) EulerPole() (PointOnSphere, float64) {
	s := math.Sqrt(r.x*r.x + r.y*r.y + r.z*r.z)
	if s < DefaultEpsilon {
		return NorthPole, 0
	}
	angle := 2 * math.Atan2(s, r.w) * 180 / math.Pi
	return PointOnSphere{x: r.x / s, y: r.y / s, z: r.z / s}, angle
}

// Quaternion returns the raw (w, x, y, z) components.
func (r Rotation) Quaternion() (w, x, y, z float64) {
	return r.w, r.x, r.y, r.z
}

// IsIdentity reports whether r is within eps of the identity.
func (r Rotation) IsIdentity(eps float64) bool {
	return ApproxEqual(r, Identity(), eps)
}

// Equal reports whether two rotations have identical components, treating
// q and -q as the same rotation.
func Equal(a, b Rotation) bool {
	if a.w == b.w && a.x == b.x && a.y == b.y && a.z == b.z {
		return true
	}
	return a.w == -b.w && a.x == -b.x && a.y == -b.y && a.z == -b.z
}

// ApproxEqual reports whether two rotations agree within eps.
//
// The comparison uses the quaternion inner product, so it is independent of
// the sign ambiguity between q and -q.
func ApproxEqual(a, b Rotation, eps float64) bool {
	dot := a.w*b.w + a.x*b.x + a.y*b.y + a.z*b.z
	return 1-math.Abs(dot) <= eps
}

// String returns the rotation in pole-and-angle form.
func (r Rotation) String() string {
	pole, angle := r.EulerPole()
	lat, lon := pole.LatLon()
	return fmt.Sprintf("pole(%.4f, %.4f) angle %.4f", lat, lon, angle)
}

// quaternionJSON is the wire form of a Rotation.
type quaternionJSON struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// MarshalJSON encodes the rotation as its quaternion components.
func (r Rotation) MarshalJSON() ([]byte, error) {
	return json.Marshal(quaternionJSON{W: r.w, X: r.x, Y: r.y, Z: r.z})
}

// UnmarshalJSON decodes quaternion components written by MarshalJSON.
//
// Components are taken as-is so that stored rotations round-trip bit for
// bit; an all-zero quaternion is rejected.
func (r *Rotation) UnmarshalJSON(data []byte) error {
	var q quaternionJSON
	if err := json.Unmarshal(data, &q); err != nil {
		return err
	}
	if q.W == 0 && q.X == 0 && q.Y == 0 && q.Z == 0 {
		return ErrZeroVector
	}
	*r = Rotation{w: q.W, x: q.X, y: q.Y, z: q.Z}
	return nil
}
