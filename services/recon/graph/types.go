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
	"fmt"
	"log/slog"
	"strconv"

	"github.com/AleutianAI/platerecon/services/recon/rotation"
)

// Default configuration values.
const (
	// DefaultMaxEdges is the default maximum number of edges a graph can hold.
	// Every pole uses two edges.
	DefaultMaxEdges = 2_000_000
)

// PlateID identifies a rigid tectonic plate. Only equality and ordering
// are meaningful.
type PlateID uint32

// String returns the decimal plate number.
func (p PlateID) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// EdgeKind tells whether an edge carries a pole as supplied or its inverse.
type EdgeKind int

const (
	// EdgeKindOriginal is the pole exactly as inserted.
	EdgeKindOriginal EdgeKind = iota

	// EdgeKindReversed is the inverse pole with fixed and moving swapped.
	EdgeKindReversed
)

// String returns the string representation of the EdgeKind.
func (k EdgeKind) String() string {
	switch k {
	case EdgeKindOriginal:
		return "original"
	case EdgeKindReversed:
		return "reversed"
	default:
		return "unknown"
	}
}

// Provenance is an optional reference to where a pole came from.
//
// The engine never interprets it; it is carried on both edges of a pole
// and collected into the graph's list of contributing features.
type Provenance struct {
	// FeatureID identifies the feature that contributed the pole.
	FeatureID string `json:"feature_id,omitempty"`

	// Source is the file or store the pole was read from.
	Source string `json:"source,omitempty"`

	// Line is the 1-based line in Source, 0 if unknown.
	Line int `json:"line,omitempty"`
}

// IsZero reports whether no provenance was supplied.
func (p Provenance) IsZero() bool {
	return p.FeatureID == "" && p.Source == "" && p.Line == 0
}

// String returns a compact "source:line" or feature id form.
func (p Provenance) String() string {
	switch {
	case p.IsZero():
		return ""
	case p.Source != "" && p.Line > 0:
		return fmt.Sprintf("%s:%d", p.Source, p.Line)
	case p.Source != "":
		return p.Source
	default:
		return p.FeatureID
	}
}

// Edge is a directed total reconstruction pole.
//
// The rotation moves MovingPlate relative to FixedPlate. Every inserted pole
// produces one original and one reversed edge; Pair links them.
type Edge struct {
	// Index is the edge's position in the graph arena.
	Index int

	// FixedPlate is the plate the rotation is relative to.
	FixedPlate PlateID

	// MovingPlate is the plate being moved.
	MovingPlate PlateID

	// Relative is the rotation of MovingPlate relative to FixedPlate.
	Relative rotation.Rotation

	// Kind tells whether this is the supplied pole or its inverse.
	Kind EdgeKind

	// Provenance is the optional origin of the pole.
	Provenance Provenance

	// Pair is the arena index of the partner edge (the inverse).
	Pair int
}

// IsReverseOf reports whether e is the exact reverse of other.
func (e Edge) IsReverseOf(other Edge) bool {
	return e.FixedPlate == other.MovingPlate && e.MovingPlate == other.FixedPlate
}

// String returns "fixed -> moving (kind)".
func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s (%s)", e.FixedPlate, e.MovingPlate, e.Kind)
}

// GraphOptions configures Graph behavior and limits.
type GraphOptions struct {
	// MaxEdges is the maximum number of edges the graph can hold.
	// Default: 2,000,000
	MaxEdges int

	// Logger receives warnings for duplicate poles. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultGraphOptions returns sensible defaults for graph configuration.
func DefaultGraphOptions() GraphOptions {
	return GraphOptions{
		MaxEdges: DefaultMaxEdges,
	}
}

// GraphOption is a functional option for configuring Graph.
type GraphOption func(*GraphOptions)

// WithMaxEdges sets the maximum number of edges the graph can hold.
func WithMaxEdges(n int) GraphOption {
	return func(o *GraphOptions) {
		o.MaxEdges = n
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) GraphOption {
	return func(o *GraphOptions) {
		o.Logger = logger
	}
}

// platePair is an unordered pair of plates used for duplicate detection.
type platePair struct {
	lo, hi PlateID
}

func makePlatePair(a, b PlateID) platePair {
	if a > b {
		a, b = b, a
	}
	return platePair{lo: a, hi: b}
}
