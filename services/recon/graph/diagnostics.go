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
	"sync"
)

// DiagnosticKind classifies a non-fatal anomaly found while loading poles or
// building a tree.
type DiagnosticKind int

const (
	// DiagnosticDuplicatePole records a pole rejected because the graph
	// already links the same two plates.
	DiagnosticDuplicatePole DiagnosticKind = iota

	// DiagnosticCrossOver records an edge discarded during tree building
	// because its moving plate was already reached by another path.
	DiagnosticCrossOver

	// DiagnosticEmptyRoot records a tree built for a root that is the fixed
	// plate of no edge.
	DiagnosticEmptyRoot
)

// String returns the string representation of the DiagnosticKind.
func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticDuplicatePole:
		return "duplicate_pole"
	case DiagnosticCrossOver:
		return "cross_over"
	case DiagnosticEmptyRoot:
		return "empty_root"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k DiagnosticKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Diagnostic describes one recorded anomaly.
type Diagnostic struct {
	// Kind classifies the anomaly.
	Kind DiagnosticKind `json:"kind"`

	// FixedPlate and MovingPlate identify the pole or edge involved.
	FixedPlate  PlateID `json:"fixed_plate"`
	MovingPlate PlateID `json:"moving_plate"`

	// Root is the tree root the anomaly was found under, if any.
	Root PlateID `json:"root,omitempty"`

	// EdgeIndex is the arena index of the rejected edge, or -1.
	EdgeIndex int `json:"edge_index"`

	// WinningEdgeIndex is the edge that already held the plate, or -1.
	WinningEdgeIndex int `json:"winning_edge_index"`

	// Message is a human readable summary.
	Message string `json:"message"`
}

// String returns the message prefixed with the kind.
func (d Diagnostic) String() string {
	return fmt.Sprintf("[%s] %s", d.Kind, d.Message)
}

// Diagnostics is an append-only, goroutine-safe collector.
//
// The zero value is ready to use.
type Diagnostics struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Add appends a diagnostic.
func (d *Diagnostics) Add(diag Diagnostic) {
	d.mu.Lock()
	d.items = append(d.items, diag)
	d.mu.Unlock()
}

// All returns a copy of every recorded diagnostic in insertion order.
func (d *Diagnostics) All() []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Diagnostic, len(d.items))
	copy(out, d.items)
	return out
}

// Len returns the number of recorded diagnostics.
func (d *Diagnostics) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Count returns how many diagnostics of the given kind were recorded.
func (d *Diagnostics) Count(kind DiagnosticKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, item := range d.items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}

// HasKind reports whether at least one diagnostic of the kind exists.
func (d *Diagnostics) HasKind(kind DiagnosticKind) bool {
	return d.Count(kind) > 0
}

// BuildStats contains statistics about a tree build.
type BuildStats struct {
	// RootmostEdges is the number of edges whose fixed plate is the root.
	RootmostEdges int `json:"rootmost_edges"`

	// IndexedPlates is the number of moving plates reachable from the root.
	IndexedPlates int `json:"indexed_plates"`

	// CrossOvers is the number of edges discarded as cross-overs.
	CrossOvers int `json:"cross_overs"`

	// EdgesVisited is the number of edges popped from the build queue.
	EdgesVisited int `json:"edges_visited"`

	// DurationMicro is the build time in microseconds.
	DurationMicro int64 `json:"duration_micro"`
}

// BuildReport is the outcome of the most recent tree build.
type BuildReport struct {
	// Root is the plate the tree was built for.
	Root PlateID `json:"root"`

	// Generation is the graph generation the tree was built from.
	Generation uint64 `json:"generation"`

	// Stats contains build statistics.
	Stats BuildStats `json:"stats"`

	// Diagnostics lists the cross-overs and empty-root notices of the build.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// HasCrossOvers returns true if any edge was discarded as a cross-over.
func (r *BuildReport) HasCrossOvers() bool {
	return r.Stats.CrossOvers > 0
}
