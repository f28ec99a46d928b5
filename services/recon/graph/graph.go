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
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/AleutianAI/platerecon/services/recon/rotation"
)

// Graph is the set of total reconstruction poles for one time instant.
//
// Description:
//
//	Every inserted pole is stored as an original edge and a reversed edge in
//	a single arena. Edges are indexed by fixed plate, and unordered plate
//	pairs are tracked so a second pole between the same two plates, in
//	either direction, is rejected.
//
// Thread Safety:
//
//	Safe for concurrent use. Inserts take the write lock; everything else
//	takes the read lock. Edges are never modified or removed once inserted.
type Graph struct {
	mu sync.RWMutex

	edges    []Edge
	byFixed  map[PlateID][]int
	pairs    map[platePair]int
	features []Provenance

	diagnostics Diagnostics
	generation  uint64

	options GraphOptions
	logger  *slog.Logger
}

// NewGraph creates an empty graph.
//
// Example:
//
//	g := graph.NewGraph(graph.WithMaxEdges(10_000))
//	inserted, err := g.InsertTotalReconstructionPole(0, 801, r, graph.Provenance{})
func NewGraph(opts ...GraphOption) *Graph {
	options := DefaultGraphOptions()
	for _, opt := range opts {
		opt(&options)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Graph{
		byFixed: make(map[PlateID][]int),
		pairs:   make(map[platePair]int),
		options: options,
		logger:  logger,
	}
}

// InsertTotalReconstructionPole adds a pole and its inverse to the graph.
//
// Description:
//
//	Validates first and mutates last. If fixed and moving are already linked
//	by a pole in either direction, the call is a no-op: it returns false,
//	records a duplicate-pole diagnostic and logs a warning. Otherwise the
//	original edge and the reversed edge (inverse rotation, plates swapped)
//	are committed together, so no half-inserted pair is ever visible.
//
// Inputs:
//
//	fixed - The plate the rotation is relative to.
//	moving - The plate being moved.
//	r - Rotation of moving relative to fixed.
//	prov - Optional origin of the pole. Zero value for none.
//
// Outputs:
//
//	bool - True if the pole was inserted, false if it was a duplicate.
//	error - ErrSelfPole or ErrMaxEdgesExceeded wrapped in *EdgeError.
//	        The graph is unchanged on error.
func (g *Graph) InsertTotalReconstructionPole(fixed, moving PlateID, r rotation.Rotation, prov Provenance) (bool, error) {
	if fixed == moving {
		return false, &EdgeError{FixedPlate: fixed, MovingPlate: moving, Err: ErrSelfPole}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	pair := makePlatePair(fixed, moving)
	if existing, ok := g.pairs[pair]; ok {
		g.recordDuplicateLocked(fixed, moving, existing, prov)
		return false, nil
	}

	if g.options.MaxEdges > 0 && len(g.edges)+2 > g.options.MaxEdges {
		return false, &EdgeError{
			FixedPlate:  fixed,
			MovingPlate: moving,
			Err:         fmt.Errorf("%w: limit %d", ErrMaxEdgesExceeded, g.options.MaxEdges),
		}
	}

	// Everything below is infallible.
	oi := len(g.edges)
	ri := oi + 1
	g.edges = append(g.edges,
		Edge{
			Index:       oi,
			FixedPlate:  fixed,
			MovingPlate: moving,
			Relative:    r,
			Kind:        EdgeKindOriginal,
			Provenance:  prov,
			Pair:        ri,
		},
		Edge{
			Index:       ri,
			FixedPlate:  moving,
			MovingPlate: fixed,
			Relative:    rotation.Reverse(r),
			Kind:        EdgeKindReversed,
			Provenance:  prov,
			Pair:        oi,
		},
	)
	g.byFixed[fixed] = append(g.byFixed[fixed], oi)
	g.byFixed[moving] = append(g.byFixed[moving], ri)
	g.pairs[pair] = oi
	if !prov.IsZero() {
		g.features = append(g.features, prov)
	}
	g.generation++

	return true, nil
}

// recordDuplicateLocked records and logs a rejected duplicate pole.
// Caller must hold g.mu.
func (g *Graph) recordDuplicateLocked(fixed, moving PlateID, existing int, prov Provenance) {
	kept := g.edges[existing]
	msg := fmt.Sprintf("duplicate pole %s -> %s ignored, plates already linked by %s", fixed, moving, kept)
	g.diagnostics.Add(Diagnostic{
		Kind:             DiagnosticDuplicatePole,
		FixedPlate:       fixed,
		MovingPlate:      moving,
		EdgeIndex:        -1,
		WinningEdgeIndex: existing,
		Message:          msg,
	})
	g.logger.Warn("duplicate total reconstruction pole ignored",
		slog.String("fixed_plate", fixed.String()),
		slog.String("moving_plate", moving.String()),
		slog.Int("existing_edge", existing),
		slog.String("provenance", prov.String()),
	)
	recordDuplicatePole(context.Background())
}

// FindEdgesWhoseFixedPlateIDMatch returns every edge, original or reversed,
// whose fixed plate is plate, in insertion order.
//
// The returned slice is a copy; an unknown plate yields an empty slice.
func (g *Graph) FindEdgesWhoseFixedPlateIDMatch(plate PlateID) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	indices := g.byFixed[plate]
	out := make([]Edge, 0, len(indices))
	for _, i := range indices {
		out = append(out, g.edges[i])
	}
	return out
}

// BuildTree builds a new reconstruction tree rooted at root.
//
// The graph is not modified. Each call returns an independent tree.
func (g *Graph) BuildTree(ctx context.Context, root PlateID) (*Tree, error) {
	t, err := NewTree(g)
	if err != nil {
		return nil, err
	}
	if err := t.Build(ctx, root); err != nil {
		return nil, err
	}
	return t, nil
}

// Edge returns the edge at arena index i.
func (g *Graph) Edge(i int) (Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if i < 0 || i >= len(g.edges) {
		return Edge{}, fmt.Errorf("%w: %d", ErrEdgeIndexOutOfRange, i)
	}
	return g.edges[i], nil
}

// Edges returns a copy of every edge in arena order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.edges)
}

// EdgeCount returns the number of edges (two per pole).
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// PoleCount returns the number of inserted poles.
func (g *Graph) PoleCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges) / 2
}

// PlateIDs returns every plate that appears in the graph, sorted.
func (g *Graph) PlateIDs() []PlateID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]PlateID, 0, len(g.byFixed))
	for id := range g.byFixed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ContributingFeatures returns the provenance of every inserted pole that
// carried one, in insertion order.
func (g *Graph) ContributingFeatures() []Provenance {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.features)
}

// Diagnostics returns the diagnostics recorded while loading poles.
func (g *Graph) Diagnostics() []Diagnostic {
	return g.diagnostics.All()
}

// Generation returns a counter that increases with every inserted pole.
// Trees use it to detect that they were built from an older graph.
func (g *Graph) Generation() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.generation
}

// snapshot returns the arena and index as of now. The arena prefix is
// immutable so the slice may be read without holding the lock.
func (g *Graph) snapshot() ([]Edge, map[PlateID][]int, uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := len(g.edges)
	byFixed := make(map[PlateID][]int, len(g.byFixed))
	for plate, indices := range g.byFixed {
		byFixed[plate] = indices[:len(indices):len(indices)]
	}
	return g.edges[:n:n], byFixed, g.generation
}
