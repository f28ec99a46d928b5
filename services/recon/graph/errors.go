// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides the reconstruction graph and reconstruction tree.
//
// A Graph holds every total reconstruction pole available at one time
// instant. Each pole is stored twice: once as supplied (original) and once
// inverted with fixed and moving plates swapped (reversed), so a tree can be
// grown across a pole in either direction.
//
// A Tree is a rooted spanning view of a Graph. It assigns every plate that
// is reachable from the root exactly one composed absolute rotation and
// answers reconstruction queries with it.
//
// # Ownership Model
//
// The Graph owns all edge storage in a single arena. A Tree never copies or
// moves edges; it keeps per-edge state (unassigned, rootmost, child of)
// indexed by the arena position. Demolishing a tree only resets that state.
//
// # Thread Safety
//
// Graph is designed for a single writer during loading. After loading it
// can be shared read-only between goroutines, each building its own Tree.
// A built Tree answers queries for its root concurrently; building,
// rebuilding and demolishing are serialised by the Tree's own lock.
//
// # Lifecycle
//
//  1. Create with NewGraph()
//  2. Load with InsertTotalReconstructionPole() calls
//  3. Build a tree with BuildTree(ctx, root) or lazily via tree queries
//  4. Query with ReconstructPoint() / ReconstructPolyline()
package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph and tree operations.
var (
	// ErrSelfPole is returned when a pole has the same fixed and moving plate.
	ErrSelfPole = errors.New("fixed and moving plate are the same")

	// ErrMaxEdgesExceeded is returned when inserting a pole would exceed the
	// graph's configured edge capacity. The graph is left unchanged.
	ErrMaxEdgesExceeded = errors.New("maximum edge count exceeded")

	// ErrInconsistentTree is returned when a built tree holds more than one
	// edge for a moving plate. It indicates a defect in the tree builder and
	// is never tolerated silently.
	ErrInconsistentTree = errors.New("reconstruction tree is inconsistent")

	// ErrTreeNotBuilt is returned by introspection methods on an empty tree.
	ErrTreeNotBuilt = errors.New("reconstruction tree not built")

	// ErrEdgeIndexOutOfRange is returned for an edge index outside the arena.
	ErrEdgeIndexOutOfRange = errors.New("edge index out of range")

	// ErrNilGraph is returned when a tree is created without a graph.
	ErrNilGraph = errors.New("graph is nil")
)

// EdgeError represents a pole that could not be inserted.
type EdgeError struct {
	// FixedPlate is the fixed plate of the rejected pole.
	FixedPlate PlateID

	// MovingPlate is the moving plate of the rejected pole.
	MovingPlate PlateID

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *EdgeError) Error() string {
	return fmt.Sprintf("pole %s -> %s: %v", e.FixedPlate, e.MovingPlate, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *EdgeError) Unwrap() error {
	return e.Err
}
