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
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/platerecon/services/recon/rotation"
)

// TreeState is the lifecycle state of a Tree.
type TreeState int

const (
	// TreeStateEmpty means no tree is built. Queries build lazily.
	TreeStateEmpty TreeState = iota

	// TreeStateBuilt means the tree holds a complete build for one root.
	TreeStateBuilt
)

// String returns the string representation of the TreeState.
func (s TreeState) String() string {
	switch s {
	case TreeStateEmpty:
		return "empty"
	case TreeStateBuilt:
		return "built"
	default:
		return "unknown"
	}
}

// edgeState is the per-edge role in a built tree.
type edgeState uint8

const (
	edgeUnassigned edgeState = iota
	edgeRootmost
	edgeChild
)

// TreeEdge is a graph edge as placed in a built tree.
type TreeEdge struct {
	Edge

	// Composed is the absolute rotation of Edge.MovingPlate relative to
	// the tree root.
	Composed rotation.Rotation

	// Parent is the arena index of the parent edge, -1 for rootmost edges.
	Parent int

	// Depth is 0 for rootmost edges.
	Depth int
}

// Tree is a rooted spanning view of a Graph.
//
// Description:
//
//	Grown breadth-first from every edge whose fixed plate is the root.
//	The first edge to reach a plate wins. Later edges reaching an already
//	reached plate are cross-overs and are recorded, not explored, which
//	keeps the build finite on cyclic graphs.
//
//	A tree is bound to the graph it was created with. Queries for a
//	different root, or against a graph that has grown since the last
//	build, rebuild the tree first.
//
// Thread Safety:
//
//	Safe for concurrent use. Queries for the currently built root take
//	a read lock; builds take the write lock.
type Tree struct {
	mu     sync.RWMutex
	graph  *Graph
	logger *slog.Logger

	state      TreeState
	root       PlateID
	generation uint64

	// Per-edge state indexed by graph arena position.
	edges    []Edge
	states   []edgeState
	parents  []int
	depths   []int
	composed []rotation.Rotation
	children [][]int

	rootmost []int
	byMoving map[PlateID][]int
	report   BuildReport
}

// NewTree creates an empty tree over g.
func NewTree(g *Graph) (*Tree, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	return &Tree{
		graph:  g,
		logger: g.logger,
	}, nil
}

// Build builds the tree for root, replacing any previous build.
//
// Description:
//
//	Seeds a FIFO frontier with the root's edges in graph insertion order.
//	Each popped edge whose moving plate is unreached is registered and its
//	onward edges, except its own inverse, are queued with their composed
//	rotation. A root with no edges gives an empty built tree and an
//	empty-root diagnostic.
//
// Outputs:
//
//	error - ErrInconsistentTree if the finished index maps a plate to more
//	        than one edge; the tree is left empty. Cancellation of ctx is
//	        checked between frontier pops.
//
// Thread Safety:
//
//	Takes the tree's write lock.
func (t *Tree) Build(ctx context.Context, root PlateID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buildLocked(ctx, root)
}

// buildLocked performs a build. Caller must hold t.mu for writing.
func (t *Tree) buildLocked(ctx context.Context, root PlateID) error {
	start := time.Now()
	edges, byFixed, generation := t.graph.snapshot()

	ctx, span := startBuildSpan(ctx, root, len(edges))
	defer span.End()

	n := len(edges)
	states := make([]edgeState, n)
	parents := make([]int, n)
	depths := make([]int, n)
	composed := make([]rotation.Rotation, n)
	children := make([][]int, n)
	byMoving := make(map[PlateID][]int)
	var rootmost []int
	var diags []Diagnostic
	var stats BuildStats

	seeds := byFixed[root]
	queue := make([]int, 0, len(seeds))
	for _, i := range seeds {
		parents[i] = -1
		composed[i] = edges[i].Relative
		queue = append(queue, i)
	}
	if len(seeds) == 0 {
		diags = append(diags, Diagnostic{
			Kind:             DiagnosticEmptyRoot,
			FixedPlate:       root,
			Root:             root,
			EdgeIndex:        -1,
			WinningEdgeIndex: -1,
			Message:          fmt.Sprintf("no poles have fixed plate %s, tree is empty", root),
		})
	}

	for head := 0; head < len(queue); head++ {
		if head%4096 == 0 {
			if err := ctx.Err(); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "build cancelled")
				t.resetLocked()
				recordBuildMetrics(ctx, time.Since(start), stats, false)
				return fmt.Errorf("build tree for root %s: %w", root, err)
			}
		}

		i := queue[head]
		e := edges[i]
		stats.EdgesVisited++

		if winner, reached := t.reachedBy(byMoving, root, e.MovingPlate); reached {
			stats.CrossOvers++
			parents[i] = -1
			diags = append(diags, Diagnostic{
				Kind:             DiagnosticCrossOver,
				FixedPlate:       e.FixedPlate,
				MovingPlate:      e.MovingPlate,
				Root:             root,
				EdgeIndex:        i,
				WinningEdgeIndex: winner,
				Message: fmt.Sprintf("edge %d (%s) reaches plate %s which is already reached, not explored",
					i, e, e.MovingPlate),
			})
			continue
		}

		byMoving[e.MovingPlate] = append(byMoving[e.MovingPlate], i)
		if parents[i] < 0 {
			states[i] = edgeRootmost
			rootmost = append(rootmost, i)
		} else {
			states[i] = edgeChild
			children[parents[i]] = append(children[parents[i]], i)
		}

		for _, c := range byFixed[e.MovingPlate] {
			if c == e.Pair {
				continue
			}
			parents[c] = i
			depths[c] = depths[i] + 1
			composed[c] = rotation.Compose(composed[i], edges[c].Relative)
			queue = append(queue, c)
		}
	}

	for plate, indices := range byMoving {
		if len(indices) != 1 {
			err := fmt.Errorf("%w: plate %s has %d edges", ErrInconsistentTree, plate, len(indices))
			span.RecordError(err)
			span.SetStatus(codes.Error, "inconsistent tree")
			t.resetLocked()
			recordBuildMetrics(ctx, time.Since(start), stats, false)
			return err
		}
	}

	stats.RootmostEdges = len(rootmost)
	stats.IndexedPlates = len(byMoving)
	stats.DurationMicro = time.Since(start).Microseconds()

	// Drop the pending data left on rejected edges.
	for i := range states {
		if states[i] == edgeUnassigned {
			composed[i] = rotation.Rotation{}
			depths[i] = 0
			parents[i] = -1
		}
	}

	t.state = TreeStateBuilt
	t.root = root
	t.generation = generation
	t.edges = edges
	t.states = states
	t.parents = parents
	t.depths = depths
	t.composed = composed
	t.children = children
	t.rootmost = rootmost
	t.byMoving = byMoving
	t.report = BuildReport{
		Root:        root,
		Generation:  generation,
		Stats:       stats,
		Diagnostics: diags,
	}

	for _, d := range diags {
		t.logger.Warn("reconstruction tree diagnostic",
			slog.String("kind", d.Kind.String()),
			slog.String("root", root.String()),
			slog.String("fixed_plate", d.FixedPlate.String()),
			slog.String("moving_plate", d.MovingPlate.String()),
			slog.Int("edge", d.EdgeIndex),
			slog.Int("winning_edge", d.WinningEdgeIndex),
		)
	}

	setBuildSpanResult(span, stats)
	recordBuildMetrics(ctx, time.Since(start), stats, true)
	return nil
}

// reachedBy reports whether plate is already reached, and by which edge.
// The root is reached by no edge (-1).
func (t *Tree) reachedBy(byMoving map[PlateID][]int, root, plate PlateID) (int, bool) {
	if plate == root {
		return -1, true
	}
	if indices, ok := byMoving[plate]; ok && len(indices) > 0 {
		return indices[0], true
	}
	return -1, false
}

// Demolish discards the current build. The next query rebuilds.
func (t *Tree) Demolish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

// resetLocked returns the tree to the empty state. Caller must hold t.mu.
func (t *Tree) resetLocked() {
	t.state = TreeStateEmpty
	t.root = 0
	t.generation = 0
	t.edges = nil
	t.states = nil
	t.parents = nil
	t.depths = nil
	t.composed = nil
	t.children = nil
	t.rootmost = nil
	t.byMoving = nil
	t.report = BuildReport{}
}

// isCurrentLocked reports whether the tree is built for root from the
// graph's current generation. Caller must hold t.mu.
func (t *Tree) isCurrentLocked(root PlateID) bool {
	return t.state == TreeStateBuilt && t.root == root && t.generation == t.graph.Generation()
}

// withBuilt runs fn against a tree built for root, building first if the
// tree is empty, built for another root, or stale.
func (t *Tree) withBuilt(root PlateID, fn func() error) error {
	t.mu.RLock()
	if t.isCurrentLocked(root) {
		defer t.mu.RUnlock()
		return fn()
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isCurrentLocked(root) {
		if err := t.buildLocked(context.Background(), root); err != nil {
			return err
		}
	}
	return fn()
}

// treeEdgeLocked returns the placed edge at arena index i.
func (t *Tree) treeEdgeLocked(i int) TreeEdge {
	return TreeEdge{
		Edge:     t.edges[i],
		Composed: t.composed[i],
		Parent:   t.parents[i],
		Depth:    t.depths[i],
	}
}

// FindEdgesWhoseMovingPlateIDMatch returns the tree edge for moving under
// root. The result holds zero or one edge.
//
// Description:
//
//	Builds the tree for root first if needed. Zero edges means the plate
//	is not reachable from root (or is the root itself).
//
// Outputs:
//
//	[]TreeEdge - Zero or one edge.
//	error - ErrInconsistentTree if more than one edge is indexed.
func (t *Tree) FindEdgesWhoseMovingPlateIDMatch(moving, root PlateID) ([]TreeEdge, error) {
	var out []TreeEdge
	err := t.withBuilt(root, func() error {
		indices := t.byMoving[moving]
		if len(indices) > 1 {
			return fmt.Errorf("%w: plate %s has %d edges", ErrInconsistentTree, moving, len(indices))
		}
		for _, i := range indices {
			out = append(out, t.treeEdgeLocked(i))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompositeRotation returns the absolute rotation of plate relative to root.
//
// The root itself gets the identity without a build. An unreachable plate
// returns false and a nil error.
func (t *Tree) CompositeRotation(plate, root PlateID) (rotation.Rotation, bool, error) {
	if plate == root {
		return rotation.Identity(), true, nil
	}

	matches, err := t.FindEdgesWhoseMovingPlateIDMatch(plate, root)
	if err != nil {
		return rotation.Rotation{}, false, err
	}
	if len(matches) == 0 {
		return rotation.Rotation{}, false, nil
	}
	return matches[0].Composed, true, nil
}

// ReconstructPoint rotates p from its present-day position on plate to its
// position relative to root at the tree's time.
//
// Outputs:
//
//	rotation.PointOnSphere - The reconstructed point. p itself when plate
//	                         equals root.
//	bool - False if plate is not reachable from root. Not an error.
//	error - Non-nil only if the tree is inconsistent or the build failed.
//
// Example:
//
//	p2, found, err := tree.ReconstructPoint(p, 801, 0)
func (t *Tree) ReconstructPoint(p rotation.PointOnSphere, plate, root PlateID) (rotation.PointOnSphere, bool, error) {
	if plate == root {
		return p, true, nil
	}
	r, found, err := t.CompositeRotation(plate, root)
	if err != nil || !found {
		return rotation.PointOnSphere{}, false, err
	}
	return r.Apply(p), true, nil
}

// ReconstructPolyline is ReconstructPoint for every vertex of l.
func (t *Tree) ReconstructPolyline(l rotation.Polyline, plate, root PlateID) (rotation.Polyline, bool, error) {
	if plate == root {
		return l, true, nil
	}
	r, found, err := t.CompositeRotation(plate, root)
	if err != nil || !found {
		return rotation.Polyline{}, false, err
	}
	return r.ApplyPolyline(l), true, nil
}

// Root returns the root of the current build. Zero when empty.
func (t *Tree) Root() PlateID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// State returns the lifecycle state.
func (t *Tree) State() TreeState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Graph returns the graph the tree is built over.
func (t *Tree) Graph() *Graph {
	return t.graph
}

// RootmostEdges returns the edges whose fixed plate is the root and that
// were accepted into the tree, in graph insertion order.
func (t *Tree) RootmostEdges() ([]TreeEdge, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.state != TreeStateBuilt {
		return nil, ErrTreeNotBuilt
	}
	out := make([]TreeEdge, 0, len(t.rootmost))
	for _, i := range t.rootmost {
		out = append(out, t.treeEdgeLocked(i))
	}
	return out, nil
}

// Children returns the child edges of the edge at arena index edgeIndex.
// Edges not placed in the tree have no children.
func (t *Tree) Children(edgeIndex int) ([]TreeEdge, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.state != TreeStateBuilt {
		return nil, ErrTreeNotBuilt
	}
	if edgeIndex < 0 || edgeIndex >= len(t.edges) {
		return nil, fmt.Errorf("%w: %d", ErrEdgeIndexOutOfRange, edgeIndex)
	}
	out := make([]TreeEdge, 0, len(t.children[edgeIndex]))
	for _, i := range t.children[edgeIndex] {
		out = append(out, t.treeEdgeLocked(i))
	}
	return out, nil
}

// ReachablePlates returns every plate reachable from the root, sorted.
// The root itself is not included.
func (t *Tree) ReachablePlates() ([]PlateID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.state != TreeStateBuilt {
		return nil, ErrTreeNotBuilt
	}
	out := make([]PlateID, 0, len(t.byMoving))
	for plate := range t.byMoving {
		out = append(out, plate)
	}
	slices.Sort(out)
	return out, nil
}

// PathToRoot returns the chain of edges from the rootmost edge down to the
// edge whose moving plate is plate. Empty for the root or an unreachable
// plate.
func (t *Tree) PathToRoot(plate PlateID) ([]TreeEdge, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.state != TreeStateBuilt {
		return nil, ErrTreeNotBuilt
	}
	indices := t.byMoving[plate]
	if len(indices) == 0 {
		return nil, nil
	}

	var path []TreeEdge
	for i := indices[0]; i >= 0; i = t.parents[i] {
		path = append(path, t.treeEdgeLocked(i))
	}
	slices.Reverse(path)
	return path, nil
}

// Report returns the outcome of the most recent build.
func (t *Tree) Report() (BuildReport, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.state != TreeStateBuilt {
		return BuildReport{}, ErrTreeNotBuilt
	}
	report := t.report
	report.Diagnostics = slices.Clone(t.report.Diagnostics)
	return report, nil
}
