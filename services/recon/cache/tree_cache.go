// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache keeps reconstruction graphs and trees between requests.
//
// A graph depends on (model, time) and is shared read-only by every tree
// built from it. A tree depends on (model, time, root). Both levels are LRU
// bounded and concurrent misses for one key are collapsed with singleflight.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/platerecon/services/recon/graph"
)

// Default capacities.
const (
	DefaultGraphCapacity = 32
	DefaultTreeCapacity  = 256
)

// GraphKey identifies a graph: one model at one time.
type GraphKey struct {
	Model string
	Time  float64
}

// String returns "model@time".
func (k GraphKey) String() string {
	return k.Model + "@" + strconv.FormatFloat(k.Time, 'g', -1, 64)
}

// TreeKey identifies a tree: one graph and one root.
type TreeKey struct {
	Model string
	Time  float64
	Root  graph.PlateID
}

// Graph returns the key of the graph the tree is built from.
func (k TreeKey) Graph() GraphKey {
	return GraphKey{Model: k.Model, Time: k.Time}
}

// String returns "model@time/root".
func (k TreeKey) String() string {
	return k.Graph().String() + "/" + k.Root.String()
}

// GraphLoader loads the graph for a model at a time.
type GraphLoader func(ctx context.Context, key GraphKey) (*graph.Graph, error)

// CacheOptions configures a TreeCache.
type CacheOptions struct {
	GraphCapacity int
	TreeCapacity  int
	Logger        *slog.Logger
}

// DefaultCacheOptions returns the default capacities.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		GraphCapacity: DefaultGraphCapacity,
		TreeCapacity:  DefaultTreeCapacity,
	}
}

// CacheOption is a functional option for TreeCache.
type CacheOption func(*CacheOptions)

// WithGraphCapacity bounds the number of cached graphs.
func WithGraphCapacity(n int) CacheOption {
	return func(o *CacheOptions) { o.GraphCapacity = n }
}

// WithTreeCapacity bounds the number of cached trees.
func WithTreeCapacity(n int) CacheOption {
	return func(o *CacheOptions) { o.TreeCapacity = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(o *CacheOptions) { o.Logger = logger }
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Graphs         int   `json:"graphs"`
	Trees          int   `json:"trees"`
	GraphHits      int64 `json:"graph_hits"`
	GraphMisses    int64 `json:"graph_misses"`
	TreeHits       int64 `json:"tree_hits"`
	TreeMisses     int64 `json:"tree_misses"`
	GraphLoads     int64 `json:"graph_loads"`
	TreeBuilds     int64 `json:"tree_builds"`
	GraphEvictions int64 `json:"graph_evictions"`
	TreeEvictions  int64 `json:"tree_evictions"`
}

// TreeCache caches graphs per (model, time) and trees per (model, time, root).
//
// Thread Safety: Safe for concurrent use.
type TreeCache struct {
	graphs *LRUCache[GraphKey, *graph.Graph]
	trees  *LRUCache[TreeKey, *graph.Tree]
	flight singleflight.Group
	logger *slog.Logger

	graphLoads atomic.Int64
	treeBuilds atomic.Int64
}

// NewTreeCache creates an empty cache.
func NewTreeCache(opts ...CacheOption) *TreeCache {
	options := DefaultCacheOptions()
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &TreeCache{
		graphs: NewLRUCache[GraphKey, *graph.Graph](options.GraphCapacity),
		trees:  NewLRUCache[TreeKey, *graph.Tree](options.TreeCapacity),
		logger: logger,
	}
	c.graphs.OnEvict(func(GraphKey, *graph.Graph) { recordEviction(levelGraph) })
	// Evicted trees are only dropped; callers may still hold them.
	c.trees.OnEvict(func(TreeKey, *graph.Tree) { recordEviction(levelTree) })
	return c
}

// GetOrBuild returns the built tree for key.
//
// Description:
//
//	On a miss the graph for (model, time) is taken from the graph cache,
//	or loaded with load, and a tree is built for key.Root. Concurrent
//	callers missing on the same key wait for a single load and build.
//
// Outputs:
//
//	*graph.Tree - A built tree. Shared between callers; read-only use.
//	              It stays built after eviction from the cache.
//	error - Any error from load or from the tree build. Not cached.
func (c *TreeCache) GetOrBuild(ctx context.Context, key TreeKey, load GraphLoader) (*graph.Tree, error) {
	if tree, ok := c.trees.Get(key); ok {
		recordHit(ctx, levelTree)
		return tree, nil
	}
	recordMiss(ctx, levelTree)

	v, err, _ := c.flight.Do("tree:"+key.String(), func() (interface{}, error) {
		if tree, ok := c.trees.Get(key); ok {
			return tree, nil
		}

		g, err := c.Graph(ctx, key.Graph(), load)
		if err != nil {
			return nil, err
		}
		tree, err := g.BuildTree(ctx, key.Root)
		if err != nil {
			return nil, fmt.Errorf("build tree %s: %w", key, err)
		}
		c.treeBuilds.Add(1)
		recordBuild(ctx, levelTree)
		c.trees.Set(key, tree)
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.Tree), nil
}

// Graph returns the graph for key, loading it on a miss.
func (c *TreeCache) Graph(ctx context.Context, key GraphKey, load GraphLoader) (*graph.Graph, error) {
	if g, ok := c.graphs.Get(key); ok {
		recordHit(ctx, levelGraph)
		return g, nil
	}
	recordMiss(ctx, levelGraph)

	v, err, _ := c.flight.Do("graph:"+key.String(), func() (interface{}, error) {
		if g, ok := c.graphs.Get(key); ok {
			return g, nil
		}
		g, err := load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load graph %s: %w", key, err)
		}
		c.graphLoads.Add(1)
		recordBuild(ctx, levelGraph)
		c.graphs.Set(key, g)
		c.logger.Debug("graph loaded",
			slog.String("model", key.Model),
			slog.Float64("time", key.Time),
			slog.Int("poles", g.PoleCount()),
		)
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*graph.Graph), nil
}

// Invalidate drops every graph and tree of model. Returns the number of
// entries removed.
func (c *TreeCache) Invalidate(model string) int {
	n := c.trees.DeleteFunc(func(k TreeKey) bool { return k.Model == model })
	n += c.graphs.DeleteFunc(func(k GraphKey) bool { return k.Model == model })
	if n > 0 {
		c.logger.Info("cache invalidated", slog.String("model", model), slog.Int("entries", n))
	}
	return n
}

// Purge empties the cache and resets its counters.
func (c *TreeCache) Purge() {
	c.trees.Purge()
	c.graphs.Purge()
	c.graphLoads.Store(0)
	c.treeBuilds.Store(0)
}

// Stats returns a snapshot of the cache counters.
func (c *TreeCache) Stats() Stats {
	gh, gm := c.graphs.Stats()
	th, tm := c.trees.Stats()
	return Stats{
		Graphs:         c.graphs.Len(),
		Trees:          c.trees.Len(),
		GraphHits:      gh,
		GraphMisses:    gm,
		TreeHits:       th,
		TreeMisses:     tm,
		GraphLoads:     c.graphLoads.Load(),
		TreeBuilds:     c.treeBuilds.Load(),
		GraphEvictions: c.graphs.Evictions(),
		TreeEvictions:  c.trees.Evictions(),
	}
}
