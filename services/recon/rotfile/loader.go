// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rotfile

import (
	"context"
	"fmt"

	"github.com/AleutianAI/platerecon/services/recon/graph"
)

// LoadGraph builds the reconstruction graph for time from src.
//
// Duplicate poles are skipped by the graph and show up in its
// diagnostics. Any other insertion error aborts the load.
//
// Example:
//
//	g, err := rotfile.LoadGraph(ctx, model, 100.0)
//	tree, err := g.BuildTree(ctx, 0)
func LoadGraph(ctx context.Context, src PoleSource, time float64, opts ...graph.GraphOption) (*graph.Graph, error) {
	poles, err := src.PolesAt(ctx, time)
	if err != nil {
		return nil, fmt.Errorf("poles at %v Ma: %w", time, err)
	}

	g := graph.NewGraph(opts...)
	for _, p := range poles {
		if _, err := g.InsertTotalReconstructionPole(p.FixedPlate, p.MovingPlate, p.Rotation, p.Provenance); err != nil {
			return nil, fmt.Errorf("load graph at %v Ma: %w", time, err)
		}
	}
	return g, nil
}
