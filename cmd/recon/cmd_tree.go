// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/platerecon/pkg/ux"
	"github.com/AleutianAI/platerecon/services/recon"
)

func (a *app) newTreeCmd() *cobra.Command {
	var t float64
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Describe the reconstruction tree at a time",
		Long: `Build the reconstruction tree for --time anchored at --anchor and list
its rootmost edges, reachable plates and cross-over diagnostics.

With --plate, the chain of edges from the anchor down to that plate is
shown as well.

Examples:
  recon tree --rot global.rot --time 40
  recon tree --rot global.rot --time 40 --anchor 701 --plate 802 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			anchor, err := plateFlag(cmd, "anchor")
			if err != nil {
				return err
			}
			plate, err := plateFlag(cmd, "plate")
			if err != nil {
				return err
			}
			svc, err := a.newService(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := svc.TreeSummary(cmd.Context(), recon.TreeRequest{
				Time:   t,
				Anchor: anchor,
				Plate:  plate,
			})
			if err != nil {
				return err
			}
			return a.printer.Result(resp, func() { a.printTree(resp) })
		},
	}
	cmd.Flags().Float64VarP(&t, "time", "t", 0, "Reconstruction time in Ma")
	cmd.Flags().Uint32("anchor", 0, "Anchor plate")
	cmd.Flags().Uint32P("plate", "p", 0, "Show the path to this plate")
	return cmd
}

func (a *app) printTree(resp *recon.TreeResponse) {
	a.printer.Title(fmt.Sprintf("Tree for model %s at %g Ma, anchor %d", resp.Model, resp.Time, resp.Anchor))
	a.printer.KeyValues([]ux.KV{
		{Key: "poles", Value: strconv.Itoa(resp.Poles)},
		{Key: "plates", Value: strconv.Itoa(len(resp.Plates))},
		{Key: "cross-overs", Value: strconv.Itoa(resp.Stats.CrossOvers)},
	})
	a.printer.Table(treeHeaders, treeRows(resp.Rootmost))
	if len(resp.Path) > 0 {
		a.printer.Title("Path")
		a.printer.Table(treeHeaders, treeRows(resp.Path))
	}
	for _, d := range resp.Diagnostics {
		a.printer.Warning(d.String())
	}
}

var treeHeaders = []string{"edge", "fixed", "moving", "depth", "composed", "source"}

func treeRows(nodes []recon.TreeNode) [][]string {
	rows := make([][]string, len(nodes))
	for i, n := range nodes {
		moving := strconv.FormatUint(uint64(n.MovingPlate), 10)
		if n.Reversed {
			moving += " (rev)"
		}
		rows[i] = []string{
			strconv.Itoa(n.Edge),
			strconv.FormatUint(uint64(n.FixedPlate), 10),
			moving,
			strconv.Itoa(n.Depth),
			formatPole(&n.Composed),
			n.Source,
		}
	}
	return rows
}

func (a *app) newTimesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "times",
		Short: "List the sample times of a model",
		Long: `List the distinct times at which the model has samples. Only these
times can be reconstructed; poles are not interpolated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService(cmd.Context())
			if err != nil {
				return err
			}
			times, err := svc.Times(a.modelName)
			if err != nil {
				return err
			}
			return a.printer.Result(times, func() {
				rows := make([][]string, len(times))
				for i, t := range times {
					rows[i] = []string{strconv.FormatFloat(t, 'g', -1, 64)}
				}
				a.printer.Table([]string{"time (Ma)"}, rows)
			})
		},
	}
}
