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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/platerecon/pkg/ux"
	"github.com/AleutianAI/platerecon/services/recon"
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// reconstructFlags are shared by the point and polyline subcommands.
type reconstructFlags struct {
	plate uint32
	time  float64
}

func (a *app) newReconstructCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconstruct",
		Short: "Reconstruct geometry to a past time",
		Long: `Rotate present-day geometry on a plate to its position at --time,
relative to the anchor plate (--anchor, default from config).

A plate that is not connected to the anchor at that time is reported as
not found; this is not an error.

Subcommands:
  point     - Reconstruct a single point
  polyline  - Reconstruct a polyline`,
	}

	var flags reconstructFlags
	cmd.PersistentFlags().Uint32VarP(&flags.plate, "plate", "p", 0, "Plate the geometry belongs to")
	cmd.PersistentFlags().Float64VarP(&flags.time, "time", "t", 0, "Reconstruction time in Ma")
	cmd.PersistentFlags().Uint32("anchor", 0, "Anchor plate held fixed")

	point := &cobra.Command{
		Use:   "point LAT LON",
		Short: "Reconstruct a single point",
		Long: `Reconstruct a single present-day point.

Examples:
  recon reconstruct point --rot global.rot --plate 801 --time 40 -- -25.3 133.8
  recon reconstruct point --plate 801 --time 40 --anchor 701 --json 10 20`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReconstructPoint(cmd, flags, args)
		},
	}

	polyline := &cobra.Command{
		Use:   "polyline LAT,LON LAT,LON...",
		Short: "Reconstruct a polyline",
		Long: `Reconstruct a present-day polyline given as LAT,LON vertices.

Examples:
  recon reconstruct polyline --plate 801 --time 40 -- -10,130 -20,135 -30,140`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReconstructPolyline(cmd, flags, args)
		},
	}

	cmd.AddCommand(point, polyline)
	return cmd
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func (a *app) runReconstructPoint(cmd *cobra.Command, flags reconstructFlags, args []string) error {
	ll, err := parseLatLon(args[0], args[1])
	if err != nil {
		return err
	}
	anchor, err := plateFlag(cmd, "anchor")
	if err != nil {
		return err
	}

	svc, err := a.newService(cmd.Context())
	if err != nil {
		return err
	}
	resp, err := svc.ReconstructPoint(cmd.Context(), recon.PointRequest{
		Time:   flags.time,
		Plate:  flags.plate,
		Anchor: anchor,
		Point:  ll,
	})
	if err != nil {
		return err
	}

	return a.printer.Result(resp, func() {
		a.printer.Title(fmt.Sprintf("Plate %d at %g Ma (anchor %d, model %s)", resp.Plate, resp.Time, resp.Anchor, resp.Model))
		if !resp.Found {
			a.printer.Warning(fmt.Sprintf("plate %d is not connected to anchor %d at %g Ma", resp.Plate, resp.Anchor, resp.Time))
			return
		}
		a.printer.KeyValues([]ux.KV{
			{Key: "present", Value: formatLatLon(ll)},
			{Key: "reconstructed", Value: formatLatLon(*resp.Point)},
			{Key: "rotation", Value: formatPole(resp.Rotation)},
		})
	})
}

func (a *app) runReconstructPolyline(cmd *cobra.Command, flags reconstructFlags, args []string) error {
	points := make([]recon.LatLon, len(args))
	for i, arg := range args {
		lat, lon, ok := strings.Cut(arg, ",")
		if !ok {
			return fmt.Errorf("vertex %d: want LAT,LON, got %q", i+1, arg)
		}
		ll, err := parseLatLon(lat, lon)
		if err != nil {
			return fmt.Errorf("vertex %d: %w", i+1, err)
		}
		points[i] = ll
	}
	anchor, err := plateFlag(cmd, "anchor")
	if err != nil {
		return err
	}

	svc, err := a.newService(cmd.Context())
	if err != nil {
		return err
	}
	resp, err := svc.ReconstructPolyline(cmd.Context(), recon.PolylineRequest{
		Time:   flags.time,
		Plate:  flags.plate,
		Anchor: anchor,
		Points: points,
	})
	if err != nil {
		return err
	}

	return a.printer.Result(resp, func() {
		a.printer.Title(fmt.Sprintf("Plate %d at %g Ma (anchor %d, model %s)", resp.Plate, resp.Time, resp.Anchor, resp.Model))
		if !resp.Found {
			a.printer.Warning(fmt.Sprintf("plate %d is not connected to anchor %d at %g Ma", resp.Plate, resp.Anchor, resp.Time))
			return
		}
		rows := make([][]string, len(points))
		for i := range points {
			rows[i] = []string{strconv.Itoa(i), formatLatLon(points[i]), formatLatLon(resp.Points[i])}
		}
		a.printer.Table([]string{"#", "present", "reconstructed"}, rows)
	})
}

// =============================================================================
// FORMATTING
// =============================================================================

func parseLatLon(latStr, lonStr string) (recon.LatLon, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return recon.LatLon{}, fmt.Errorf("latitude %q: %w", latStr, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return recon.LatLon{}, fmt.Errorf("longitude %q: %w", lonStr, err)
	}
	return recon.LatLon{Lat: lat, Lon: lon}, nil
}

func formatLatLon(ll recon.LatLon) string {
	return fmt.Sprintf("%.4f, %.4f", ll.Lat, ll.Lon)
}

func formatPole(p *recon.EulerPole) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f° about (%.4f, %.4f)", p.Angle, p.Lat, p.Lon)
}
