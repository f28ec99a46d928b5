// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/platerecon/pkg/validation"
	"github.com/AleutianAI/platerecon/services/recon/rotfile"
	badgerstore "github.com/AleutianAI/platerecon/services/recon/storage/badger"
)

// All poles at 10 Ma share the north pole axis, so composed angles add.
const serviceRot = `801  0.0 90.0 0.0   0.0 000 !AUS
801 10.0 90.0 0.0  30.0 000
802  0.0 90.0 0.0   0.0 801 !ANT
802 10.0 90.0 0.0  15.0 801
701 10.0 90.0 0.0 -20.0 000 !AFR
`

const testEps = 1e-9

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeRotFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	opts = append([]ServiceOption{WithLogger(quietLogger())}, opts...)
	svc := NewService(DefaultServiceConfig(), opts...)
	model, err := rotfile.ParseStrict(strings.NewReader(serviceRot), "service.rot")
	require.NoError(t, err)
	svc.UseModel("global", model)
	return svc
}

func u32(v uint32) *uint32 { return &v }

// =============================================================================
// Model management
// =============================================================================

func TestService_LoadModelFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRotFile(t, dir, "model.rot", serviceRot+"bad line\n")

	svc := NewService(DefaultServiceConfig(), WithLogger(quietLogger()))
	info, err := svc.LoadModelFile(context.Background(), "global", path)
	require.NoError(t, err)

	assert.Equal(t, "global", info.Name)
	assert.Equal(t, "model.rot", info.Source)
	assert.Equal(t, path, info.Path)
	assert.Equal(t, 5, info.Samples)
	assert.Equal(t, 3, info.Sequences)
	assert.Equal(t, 2, info.Times)
	assert.Equal(t, 1, info.ParseErrors)
	assert.NotEmpty(t, info.LoadID)

	models := svc.Models()
	require.Len(t, models, 1)
	assert.Equal(t, "global", models[0].Name)
}

func TestService_LoadModelFileErrors(t *testing.T) {
	svc := NewService(DefaultServiceConfig(), WithLogger(quietLogger()))
	ctx := context.Background()

	_, err := svc.LoadModelFile(ctx, "missing", filepath.Join(t.TempDir(), "nope.rot"))
	assert.Error(t, err)

	empty := writeRotFile(t, t.TempDir(), "empty.rot", "999 0 0 0 0 999 !only a comment\n")
	_, err = svc.LoadModelFile(ctx, "empty", empty)
	assert.ErrorIs(t, err, rotfile.ErrEmptyModel)

	good := writeRotFile(t, t.TempDir(), "good.rot", serviceRot)
	_, err = svc.LoadModelFile(ctx, "bad name", good)
	assert.ErrorIs(t, err, validation.ErrInvalidModelName)
	assert.Empty(t, svc.Models())
}

func TestService_LoadModelsConcurrently(t *testing.T) {
	dir := t.TempDir()
	files := []ModelFile{
		{Name: "a", Path: writeRotFile(t, dir, "a.rot", serviceRot)},
		{Name: "b", Path: writeRotFile(t, dir, "b.rot", serviceRot)},
		{Name: "c", Path: writeRotFile(t, dir, "c.rot", serviceRot)},
	}
	svc := NewService(DefaultServiceConfig(), WithLogger(quietLogger()))
	require.NoError(t, svc.LoadModels(context.Background(), files))

	names := make([]string, 0, 3)
	for _, m := range svc.Models() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestService_LoadModelsReportsFailure(t *testing.T) {
	dir := t.TempDir()
	files := []ModelFile{
		{Name: "ok", Path: writeRotFile(t, dir, "ok.rot", serviceRot)},
		{Name: "bad", Path: filepath.Join(dir, "missing.rot")},
	}
	svc := NewService(DefaultServiceConfig(), WithLogger(quietLogger()))
	assert.Error(t, svc.LoadModels(context.Background(), files))
}

func TestService_DefaultModelResolution(t *testing.T) {
	svc := newTestService(t)
	assert.Equal(t, "global", svc.DefaultModel())

	model, err := rotfile.ParseStrict(strings.NewReader(serviceRot), "other.rot")
	require.NoError(t, err)
	svc.UseModel("other", model)
	assert.Equal(t, "", svc.DefaultModel())

	_, err = svc.ReconstructPoint(context.Background(), PointRequest{Time: 10, Plate: 801})
	assert.ErrorIs(t, err, ErrModelNotLoaded)

	cfg := DefaultServiceConfig()
	cfg.DefaultModel = "other"
	configured := NewService(cfg, WithLogger(quietLogger()))
	assert.Equal(t, "other", configured.DefaultModel())
}

func TestService_RemoveModel(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.RemoveModel("global"))
	assert.ErrorIs(t, svc.RemoveModel("global"), ErrModelNotLoaded)
	assert.Empty(t, svc.Models())
}

func TestService_Times(t *testing.T) {
	svc := newTestService(t)
	times, err := svc.Times("global")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10}, times)

	_, err = svc.Times("nope")
	assert.ErrorIs(t, err, ErrModelNotLoaded)
}

// =============================================================================
// Reconstruction
// =============================================================================

func TestService_ReconstructPoint(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		plate   uint32
		anchor  *uint32
		wantLon float64
	}{
		{"direct", 801, nil, 30},
		{"two levels", 802, nil, 45},
		{"negative angle", 701, nil, -20},
		{"anchored on 801", 802, u32(801), 15},
		{"reversed edge", 0, u32(801), -30},
		{"plate is anchor", 801, u32(801), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.ReconstructPoint(ctx, PointRequest{
				Time: 10, Plate: tt.plate, Anchor: tt.anchor, Point: LatLon{Lat: 0, Lon: 0},
			})
			require.NoError(t, err)
			require.True(t, resp.Found)
			require.NotNil(t, resp.Point)
			assert.Equal(t, "global", resp.Model)
			assert.InDelta(t, 0, resp.Point.Lat, testEps)
			assert.InDelta(t, tt.wantLon, resp.Point.Lon, 1e-9)
		})
	}
}

func TestService_ReconstructPointNotFound(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.ReconstructPoint(context.Background(), PointRequest{
		Time: 10, Plate: 999, Point: LatLon{Lat: 10, Lon: 10},
	})
	require.NoError(t, err)
	assert.False(t, resp.Found)
	assert.Nil(t, resp.Point)
	assert.Nil(t, resp.Rotation)
	assert.Equal(t, uint32(0), resp.Anchor)
}

func TestService_ReconstructPointNoPolesAtTime(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.ReconstructPoint(context.Background(), PointRequest{
		Time: 5, Plate: 801, Point: LatLon{Lat: 0, Lon: 0},
	})
	require.NoError(t, err)
	assert.False(t, resp.Found)
}

func TestService_ReconstructPointErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ReconstructPoint(ctx, PointRequest{Time: -1, Plate: 801})
	assert.ErrorIs(t, err, ErrInvalidTime)

	_, err = svc.ReconstructPoint(ctx, PointRequest{Time: math.Inf(1), Plate: 801})
	assert.ErrorIs(t, err, ErrInvalidTime)

	_, err = svc.ReconstructPoint(ctx, PointRequest{Time: 10, Plate: 801, Point: LatLon{Lat: 91}})
	assert.Error(t, err)
	assert.True(t, isClientError(err))

	_, err = svc.ReconstructPoint(ctx, PointRequest{Model: "nope", Time: 10, Plate: 801})
	assert.ErrorIs(t, err, ErrModelNotLoaded)
}

func TestService_ReconstructPolyline(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.ReconstructPolyline(context.Background(), PolylineRequest{
		Time:   10,
		Plate:  801,
		Points: []LatLon{{Lat: 0, Lon: 0}, {Lat: 10, Lon: 0}},
	})
	require.NoError(t, err)
	require.True(t, resp.Found)
	require.Len(t, resp.Points, 2)
	assert.InDelta(t, 30, resp.Points[0].Lon, 1e-9)
	assert.InDelta(t, 10, resp.Points[1].Lat, 1e-9)
	assert.InDelta(t, 30, resp.Points[1].Lon, 1e-9)
	require.NotNil(t, resp.Rotation)
	assert.InDelta(t, 30, math.Abs(resp.Rotation.Angle), 1e-9)
}

func TestService_ReconstructPolylineNeedsTwoPoints(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ReconstructPolyline(context.Background(), PolylineRequest{
		Time: 10, Plate: 801, Points: []LatLon{{Lat: 0, Lon: 0}},
	})
	assert.True(t, isClientError(err))
}

func TestService_TreeSummary(t *testing.T) {
	svc := newTestService(t)
	resp, err := svc.TreeSummary(context.Background(), TreeRequest{Time: 10, Plate: u32(802)})
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Poles)
	assert.Equal(t, []uint32{701, 801, 802}, resp.Plates)
	require.Len(t, resp.Rootmost, 2)
	assert.Equal(t, uint32(801), resp.Rootmost[0].MovingPlate)
	assert.Equal(t, uint32(701), resp.Rootmost[1].MovingPlate)
	assert.Equal(t, "service.rot:2", resp.Rootmost[0].Source)

	require.Len(t, resp.Path, 2)
	assert.Equal(t, uint32(801), resp.Path[0].MovingPlate)
	assert.Equal(t, uint32(802), resp.Path[1].MovingPlate)
	assert.Equal(t, 1, resp.Path[1].Depth)
	assert.InDelta(t, 45, math.Abs(resp.Path[1].Composed.Angle), 1e-9)
	assert.Zero(t, resp.Stats.CrossOvers)
}

func TestService_TreeSummaryUnreachablePlate(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.TreeSummary(context.Background(), TreeRequest{Time: 10, Plate: u32(999)})
	assert.ErrorIs(t, err, ErrPlateNotFound)
}

func TestService_TreesAreCached(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ReconstructPoint(ctx, PointRequest{Time: 10, Plate: 802})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats := svc.CacheStats()
	assert.Equal(t, int64(1), stats.TreeBuilds)
	assert.Equal(t, int64(1), stats.GraphLoads)
	assert.Equal(t, 1, stats.Trees)
}

func TestService_TreeHeldAcrossEviction(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.TreeCapacity = 1
	svc := NewService(cfg, WithLogger(quietLogger()))
	model, err := rotfile.ParseStrict(strings.NewReader(serviceRot), "service.rot")
	require.NoError(t, err)
	svc.UseModel("m", model)
	ctx := context.Background()

	held, _, err := svc.Tree(ctx, "m", 10, 0)
	require.NoError(t, err)
	_, _, err = svc.Tree(ctx, "m", 10, 801)
	require.NoError(t, err)
	assert.Equal(t, int64(1), svc.CacheStats().TreeEvictions)

	rootmost, err := held.RootmostEdges()
	require.NoError(t, err)
	assert.Len(t, rootmost, 2)
	_, err = held.Report()
	require.NoError(t, err)

	resp, err := svc.TreeSummary(ctx, TreeRequest{Model: "m", Time: 10, Plate: u32(802)})
	require.NoError(t, err)
	assert.Equal(t, []uint32{701, 801, 802}, resp.Plates)
}

func TestService_ReplacingModelInvalidatesTrees(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	resp, err := svc.ReconstructPoint(ctx, PointRequest{Time: 10, Plate: 801})
	require.NoError(t, err)
	assert.InDelta(t, 30, resp.Point.Lon, 1e-9)

	changed := strings.Replace(serviceRot, "801 10.0 90.0 0.0  30.0 000", "801 10.0 90.0 0.0  50.0 000", 1)
	model, err := rotfile.ParseStrict(strings.NewReader(changed), "service.rot")
	require.NoError(t, err)
	svc.UseModel("global", model)

	resp, err = svc.ReconstructPoint(ctx, PointRequest{Time: 10, Plate: 801})
	require.NoError(t, err)
	assert.InDelta(t, 50, resp.Point.Lon, 1e-9)
}

func TestService_ContextCancelled(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ReconstructPoint(ctx, PointRequest{Time: 10, Plate: 801})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

// =============================================================================
// Pole store
// =============================================================================

func TestService_PersistsAndRestoresModels(t *testing.T) {
	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := badgerstore.NewPoleStore(db)

	path := writeRotFile(t, t.TempDir(), "model.rot", serviceRot)
	first := NewService(DefaultServiceConfig(), WithLogger(quietLogger()), WithPoleStore(store))
	_, err = first.LoadModelFile(context.Background(), "global", path)
	require.NoError(t, err)

	second := NewService(DefaultServiceConfig(), WithLogger(quietLogger()), WithPoleStore(store))
	n, err := second.LoadStoredModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resp, err := second.ReconstructPoint(context.Background(), PointRequest{Time: 10, Plate: 802})
	require.NoError(t, err)
	assert.InDelta(t, 45, resp.Point.Lon, 1e-9)
}

func TestService_LoadStoredModelsWithoutStore(t *testing.T) {
	svc := NewService(DefaultServiceConfig(), WithLogger(quietLogger()))
	_, err := svc.LoadStoredModels(context.Background())
	assert.ErrorIs(t, err, ErrStoreDisabled)
}
