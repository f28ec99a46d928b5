// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/platerecon/services/recon/rotfile"
)

const storeRot = `801 0.0 90.0 0.0 0.0 000 !AUS
801 10.0 13.9 34.6 -6.1 000
802 10.0 -10.0 140.0 3.2 801
`

func newTestStore(t *testing.T) *PoleStore {
	t.Helper()
	db, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPoleStore(db)
}

func parseModel(t *testing.T, src string) *rotfile.Model {
	t.Helper()
	model, err := rotfile.ParseStrict(strings.NewReader(src), "store.rot")
	require.NoError(t, err)
	return model
}

func TestPoleStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	model := parseModel(t, storeRot)

	info, err := store.SaveModel(ctx, "global", model)
	require.NoError(t, err)
	assert.Equal(t, "global", info.Name)
	assert.Equal(t, 3, info.SampleCount)
	assert.NotEmpty(t, info.ImportID)

	loaded, err := store.LoadModel(ctx, "global")
	require.NoError(t, err)
	assert.Equal(t, model.Samples(), loaded.Samples())
	assert.Equal(t, "store.rot", loaded.Source())

	want, err := model.PolesAt(ctx, 10)
	require.NoError(t, err)
	got, err := loaded.PolesAt(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPoleStore_SaveReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveModel(ctx, "m", parseModel(t, storeRot))
	require.NoError(t, err)
	_, err = store.SaveModel(ctx, "m", parseModel(t, "701 5.0 10.0 10.0 1.0 000\n"))
	require.NoError(t, err)

	loaded, err := store.LoadModel(ctx, "m")
	require.NoError(t, err)
	require.Equal(t, 1, loaded.SampleCount())
	assert.EqualValues(t, 701, loaded.Samples()[0].MovingPlate)
}

func TestPoleStore_ListAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	model := parseModel(t, storeRot)

	for _, name := range []string{"b", "a", "ab"} {
		_, err := store.SaveModel(ctx, name, model)
		require.NoError(t, err)
	}

	infos, err := store.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "ab", infos[1].Name)
	assert.Equal(t, "b", infos[2].Name)

	require.NoError(t, store.DeleteModel(ctx, "a"))

	_, err = store.LoadModel(ctx, "a")
	assert.ErrorIs(t, err, ErrModelNotFound)

	// Deleting "a" must not touch "ab".
	loaded, err := store.LoadModel(ctx, "ab")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.SampleCount())

	assert.ErrorIs(t, store.DeleteModel(ctx, "a"), ErrModelNotFound)
}

func TestPoleStore_Errors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.LoadModel(ctx, "missing")
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = store.Info(ctx, "missing")
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = store.SaveModel(ctx, "", parseModel(t, storeRot))
	assert.ErrorIs(t, err, ErrInvalidModelName)

	_, err = store.SaveModel(ctx, "a/b", parseModel(t, storeRot))
	assert.ErrorIs(t, err, ErrInvalidModelName)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.SaveModel(cancelled, "x", parseModel(t, storeRot))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir

	db, err := Open(cfg)
	require.NoError(t, err)
	store := NewPoleStore(db)
	_, err = store.SaveModel(context.Background(), "disk", parseModel(t, storeRot))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(cfg)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, dir, db.Path())
	assert.False(t, db.InMemory())

	loaded, err := NewPoleStore(db).LoadModel(context.Background(), "disk")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.SampleCount())
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(DefaultConfig())
	assert.Error(t, err)
}
