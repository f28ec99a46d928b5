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
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Watcher
// =============================================================================

type recordingReloader struct {
	mu    sync.Mutex
	calls []string
	svc   *Service
}

func (r *recordingReloader) LoadModelFile(ctx context.Context, name, path string) (ModelInfo, error) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
	return r.svc.LoadModelFile(ctx, name, path)
}

func (r *recordingReloader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestWatcher_ReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRotFile(t, dir, "model.rot", serviceRot)

	svc := NewService(DefaultServiceConfig(), WithLogger(quietLogger()))
	_, err := svc.LoadModelFile(context.Background(), "global", path)
	require.NoError(t, err)

	reloader := &recordingReloader{svc: svc}
	w, err := NewWatcher(reloader, quietLogger(), &WatcherOptions{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, w.Add("global", path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	changed := strings.Replace(serviceRot, "801 10.0 90.0 0.0  30.0 000", "801 10.0 90.0 0.0  60.0 000", 1)
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))

	require.Eventually(t, func() bool {
		resp, err := svc.ReconstructPoint(context.Background(), PointRequest{Time: 10, Plate: 801})
		return err == nil && resp.Found && resp.Point.Lon > 59
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, reloader.count(), 1)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeRotFile(t, dir, "model.rot", serviceRot)

	reloader := &recordingReloader{svc: NewService(DefaultServiceConfig(), WithLogger(quietLogger()))}
	w, err := NewWatcher(reloader, quietLogger(), &WatcherOptions{Debounce: 10 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, w.Add("global", path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	writeRotFile(t, dir, "notes.txt", "unrelated")
	time.Sleep(100 * time.Millisecond)
	w.Stop()

	assert.Zero(t, reloader.count())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(&recordingReloader{}, nil, nil)
	require.NoError(t, err)
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}

func TestWatcher_ContextCancelReleasesWatcher(t *testing.T) {
	dir := t.TempDir()
	path := writeRotFile(t, dir, "model.rot", serviceRot)

	reloader := &recordingReloader{svc: NewService(DefaultServiceConfig(), WithLogger(quietLogger()))}
	w, err := NewWatcher(reloader, quietLogger(), &WatcherOptions{Debounce: time.Hour})
	require.NoError(t, err)
	require.NoError(t, w.Add("global", path))

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	// Leave a debounce timer pending, then cancel without calling Stop.
	require.NoError(t, os.WriteFile(path, []byte(serviceRot), 0o644))
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.pending) > 0
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case <-w.done:
			return true
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.pending) == 0
	}, 2*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
	assert.Zero(t, reloader.count())
}
