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
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Debounce is how long a file must be quiet before it is reloaded.
	// Default: 250ms
	Debounce time.Duration
}

// DefaultWatcherOptions returns sensible defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{Debounce: 250 * time.Millisecond}
}

// Reloader loads a model from a file. *Service satisfies it.
type Reloader interface {
	LoadModelFile(ctx context.Context, name, path string) (ModelInfo, error)
}

// Watcher reloads models when their rotation files change.
//
// # Description
//
// Watches the parent directory of every registered file, since editors
// often replace files by rename. Events for one file are debounced; once
// the file has been quiet for the debounce window it is reloaded, which
// also drops the model's cached trees. A reload that fails leaves the
// previous model in place.
//
// # Thread Safety
//
// Safe for concurrent use. Reloads run on the watcher goroutine.
type Watcher struct {
	reloader Reloader
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	files   map[string]string // absolute path -> model name
	pending map[string]*time.Timer

	reloads chan string
	done    chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
}

// NewWatcher creates a Watcher. Call Start to begin watching.
func NewWatcher(reloader Reloader, logger *slog.Logger, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		reloader: reloader,
		watcher:  fw,
		debounce: opts.Debounce,
		logger:   logger,
		files:    make(map[string]string),
		pending:  make(map[string]*time.Timer),
		reloads:  make(chan string, 64),
		done:     make(chan struct{}),
	}, nil
}

// Add registers path as the source of model name.
func (w *Watcher) Add(name, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	w.mu.Lock()
	w.files[abs] = name
	w.mu.Unlock()
	return nil
}

// Start runs the event loop until ctx is cancelled or Stop is called.
// Cancelling ctx releases the fsnotify watcher and pending reloads.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.reloadLoop(ctx)
}

// Stop stops watching and waits for the loops to exit.
func (w *Watcher) Stop() {
	w.shutdown()
	w.wg.Wait()
}

// shutdown closes the watcher once. Safe to call from the loops.
func (w *Watcher) shutdown() {
	w.stop.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		for _, t := range w.pending {
			t.Stop()
		}
		w.pending = make(map[string]*time.Timer)
		w.mu.Unlock()
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.schedule(filepath.Clean(event.Name))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rotation file watch error", slog.String("error", err.Error()))
		}
	}
}

// schedule (re)starts the debounce timer for path if it is watched.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}
	if _, ok := w.files[path]; !ok {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.reloads <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-w.done:
			return
		case path := <-w.reloads:
			w.mu.Lock()
			name := w.files[path]
			w.mu.Unlock()

			info, err := w.reloader.LoadModelFile(ctx, name, path)
			if err != nil {
				w.logger.Error("model reload failed",
					slog.String("model", name),
					slog.String("path", path),
					slog.String("error", err.Error()))
				continue
			}
			w.logger.Info("model reloaded",
				slog.String("model", name),
				slog.Int("samples", info.Samples),
				slog.String("load_id", info.LoadID))
		}
	}
}
