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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/platerecon/services/recon"
	"github.com/AleutianAI/platerecon/services/recon/telemetry"
)

const shutdownTimeout = 10 * time.Second

func (a *app) newServeCmd() *cobra.Command {
	var (
		address  string
		watchAll bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reconstruction HTTP API",
		Long: `Load every configured model and serve the HTTP API.

Endpoints:
  POST /v1/recon/reconstruct/point
  POST /v1/recon/reconstruct/polyline
  GET  /v1/recon/tree
  GET  /v1/recon/models
  GET  /v1/recon/health
  GET  /metrics

With storage enabled, stored models are loaded first and models loaded
from files are saved to the store.

Examples:
  recon serve --config platerecon.yaml
  recon serve --rot global=global.rot --watch --address :9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if address != "" {
				a.cfg.Server.Address = address
			}
			return a.runServe(cmd.Context(), watchAll)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&watchAll, "watch", false, "Reload every model when its file changes")
	return cmd
}

func (a *app) runServe(parent context.Context, watchAll bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := a.logger.Slog()

	shutdownTelemetry, err := telemetry.Init(ctx, a.cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	opts := []recon.ServiceOption{recon.WithLogger(logger)}
	store, err := a.openStore()
	if err != nil {
		return err
	}
	if store != nil {
		opts = append(opts, recon.WithPoleStore(store))
	}
	svc := recon.NewService(a.serviceConfig(), opts...)

	if store != nil {
		n, err := svc.LoadStoredModels(ctx)
		if err != nil {
			return err
		}
		logger.Info("stored models loaded", "count", n)
	}
	files := a.modelFiles()
	if err := svc.LoadModels(ctx, files); err != nil {
		return err
	}

	watcher, err := a.startWatcher(ctx, svc, files, watchAll)
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Stop()
	}

	if a.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := recon.NewRouter(svc, recon.RouterOptions{
		ServiceName:    a.cfg.Telemetry.ServiceName,
		RateLimit:      a.cfg.Server.RateLimit,
		RateBurst:      a.cfg.Server.RateBurst,
		MetricsHandler: telemetry.MetricsHandler(),
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         a.cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", srv.Addr, "models", len(svc.Models()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// startWatcher watches the files of models configured with watch, or of
// every model with watchAll. Returns nil when nothing is watched.
func (a *app) startWatcher(ctx context.Context, svc *recon.Service, files []recon.ModelFile, watchAll bool) (*recon.Watcher, error) {
	watched := make(map[string]bool, len(a.cfg.Models))
	for _, m := range a.cfg.Models {
		watched[m.Name] = m.Watch
	}

	var targets []recon.ModelFile
	for _, f := range files {
		if watchAll || watched[f.Name] {
			targets = append(targets, f)
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	w, err := recon.NewWatcher(svc, a.logger.Slog(), nil)
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for _, f := range targets {
		if err := w.Add(f.Name, f.Path); err != nil {
			w.Stop()
			return nil, fmt.Errorf("watch %s: %w", f.Path, err)
		}
	}
	w.Start(ctx)
	return w, nil
}
