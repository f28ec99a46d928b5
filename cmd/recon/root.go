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
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/platerecon/pkg/logging"
	"github.com/AleutianAI/platerecon/pkg/ux"
	"github.com/AleutianAI/platerecon/services/recon"
	"github.com/AleutianAI/platerecon/services/recon/config"
	"github.com/AleutianAI/platerecon/services/recon/graph"
	badgerstore "github.com/AleutianAI/platerecon/services/recon/storage/badger"
)

// =============================================================================
// APPLICATION STATE
// =============================================================================

// app holds the state shared by every subcommand of one invocation.
type app struct {
	// Persistent flags
	configPath string
	jsonOutput bool
	logLevel   string
	rotFiles   []string
	modelName  string
	storePath  string

	cfg     config.Config
	logger  *logging.Logger
	printer *ux.Printer

	db *badgerstore.DB
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// newRootCmd builds the command tree. The returned cleanup closes the
// store and log file and must run after Execute, whether or not it failed.
func newRootCmd() (*cobra.Command, func() error) {
	a := &app{}

	root := &cobra.Command{
		Use:   "recon",
		Short: "Reconstruct plate positions from rotation models",
		Long: `Reconstruct present-day geometry to its position at a past time.

Rotation models are PLATES4 .rot files, given with --rot or listed in the
config file, or models previously imported into the store.

Examples:
  recon reconstruct point --rot global.rot --plate 801 --time 40 -- -25.3 133.8
  recon tree --rot global.rot --time 40 --anchor 0
  recon import global global.rot --store-path ~/.platerecon/store
  recon serve --config platerecon.yaml`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Path to YAML config file")
	pf.BoolVar(&a.jsonOutput, "json", false, "Output as JSON for scripting")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringArrayVarP(&a.rotFiles, "rot", "r", nil, "Rotation file as PATH or NAME=PATH (repeatable)")
	pf.StringVarP(&a.modelName, "model", "m", "", "Model to use (default: configured default)")
	pf.StringVar(&a.storePath, "store-path", "", "Model store directory (enables the store)")

	root.AddCommand(
		a.newReconstructCmd(),
		a.newTreeCmd(),
		a.newTimesCmd(),
		a.newImportCmd(),
		a.newModelsCmd(),
		a.newServeCmd(),
	)
	return root, a.teardown
}

// setup loads configuration and creates the logger and printer.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.storePath != "" {
		cfg.Storage.Enabled = true
		cfg.Storage.Path = a.storePath
	}
	if a.modelName != "" {
		cfg.Reconstruction.DefaultModel = a.modelName
	}
	a.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "recon",
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	a.printer = ux.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), a.mode(cmd))
	return nil
}

func (a *app) mode(cmd *cobra.Command) ux.Mode {
	if a.jsonOutput {
		return ux.ModeJSON
	}
	if f, ok := cmd.OutOrStdout().(*os.File); !ok || f != os.Stdout {
		return ux.ModePlain
	}
	return ux.DetectMode(false)
}

func (a *app) teardown() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// openStore opens the model store if it is enabled.
func (a *app) openStore() (*badgerstore.PoleStore, error) {
	if !a.cfg.Storage.Enabled {
		return nil, nil
	}
	if a.db == nil {
		var dbCfg badgerstore.Config
		if a.cfg.Storage.InMemory {
			dbCfg = badgerstore.InMemoryConfig()
		} else {
			dbCfg = badgerstore.DefaultConfig()
			dbCfg.Path = a.cfg.Storage.Path
		}
		dbCfg.Logger = a.logger.Slog()
		db, err := badgerstore.Open(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("open model store: %w", err)
		}
		a.db = db
	}
	return badgerstore.NewPoleStore(a.db), nil
}

// modelFiles merges the configured models with --rot flags.
func (a *app) modelFiles() []recon.ModelFile {
	files := make([]recon.ModelFile, 0, len(a.cfg.Models)+len(a.rotFiles))
	for _, m := range a.cfg.Models {
		files = append(files, recon.ModelFile{Name: m.Name, Path: m.Path})
	}
	for _, value := range a.rotFiles {
		files = append(files, parseRotFlag(value))
	}
	return files
}

// parseRotFlag accepts "NAME=PATH" or "PATH"; a bare path is named after
// its file name without extension.
func parseRotFlag(value string) recon.ModelFile {
	if name, path, ok := strings.Cut(value, "="); ok && name != "" && !strings.ContainsRune(name, filepath.Separator) {
		return recon.ModelFile{Name: name, Path: path}
	}
	base := filepath.Base(value)
	return recon.ModelFile{Name: strings.TrimSuffix(base, filepath.Ext(base)), Path: value}
}

func (a *app) serviceConfig() recon.ServiceConfig {
	svcCfg := recon.DefaultServiceConfig()
	svcCfg.DefaultModel = a.cfg.Reconstruction.DefaultModel
	svcCfg.DefaultAnchor = graph.PlateID(a.cfg.Reconstruction.DefaultRoot)
	svcCfg.MaxEdges = a.cfg.Reconstruction.MaxEdges
	svcCfg.GraphCapacity = a.cfg.Cache.GraphCapacity
	svcCfg.TreeCapacity = a.cfg.Cache.TreeCapacity
	return svcCfg
}

// newService builds a Service with every configured, flagged and stored
// model loaded, and fails when there are none.
func (a *app) newService(ctx context.Context) (*recon.Service, error) {
	svc, err := a.loadService(ctx)
	if err != nil {
		return nil, err
	}
	if len(svc.Models()) == 0 {
		return nil, fmt.Errorf("%w: pass --rot, list models in the config, or import into the store",
			recon.ErrModelNotLoaded)
	}
	return svc, nil
}

// loadService builds a Service with every available model loaded. Models
// loaded from files are not written to the store.
func (a *app) loadService(ctx context.Context) (*recon.Service, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	svc := recon.NewService(a.serviceConfig(), recon.WithLogger(a.logger.Slog()))

	if store != nil {
		if _, err := loadStored(ctx, svc, store); err != nil {
			return nil, err
		}
	}
	if err := svc.LoadModels(ctx, a.modelFiles()); err != nil {
		return nil, err
	}
	a.logger.Debug("service ready", "models", len(svc.Models()))
	return svc, nil
}

// loadStored copies every stored model into svc without writing back.
func loadStored(ctx context.Context, svc *recon.Service, store *badgerstore.PoleStore) (int, error) {
	infos, err := store.ListModels(ctx)
	if err != nil {
		return 0, err
	}
	for _, info := range infos {
		model, err := store.LoadModel(ctx, info.Name)
		if err != nil {
			return 0, fmt.Errorf("load stored model %q: %w", info.Name, err)
		}
		svc.UseModel(info.Name, model)
	}
	return len(infos), nil
}

func plateFlag(cmd *cobra.Command, name string) (*uint32, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	v, err := cmd.Flags().GetUint32(name)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
