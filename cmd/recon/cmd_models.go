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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/platerecon/pkg/validation"
	"github.com/AleutianAI/platerecon/services/recon"
	"github.com/AleutianAI/platerecon/services/recon/rotfile"
)

func (a *app) newImportCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "import NAME FILE",
		Short: "Import a rotation file into the model store",
		Long: `Parse a PLATES4 rotation file and save it in the model store under NAME,
replacing any model of that name. Requires --store-path or storage in the
config file.

Examples:
  recon import global global.rot --store-path ~/.platerecon/store
  recon import global global.rot --strict`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store == nil {
				return recon.ErrStoreDisabled
			}

			name, err := validation.SanitizeModelName(args[0])
			if err != nil {
				return err
			}
			path := args[1]
			model, parseErrs, err := rotfile.ParseFile(path)
			if err != nil {
				return err
			}
			if strict && len(parseErrs) > 0 {
				return parseErrs[0]
			}
			for _, pe := range parseErrs {
				a.printer.Warning(pe.Error())
			}
			if model.SampleCount() == 0 {
				return fmt.Errorf("%s: %w", path, rotfile.ErrEmptyModel)
			}

			info, err := store.SaveModel(cmd.Context(), name, model)
			if err != nil {
				return err
			}
			return a.printer.Result(info, func() {
				a.printer.Success(fmt.Sprintf("imported %s: %d samples from %s (%d lines skipped)",
					info.Name, info.SampleCount, info.Source, len(parseErrs)))
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on the first malformed line")
	return cmd
}

func (a *app) newModelsCmd() *cobra.Command {
	var remove string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available models",
		Long: `List the models available to other commands: models from the config
file, from --rot flags and from the model store.

Examples:
  recon models --store-path ~/.platerecon/store
  recon models --store-path ~/.platerecon/store --delete old`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remove != "" {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				if store == nil {
					return recon.ErrStoreDisabled
				}
				if err := store.DeleteModel(cmd.Context(), remove); err != nil {
					return err
				}
				a.printer.Success("deleted " + remove)
			}

			svc, err := a.loadService(cmd.Context())
			if err != nil {
				return err
			}
			models := svc.Models()
			return a.printer.Result(recon.ModelsResponse{Default: svc.DefaultModel(), Models: models}, func() {
				rows := make([][]string, len(models))
				for i, m := range models {
					name := m.Name
					if name == svc.DefaultModel() {
						name += " *"
					}
					rows[i] = []string{
						name,
						m.Source,
						strconv.Itoa(m.Samples),
						strconv.Itoa(m.Times),
						m.LoadedAt.Local().Format(time.DateTime),
					}
				}
				a.printer.Table([]string{"model", "source", "samples", "times", "loaded"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&remove, "delete", "", "Delete this model from the store first")
	return cmd
}

