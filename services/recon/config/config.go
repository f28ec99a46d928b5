// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the reconstruction service configuration.
//
// Priority is environment > file > defaults. Files are YAML. Environment
// variables use the PLATERECON_ prefix.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/platerecon/services/recon/telemetry"
)

// Config is the full service configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after Load.
type Config struct {
	Server         ServerConfig         `yaml:"server" json:"server"`
	Models         []ModelSource        `yaml:"models" json:"models" validate:"dive"`
	Reconstruction ReconstructionConfig `yaml:"reconstruction" json:"reconstruction"`
	Cache          CacheConfig          `yaml:"cache" json:"cache"`
	Storage        StorageConfig        `yaml:"storage" json:"storage"`
	Logging        LoggingConfig        `yaml:"logging" json:"logging"`
	Telemetry      telemetry.Config     `yaml:"telemetry" json:"telemetry"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address      string        `yaml:"address" json:"address" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" validate:"gt=0"`

	// RateLimit is the sustained requests per second per client. 0 disables.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" json:"rate_burst" validate:"gte=0"`
}

// ModelSource names a rotation file to load at startup.
type ModelSource struct {
	Name string `yaml:"name" json:"name" validate:"required,excludesall=/"`
	Path string `yaml:"path" json:"path" validate:"required"`

	// Watch reloads the model when the file changes.
	Watch bool `yaml:"watch" json:"watch"`
}

// ReconstructionConfig holds engine defaults.
type ReconstructionConfig struct {
	// DefaultModel is used when a request names no model.
	DefaultModel string `yaml:"default_model" json:"default_model"`

	// DefaultRoot is the anchor plate used when a request names none.
	DefaultRoot uint32 `yaml:"default_root" json:"default_root"`

	// MaxEdges caps the size of one graph.
	MaxEdges int `yaml:"max_edges" json:"max_edges" validate:"gte=2"`
}

// CacheConfig bounds the graph and tree caches.
type CacheConfig struct {
	GraphCapacity int `yaml:"graph_capacity" json:"graph_capacity" validate:"gte=1"`
	TreeCapacity  int `yaml:"tree_capacity" json:"tree_capacity" validate:"gte=1"`
}

// StorageConfig configures the BadgerDB model store.
type StorageConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path" validate:"required_if=Enabled true InMemory false"`
	InMemory bool   `yaml:"in_memory" json:"in_memory"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json" json:"json"`

	// Dir enables file logging when non-empty.
	Dir string `yaml:"dir" json:"dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:      ":8090",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			RateLimit:    50,
			RateBurst:    100,
		},
		Reconstruction: ReconstructionConfig{
			DefaultRoot: 0,
			MaxEdges:    2_000_000,
		},
		Cache: CacheConfig{
			GraphCapacity: 32,
			TreeCapacity:  256,
		},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".platerecon/store"
	}
	return home + "/.platerecon/store"
}

// Load reads configuration from path (optional), applies environment
// overrides and validates the result.
//
// Outputs:
//
//	Config - The merged configuration.
//	error - Non-nil if the file is unreadable, malformed or invalid.
//	        A missing file is not an error when path is empty.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	seen := make(map[string]struct{}, len(c.Models))
	for _, m := range c.Models {
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("model %q listed twice", m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	if c.Reconstruction.DefaultModel != "" && len(c.Models) > 0 {
		if _, ok := seen[c.Reconstruction.DefaultModel]; !ok && !c.Storage.Enabled {
			return fmt.Errorf("default model %q is not configured", c.Reconstruction.DefaultModel)
		}
	}
	return nil
}

// applyEnv overrides fields from PLATERECON_* variables. Unparseable
// values are ignored.
func applyEnv(c *Config) {
	if v := os.Getenv("PLATERECON_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("PLATERECON_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Server.RateLimit = f
		}
	}
	if v := os.Getenv("PLATERECON_DEFAULT_MODEL"); v != "" {
		c.Reconstruction.DefaultModel = v
	}
	if v := os.Getenv("PLATERECON_DEFAULT_ROOT"); v != "" {
		if i, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.Reconstruction.DefaultRoot = uint32(i)
		}
	}
	if v := os.Getenv("PLATERECON_STORE_PATH"); v != "" {
		c.Storage.Path = v
		c.Storage.Enabled = true
	}
	if v := os.Getenv("PLATERECON_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PLATERECON_LOG_JSON"); v != "" {
		c.Logging.JSON = v == "true" || v == "1"
	}
	if v := os.Getenv("PLATERECON_CACHE_TREES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.Cache.TreeCapacity = i
		}
	}
}
