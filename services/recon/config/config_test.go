// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "platerecon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8090", cfg.Server.Address)
	assert.Equal(t, 256, cfg.Cache.TreeCapacity)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Storage.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  address: "127.0.0.1:9000"
  read_timeout: 5s
models:
  - name: global
    path: /data/global.rot
    watch: true
reconstruction:
  default_model: global
  default_root: 701
cache:
  tree_capacity: 10
logging:
  level: debug
telemetry:
  trace_exporter: stdout
  metric_exporter: none
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	require.Len(t, cfg.Models, 1)
	assert.True(t, cfg.Models[0].Watch)
	assert.Equal(t, uint32(701), cfg.Reconstruction.DefaultRoot)
	assert.Equal(t, 10, cfg.Cache.TreeCapacity)
	assert.Equal(t, 32, cfg.Cache.GraphCapacity)
	assert.Equal(t, "stdout", cfg.Telemetry.TraceExporter)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PLATERECON_ADDRESS", ":7000")
	t.Setenv("PLATERECON_DEFAULT_ROOT", "801")
	t.Setenv("PLATERECON_LOG_LEVEL", "WARN")
	t.Setenv("PLATERECON_STORE_PATH", t.TempDir())
	t.Setenv("PLATERECON_CACHE_TREES", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Address)
	assert.Equal(t, uint32(801), cfg.Reconstruction.DefaultRoot)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Storage.Enabled)
	assert.Equal(t, 256, cfg.Cache.TreeCapacity)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad log level", "logging:\n  level: loud\n", "Level"},
		{"model without path", "models:\n  - name: x\n", "Path"},
		{"model name with slash", "models:\n  - name: a/b\n    path: x.rot\n", "Name"},
		{"zero cache", "cache:\n  tree_capacity: 0\n", "TreeCapacity"},
		{"duplicate model", "models:\n  - {name: a, path: a.rot}\n  - {name: a, path: b.rot}\n", "listed twice"},
		{"unknown default", "models:\n  - {name: a, path: a.rot}\nreconstruction:\n  default_model: b\n", "not configured"},
		{"bad exporter", "telemetry:\n  trace_exporter: zipkin\n", "TraceExporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
