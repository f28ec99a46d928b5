// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrinter(mode Mode) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewPrinter(&out, &errOut, mode), &out, &errOut
}

// =============================================================================
// Mode Tests
// =============================================================================

func TestDetectMode_JSONFlagWins(t *testing.T) {
	assert.Equal(t, ModeJSON, DetectMode(true))
}

func TestDetectMode_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, ModePlain, DetectMode(false))
}

func TestNewPrinter_Defaults(t *testing.T) {
	p := NewPrinter(nil, nil, "")
	assert.Equal(t, ModePlain, p.Mode())
	assert.NotNil(t, p.out)
	assert.NotNil(t, p.errOut)
}

// =============================================================================
// Plain Output Tests
// =============================================================================

func TestPrinter_PlainTable(t *testing.T) {
	p, out, _ := newTestPrinter(ModePlain)
	p.Table([]string{"plate", "lat"}, [][]string{{"801", "-20.5"}, {"802", "12"}})
	assert.Equal(t, "plate\tlat\n801\t-20.5\n802\t12\n", out.String())
}

func TestPrinter_PlainKeyValues(t *testing.T) {
	p, out, _ := newTestPrinter(ModePlain)
	p.KeyValues([]KV{{"root", "0"}, {"plates", "4"}})
	assert.Equal(t, "root\t0\nplates\t4\n", out.String())
}

func TestPrinter_StatusLines(t *testing.T) {
	p, out, errOut := newTestPrinter(ModePlain)
	p.Success("loaded")
	p.Warning("duplicate pole")
	p.Error("bad file")

	assert.Equal(t, "OK: loaded\n", out.String())
	assert.Contains(t, errOut.String(), "WARN: duplicate pole\n")
	assert.Contains(t, errOut.String(), "ERROR: bad file\n")
}

// =============================================================================
// JSON Output Tests
// =============================================================================

func TestPrinter_JSONModeSuppressesText(t *testing.T) {
	p, out, errOut := newTestPrinter(ModeJSON)
	p.Title("title")
	p.KeyValues([]KV{{"a", "b"}})
	p.Table([]string{"h"}, [][]string{{"v"}})
	p.Success("done")

	assert.Empty(t, out.String())
	assert.Equal(t, "OK: done\n", errOut.String())
}

func TestPrinter_Result(t *testing.T) {
	p, out, _ := newTestPrinter(ModeJSON)
	called := false
	require.NoError(t, p.Result(map[string]int{"plates": 3}, func() { called = true }))
	assert.False(t, called)

	var got map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 3, got["plates"])

	p, _, _ = newTestPrinter(ModePlain)
	require.NoError(t, p.Result(nil, func() { called = true }))
	assert.True(t, called)
}

func TestPrinter_JSONError(t *testing.T) {
	p, _, _ := newTestPrinter(ModeJSON)
	err := p.JSON(make(chan int))
	assert.Error(t, err)
}

// =============================================================================
// Rich Output Tests
// =============================================================================

func TestPrinter_RichTableContainsCells(t *testing.T) {
	p, out, _ := newTestPrinter(ModeRich)
	p.Table([]string{"plate"}, [][]string{{"801"}})
	assert.Contains(t, out.String(), "plate")
	assert.Contains(t, out.String(), "801")
}

func TestPrinter_RichSuccessHasIcon(t *testing.T) {
	p, out, _ := newTestPrinter(ModeRich)
	p.Success("loaded")
	assert.Contains(t, out.String(), string(IconSuccess))
	assert.Contains(t, out.String(), "loaded")
}
