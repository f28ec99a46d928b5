// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnostics_Collector(t *testing.T) {
	var d Diagnostics
	assert.Zero(t, d.Len())
	assert.False(t, d.HasKind(DiagnosticCrossOver))

	d.Add(Diagnostic{Kind: DiagnosticDuplicatePole, Message: "dup"})
	d.Add(Diagnostic{Kind: DiagnosticCrossOver, Message: "x1"})
	d.Add(Diagnostic{Kind: DiagnosticCrossOver, Message: "x2"})

	assert.Equal(t, 3, d.Len())
	assert.Equal(t, 2, d.Count(DiagnosticCrossOver))
	assert.True(t, d.HasKind(DiagnosticDuplicatePole))
	assert.False(t, d.HasKind(DiagnosticEmptyRoot))

	all := d.All()
	require.Len(t, all, 3)
	assert.Equal(t, "dup", all[0].Message)

	// All returns a copy.
	all[0].Message = "changed"
	assert.Equal(t, "dup", d.All()[0].Message)
}

func TestDiagnostics_ConcurrentAdd(t *testing.T) {
	var d Diagnostics
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Add(Diagnostic{Kind: DiagnosticCrossOver})
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, d.Count(DiagnosticCrossOver))
}

func TestDiagnostic_JSONUsesKindNames(t *testing.T) {
	data, err := json.Marshal(Diagnostic{Kind: DiagnosticEmptyRoot, Root: 7, EdgeIndex: -1, WinningEdgeIndex: -1})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"empty_root"`)
	assert.Contains(t, string(data), `"root":7`)
}

func TestDiagnosticKind_String(t *testing.T) {
	tests := map[DiagnosticKind]string{
		DiagnosticDuplicatePole: "duplicate_pole",
		DiagnosticCrossOver:     "cross_over",
		DiagnosticEmptyRoot:     "empty_root",
		DiagnosticKind(99):      "unknown",
	}
	for kind, want := range tests {
		assert.Equal(t, want, kind.String())
	}
}
