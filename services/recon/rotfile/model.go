// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rotfile

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/AleutianAI/platerecon/services/recon/graph"
	"github.com/AleutianAI/platerecon/services/recon/rotation"
)

// TimeEpsilon is the tolerance, in Ma, for matching a sample time.
const TimeEpsilon = 1e-9

// Pole is a total reconstruction pole ready for graph insertion.
type Pole struct {
	FixedPlate  graph.PlateID
	MovingPlate graph.PlateID
	Rotation    rotation.Rotation
	Provenance  graph.Provenance
}

// PoleSource supplies the poles valid at one time instant.
type PoleSource interface {
	PolesAt(ctx context.Context, time float64) ([]Pole, error)
}

// sequenceKey identifies a moving/fixed plate sequence.
type sequenceKey struct {
	moving, fixed graph.PlateID
}

// Model is a parsed rotation model.
//
// Samples are grouped into sequences keyed by (moving, fixed) plate pair and
// ordered by time within a sequence. A Model is immutable after creation and
// safe for concurrent use.
type Model struct {
	source    string
	samples   []Sample
	sequences map[sequenceKey][]int
	order     []sequenceKey
}

// NewModel builds a model from samples. The slice is copied.
func NewModel(source string, samples []Sample) *Model {
	m := &Model{
		source:    source,
		samples:   slices.Clone(samples),
		sequences: make(map[sequenceKey][]int),
	}
	for i, s := range m.samples {
		key := sequenceKey{moving: s.MovingPlate, fixed: s.FixedPlate}
		if _, ok := m.sequences[key]; !ok {
			m.order = append(m.order, key)
		}
		m.sequences[key] = append(m.sequences[key], i)
	}
	for _, indices := range m.sequences {
		slices.SortStableFunc(indices, func(a, b int) int {
			return cmp.Compare(m.samples[a].Time, m.samples[b].Time)
		})
	}
	return m
}

// Source returns the label the model was parsed from.
func (m *Model) Source() string {
	return m.source
}

// SampleCount returns the number of samples.
func (m *Model) SampleCount() int {
	return len(m.samples)
}

// SequenceCount returns the number of moving/fixed plate sequences.
func (m *Model) SequenceCount() int {
	return len(m.order)
}

// Samples returns a copy of every sample in file order.
func (m *Model) Samples() []Sample {
	return slices.Clone(m.samples)
}

// Times returns the distinct sample times, ascending.
func (m *Model) Times() []float64 {
	times := make([]float64, 0, len(m.samples))
	for _, s := range m.samples {
		times = append(times, s.Time)
	}
	slices.Sort(times)
	return slices.CompactFunc(times, func(a, b float64) bool {
		return math.Abs(a-b) <= TimeEpsilon
	})
}

// Plates returns every moving and fixed plate in the model, sorted.
func (m *Model) Plates() []graph.PlateID {
	seen := make(map[graph.PlateID]struct{})
	for _, s := range m.samples {
		seen[s.MovingPlate] = struct{}{}
		seen[s.FixedPlate] = struct{}{}
	}
	plates := make([]graph.PlateID, 0, len(seen))
	for p := range seen {
		plates = append(plates, p)
	}
	slices.Sort(plates)
	return plates
}

// PolesAt returns one pole per sequence that has a sample at exactly time.
//
// Description:
//
//	No interpolation is performed: a sequence without a sample at time
//	contributes nothing. If a sequence lists the same time twice, the
//	first line wins. Poles are returned in sequence first-appearance order
//	so graph insertion order follows the file.
//
// Outputs:
//
//	[]Pole - Poles valid at time.
//	error - ErrInvalidTime for a negative or non-finite time.
func (m *Model) PolesAt(ctx context.Context, time float64) ([]Pole, error) {
	if err := validateTime(time); err != nil {
		return nil, err
	}

	var poles []Pole
	for _, key := range m.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		indices := m.sequences[key]
		i, found := slices.BinarySearchFunc(indices, time-TimeEpsilon, func(idx int, t float64) int {
			return cmp.Compare(m.samples[idx].Time, t)
		})
		if !found && (i >= len(indices) || math.Abs(m.samples[indices[i]].Time-time) > TimeEpsilon) {
			continue
		}

		s := m.samples[indices[i]]
		r, err := s.Rotation()
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", s.Source, s.Line, err)
		}
		poles = append(poles, Pole{
			FixedPlate:  s.FixedPlate,
			MovingPlate: s.MovingPlate,
			Rotation:    r,
			Provenance:  s.Provenance(),
		})
	}
	return poles, nil
}
