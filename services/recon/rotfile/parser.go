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
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/platerecon/services/recon/graph"
	"github.com/AleutianAI/platerecon/services/recon/rotation"
)

// CommentPlate is the moving plate number PLATES4 uses for comment lines.
const CommentPlate graph.PlateID = 999

// maxLineBytes bounds a single rotation file line.
const maxLineBytes = 1 << 20

// Sample is one line of a rotation file.
type Sample struct {
	MovingPlate graph.PlateID `json:"moving_plate"`
	Time        float64       `json:"time"`
	PoleLat     float64       `json:"pole_lat"`
	PoleLon     float64       `json:"pole_lon"`
	Angle       float64       `json:"angle"`
	FixedPlate  graph.PlateID `json:"fixed_plate"`
	Comment     string        `json:"comment,omitempty"`

	// Source and Line locate the sample for provenance.
	Source string `json:"source,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// Rotation converts the Euler pole into a rotation.
func (s Sample) Rotation() (rotation.Rotation, error) {
	return rotation.FromEulerPoleLatLon(s.PoleLat, s.PoleLon, s.Angle)
}

// Provenance returns where the sample came from.
func (s Sample) Provenance() graph.Provenance {
	return graph.Provenance{Source: s.Source, Line: s.Line}
}

// Parse reads every sample from r.
//
// Description:
//
//	Blank lines and PLATES4 comment lines (moving plate 999) are skipped.
//	A malformed line is reported as a *ParseError and parsing continues,
//	so one bad line does not lose the rest of the model.
//
// Inputs:
//
//	r - The rotation file contents.
//	source - Label used in errors and provenance, usually the file name.
//
// Outputs:
//
//	*Model - The samples that parsed.
//	[]*ParseError - One entry per rejected line.
//	error - Non-nil only if reading r failed.
func Parse(r io.Reader, source string) (*Model, []*ParseError, error) {
	return parse(r, source, false)
}

// ParseStrict is Parse but fails on the first malformed line.
func ParseStrict(r io.Reader, source string) (*Model, error) {
	model, parseErrs, err := parse(r, source, true)
	if err != nil {
		return nil, err
	}
	if len(parseErrs) > 0 {
		return nil, parseErrs[0]
	}
	return model, nil
}

// ParseFile opens path and parses it with Parse.
func ParseFile(path string) (*Model, []*ParseError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open rotation file: %w", err)
	}
	defer f.Close()

	return Parse(f, filepath.Base(path))
}

func parse(r io.Reader, source string, strict bool) (*Model, []*ParseError, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var samples []Sample
	var parseErrs []*ParseError
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		sample, ok, err := parseLine(scanner.Text())
		if err != nil {
			parseErrs = append(parseErrs, &ParseError{Source: source, Line: lineNo, Err: err})
			if strict {
				return nil, parseErrs, nil
			}
			continue
		}
		if !ok {
			continue
		}
		sample.Source = source
		sample.Line = lineNo
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, parseErrs, fmt.Errorf("read %s: %w", source, err)
	}

	return NewModel(source, samples), parseErrs, nil
}

// parseLine parses one line. ok is false for blank and comment lines.
func parseLine(line string) (Sample, bool, error) {
	data, comment, _ := strings.Cut(line, "!")
	fields := strings.Fields(data)
	if len(fields) == 0 {
		return Sample{}, false, nil
	}
	if fields[0] == strconv.Itoa(int(CommentPlate)) {
		return Sample{}, false, nil
	}
	if len(fields) < 6 {
		return Sample{}, false, fmt.Errorf("%w: want 6 fields, got %d", ErrMalformedLine, len(fields))
	}

	moving, err := parsePlate(fields[0])
	if err != nil {
		return Sample{}, false, err
	}

	var nums [4]float64
	for i := range nums {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return Sample{}, false, fmt.Errorf("%w: field %d %q", ErrMalformedLine, i+2, fields[i+1])
		}
		nums[i] = v
	}

	fixed, err := parsePlate(fields[5])
	if err != nil {
		return Sample{}, false, err
	}
	if fixed == moving {
		return Sample{}, false, fmt.Errorf("%w: %s", ErrSamePlate, moving)
	}

	s := Sample{
		MovingPlate: moving,
		Time:        nums[0],
		PoleLat:     nums[1],
		PoleLon:     nums[2],
		Angle:       nums[3],
		FixedPlate:  fixed,
		Comment:     strings.TrimSpace(strings.Join(append(fields[6:], comment), " ")),
	}
	if err := validateTime(s.Time); err != nil {
		return Sample{}, false, err
	}
	if _, err := s.Rotation(); err != nil {
		return Sample{}, false, err
	}
	return s, true, nil
}

func parsePlate(field string) (graph.PlateID, error) {
	v, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPlate, field)
	}
	return graph.PlateID(v), nil
}

func validateTime(t float64) error {
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTime, t)
	}
	return nil
}
