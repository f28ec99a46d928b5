// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rotfile reads PLATES4 rotation files into rotation models and
// turns a model into a reconstruction graph for one time instant.
//
// A rotation file holds one total reconstruction pole sample per line:
//
//	moving_plate  time_ma  pole_lat  pole_lon  angle_deg  fixed_plate  !comment
//
// Lines whose moving plate is 999 are comments by PLATES4 convention.
package rotfile

import (
	"errors"
	"fmt"
)

// Sentinel errors for rotation file parsing and pole selection.
var (
	// ErrMalformedLine is returned when a line does not have six numeric fields.
	ErrMalformedLine = errors.New("malformed rotation line")

	// ErrInvalidPlate is returned when a plate field is not a plate number.
	ErrInvalidPlate = errors.New("invalid plate id")

	// ErrSamePlate is returned when a line rotates a plate relative to itself.
	ErrSamePlate = errors.New("moving plate equals fixed plate")

	// ErrInvalidTime is returned for a negative or non-finite time.
	ErrInvalidTime = errors.New("invalid reconstruction time")

	// ErrEmptyModel is returned when a file yields no samples at all.
	ErrEmptyModel = errors.New("rotation model has no samples")
)

// ParseError locates a rejected line.
type ParseError struct {
	// Source is the file name or label the line came from.
	Source string

	// Line is the 1-based line number.
	Line int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ParseError) Unwrap() error {
	return e.Err
}
