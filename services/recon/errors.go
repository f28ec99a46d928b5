// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recon serves plate reconstructions over named rotation models.
//
// A Service owns the loaded models and a tree cache. Each request names a
// model, a reconstruction time, a plate and an anchor plate; the matching
// reconstruction tree is built once per (model, time, anchor) and shared.
// The gin handlers in this package expose the Service under /v1/recon.
package recon

import "errors"

// Sentinel errors for the reconstruction service.
var (
	// ErrModelNotLoaded indicates the requested model is not loaded.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrPlateNotFound indicates a plate is not reachable from the anchor.
	ErrPlateNotFound = errors.New("plate not reachable from anchor")

	// ErrInvalidTime indicates a negative or non-finite reconstruction time.
	ErrInvalidTime = errors.New("invalid reconstruction time")

	// ErrStoreDisabled indicates an operation needs the model store and
	// none is configured.
	ErrStoreDisabled = errors.New("model store not configured")
)
