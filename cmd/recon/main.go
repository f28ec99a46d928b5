// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command recon reconstructs plate positions from rotation models.
//
// It runs one-shot queries against rotation files or the model store, and
// serves the HTTP API with "recon serve".
package main

import (
	"fmt"
	"os"
)

func main() {
	cmd, cleanup := newRootCmd()
	err := cmd.Execute()
	if cerr := cleanup(); cerr != nil {
		fmt.Fprintln(os.Stderr, "Warning:", cerr)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
