// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import "path/filepath"

// Filenames written by `convert` and read back by `select`, fixed so the
// two commands can be chained in a pipeline without extra flags.
const (
	functionLookupFile       = "function-lookup.csv"
	functionLookupBinaryFile = "function-lookup.bin"
	testLookupFile           = "test-lookup.csv"
	testFunctionTracesFile   = "test-function-traces.csv"
	testFileTracesFile       = "test-file-traces.csv"
	dumpLookupFileName       = "dump-lookup.log"
)

// Filenames written by `select` under each configuration's output
// directory, and the event-log markers bracketing a selection run.
const (
	includedTestsFile  = "included.txt"
	excludedTestsFile  = "excluded.txt"
	selectionCausesFile = "selection-causes.txt"
	eventLogFile        = "event.log"
)

// hasCSVExt reports whether path ends in .csv, the only function-lookup
// format convert's csv mode and select's loader agree on without a
// --binary flag on both sides.
func hasCSVExt(path string) bool {
	return filepath.Ext(path) == ".csv"
}
