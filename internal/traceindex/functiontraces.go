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

package traceindex

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kraklabs/binaryrts/internal/coverage"
	"github.com/kraklabs/binaryrts/internal/funcindex"
)

// FunctionTraces is the test_id -> {function_id} mapping: which functions
// each test's execution reached.
type FunctionTraces struct {
	*Trace
}

// NewFunctionTraces returns an empty FunctionTraces.
func NewFunctionTraces() *FunctionTraces {
	return &FunctionTraces{Trace: New()}
}

// AddDependency records that (module, suite, case)'s execution reached fn.
// Suite- and module-level dependencies (suite or global setup) use testCase
// "*"; an empty testCase yields a module!!!suite id, which SelectTests
// skips.
func (ft *FunctionTraces) AddDependency(module, suite string, fn *funcindex.CoveredFunction, testCase string) {
	testID := coverage.GetTestID(module, suite, testCase)
	ft.Add(testID, strconv.FormatUint(uint64(fn.ID), 10))
}

// WriteCSV persists the trace table. When lookupPath is non-empty, test
// identifiers are written to a side-file and rows reference them by index
// instead of repeating the (module, suite, case) fragments — shrinking the
// main file at the cost of needing both files to reload.
func (ft *FunctionTraces) WriteCSV(path, lookupPath string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	var testIDs []string
	if lookupPath != "" {
		for testID := range ft.Table {
			testIDs = append(testIDs, testID)
		}
	}
	testIDIndex := make(map[string]int, len(testIDs))
	for i, id := range testIDs {
		testIDIndex[id] = i
	}

	for testID, functions := range ft.Table {
		if lookupPath != "" {
			idx := testIDIndex[testID]
			for functionID := range functions {
				if _, err := fmt.Fprintf(w, "%d%s%s\n", idx, coverage.CSVSep, functionID); err != nil {
					return err
				}
			}
			continue
		}
		module, suite, testCase := coverage.FromTestID(testID)
		for functionID := range functions {
			if _, err := fmt.Fprintf(w, "%s%s%s%s%s%s%s\n", module, coverage.CSVSep, suite, coverage.CSVSep, testCase, coverage.CSVSep, functionID); err != nil {
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if lookupPath == "" {
		return nil
	}
	lf, err := os.Create(lookupPath)
	if err != nil {
		return err
	}
	defer lf.Close()
	lw := bufio.NewWriter(lf)
	for i, id := range testIDs {
		if _, err := fmt.Fprintf(lw, "%d%s%s\n", i, coverage.CSVSep, id); err != nil {
			return err
		}
	}
	return lw.Flush()
}

// ReadFunctionTracesCSV loads a FunctionTraces previously written by
// WriteCSV. lookupPath must match whatever was passed when writing (empty
// for the self-contained row format, non-empty for the indexed format).
func ReadFunctionTracesCSV(path, lookupPath string) (*FunctionTraces, error) {
	var testIDs []string
	if lookupPath != "" {
		lf, err := os.Open(lookupPath)
		if err != nil {
			return nil, err
		}
		defer lf.Close()
		scanner := bufio.NewScanner(lf)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			fields := strings.Split(line, coverage.CSVSep)
			testIDs = append(testIDs, fields[len(fields)-1])
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ft := NewFunctionTraces()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		var testID, functionID string
		if lookupPath != "" {
			fields := strings.Split(line, coverage.CSVSep)
			if len(fields) != 2 {
				return nil, fmt.Errorf("function traces csv line %d: expected 2 fields, got %d", lineNo, len(fields))
			}
			idx, err := strconv.Atoi(fields[0])
			if err != nil || idx < 0 || idx >= len(testIDs) {
				return nil, fmt.Errorf("function traces csv line %d: bad test index %q", lineNo, fields[0])
			}
			testID = testIDs[idx]
			functionID = fields[1]
		} else {
			fields := strings.Split(line, coverage.CSVSep)
			if len(fields) != 4 {
				return nil, fmt.Errorf("function traces csv line %d: expected 4 fields, got %d", lineNo, len(fields))
			}
			if fields[0] == "" {
				return nil, fmt.Errorf("function traces csv line %d: empty test module", lineNo)
			}
			testID = coverage.GetTestID(fields[0], fields[1], fields[2])
			functionID = fields[3]
		}
		ft.Add(testID, functionID)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ft, nil
}
