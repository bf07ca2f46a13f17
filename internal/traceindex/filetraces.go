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
	"path/filepath"
	"strings"

	"github.com/kraklabs/binaryrts/internal/coverage"
)

// FileTraces is the test_id -> {lowercased file basename} mapping used by
// the syscall-level RTS variant, where coverage is tracked at file
// granularity instead of function granularity.
type FileTraces struct {
	*Trace
	RootDir string
}

// NewFileTraces returns an empty FileTraces, optionally rooted at rootDir
// (informational only; entries are stored as lowercased file basenames).
func NewFileTraces(rootDir string) *FileTraces {
	return &FileTraces{Trace: New(), RootDir: rootDir}
}

// AddCoverage records the lowercased basename of every file touched by tc
// against tc's test identity.
func (ft *FileTraces) AddCoverage(tc *coverage.TestCoverage) {
	testID := tc.TestID()
	for file := range tc.Files {
		ft.Add(testID, strings.ToLower(filepath.Base(file)))
	}
}

// WriteCSV persists the trace table as one row per (test, file) pair:
// module;suite;case;filename
func (ft *FileTraces) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for testID, files := range ft.Table {
		module, suite, testCase := coverage.FromTestID(testID)
		for file := range files {
			if _, err := fmt.Fprintf(w, "%s%s%s%s%s%s%s\n", module, coverage.CSVSep, suite, coverage.CSVSep, testCase, coverage.CSVSep, file); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// ReadFileTracesCSV loads a FileTraces previously written by WriteCSV.
func ReadFileTracesCSV(path string) (*FileTraces, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ft := NewFileTraces("")
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, coverage.CSVSep, 4)
		if len(fields) != 4 {
			return nil, fmt.Errorf("file traces csv line %d: expected 4 fields, got %d", lineNo, len(fields))
		}
		if fields[0] == "" {
			return nil, fmt.Errorf("file traces csv line %d: empty test module", lineNo)
		}
		testID := coverage.GetTestID(fields[0], fields[1], fields[2])
		ft.Add(testID, fields[3])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ft, nil
}
