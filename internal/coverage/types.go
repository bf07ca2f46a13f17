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

// Package coverage implements the coverage parser (C1): reading raw
// per-test basic-block dumps and syscall dumps into CoveredLine/
// CoveredFile records tagged with a TestCoverage identity.
package coverage

import "strings"

// Separators fixed by the persisted wire formats.
const (
	CSVSep         = ";"
	CoverageSep    = "\t"
	TestResultSep  = "___"
	TestSuiteSep   = "."
	TestIDSep      = "!!!"
	GlobalTestSetup = "GLOBAL_TEST_SETUP"
	beforeProgramStart = "BEFORE_PROGRAM_START"
)

// CoveredLine is one basic-block coverage record: a file, the symbol the
// block belongs to, and the covered line number. Key returns the
// (file, line) identity; used directly as a map key (as in
// TestCoverage.Covered), the struct compares all three fields, so two
// records for the same file and line with different symbols stay distinct.
type CoveredLine struct {
	File   string
	Symbol string
	Line   int
}

// Key returns the (file, line) identity used for equality and hashing.
func (c CoveredLine) Key() [2]any {
	return [2]any{c.File, c.Line}
}

// TestCoverage assembles everything collected for one test run: which
// lines and which files it touched.
type TestCoverage struct {
	TestModule string
	TestSuite  string
	TestCase   string
	TestResult string
	Covered    map[CoveredLine]struct{}
	Files      map[string]struct{}
}

// NewTestCoverage returns an empty TestCoverage for the given identity.
func NewTestCoverage(module, suite, testCase, result string) *TestCoverage {
	return &TestCoverage{
		TestModule: module,
		TestSuite:  suite,
		TestCase:   testCase,
		TestResult: result,
		Covered:    make(map[CoveredLine]struct{}),
		Files:      make(map[string]struct{}),
	}
}

// TestID returns this coverage's canonical TestIdentifier.
func (t *TestCoverage) TestID() string {
	return GetTestID(t.TestModule, t.TestSuite, t.TestCase)
}

// GetTestID joins a module/suite/case triple with TestIDSep, dropping
// missing fragments from the right (a suite-only id has no trailing
// separators, etc).
func GetTestID(module, suite, testCase string) string {
	parts := []string{module}
	if suite != "" {
		parts = append(parts, suite)
		if testCase != "" {
			parts = append(parts, testCase)
		}
	}
	return strings.Join(parts, TestIDSep)
}

// FromTestID splits a TestIdentifier back into its module/suite/case
// fragments; missing fragments are returned as empty strings.
func FromTestID(testID string) (module, suite, testCase string) {
	parts := strings.Split(testID, TestIDSep)
	if len(parts) > 0 {
		module = parts[0]
	}
	if len(parts) > 1 {
		suite = parts[1]
	}
	if len(parts) > 2 {
		testCase = parts[2]
	}
	return
}
