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

// Package traceindex implements the Trace Index (C5): the mapping from a
// test identifier to the set of entities (function identifiers, or file
// basenames for the syscall variant) that test's execution touched, and
// the select_tests propagation that turns a changed-entity set into an
// inclusion/exclusion decision per test.
package traceindex

import (
	"sort"
	"strings"

	"github.com/kraklabs/binaryrts/internal/coverage"
)

const testIDSep = coverage.TestIDSep

// Trace is the abstract test-trace table: test identifier -> set of
// entity keys the test touched. Both TestFunctionTraces (entity key is a
// function id rendered as a string) and TestFileTraces (entity key is a
// lowercased file basename) share this shape and its select_tests logic.
type Trace struct {
	Table map[string]map[string]struct{}
}

// New returns an empty Trace.
func New() *Trace {
	return &Trace{Table: make(map[string]map[string]struct{})}
}

// Add records that testID's trace includes entity.
func (t *Trace) Add(testID, entity string) {
	set, ok := t.Table[testID]
	if !ok {
		set = make(map[string]struct{})
		t.Table[testID] = set
	}
	set[entity] = struct{}{}
}

// Equal compares two traces by table content, ignoring map iteration order.
func (t *Trace) Equal(other *Trace) bool {
	if len(t.Table) != len(other.Table) {
		return false
	}
	for testID, set := range t.Table {
		otherSet, ok := other.Table[testID]
		if !ok || len(set) != len(otherSet) {
			return false
		}
		for e := range set {
			if _, ok := otherSet[e]; !ok {
				return false
			}
		}
	}
	return true
}

// sortKeyFor mirrors the original's sort key: GLOBAL_TEST_SETUP is treated
// as "*" when ordering test identifiers, so a module's global setup entry
// (module!!!GLOBAL_TEST_SETUP!!!*) sorts before every suite of that module
// instead of alphabetically among them.
func sortKeyFor(testID string) string {
	return strings.ReplaceAll(testID, coverage.GlobalTestSetup, "*")
}

// SelectionCauses maps an included test identifier to the (possibly empty)
// list of affected entity keys that caused its inclusion.
type SelectionCauses map[string][]string

// SelectTests runs the select_tests propagation: given the set of entity
// keys directly affected by a change, it returns the set of test
// identifiers to include, the set to exclude, and a per-included-test
// record of which affected entities drove the decision.
//
// The propagation distinguishes three shapes of test identifier:
//   - Java-style "*!!!suite!!!*": a bare suite is selected whenever its own
//     trace intersects the affected set; no GLOBAL_TEST_SETUP concept.
//   - GoogleTest-style module!!!GLOBAL_TEST_SETUP!!!*: when affected, every
//     subsequent test under the same module is considered affected too.
//   - GoogleTest-style module!!!suite!!!*: a suite-setup entry; when
//     affected, every subsequent test case in the same suite is considered
//     affected too.
//
// Entries are walked in an order where GLOBAL_TEST_SETUP sorts as "*", so
// a module's global/suite setup entries are encountered before the test
// cases they can affect.
func (t *Trace) SelectTests(affectedEntities map[string]struct{}) (included, excluded map[string]struct{}, causes SelectionCauses) {
	allTests := make(map[string]struct{})
	included = make(map[string]struct{})
	causes = make(SelectionCauses)

	var lastFoundAffectedModule string
	var lastFoundAffectedSuite string

	testIDs := make([]string, 0, len(t.Table))
	for testID := range t.Table {
		testIDs = append(testIDs, testID)
	}
	sort.Slice(testIDs, func(i, j int) bool {
		return sortKeyFor(testIDs[i]) < sortKeyFor(testIDs[j])
	})

	for _, testID := range testIDs {
		entities := t.Table[testID]
		module, suite, testCase := coverage.FromTestID(testID)
		if suite == "" || testCase == "" {
			continue
		}

		if suite != coverage.GlobalTestSetup && suite != "*" && testCase != "*" {
			allTests[testID] = struct{}{}
		}

		affected := intersect(affectedEntities, entities)
		isAffected := len(affected) > 0

		// Java: bare test_ids of the form *!!!suite!!!*; selection reduces
		// to "is this suite's trace touched at all".
		if module == "*" && testCase == "*" {
			if isAffected {
				included[testID] = struct{}{}
				causes[testID] = affected
			}
			allTests[testID] = struct{}{}
			continue
		}

		switch {
		case isAffected && suite == coverage.GlobalTestSetup:
			lastFoundAffectedModule = module
		case isAffected && testCase == "*":
			lastFoundAffectedSuite = module + testIDSep + suite
		case isAffected ||
			module == lastFoundAffectedModule ||
			module+testIDSep+suite == lastFoundAffectedSuite:
			included[testID] = struct{}{}
		default:
			continue
		}
		// Note: this can leave an empty cause list for tests selected only
		// via global/suite setup propagation.
		causes[testID] = affected
	}

	excluded = make(map[string]struct{})
	for testID := range allTests {
		if _, ok := included[testID]; !ok {
			excluded[testID] = struct{}{}
		}
	}
	return included, excluded, causes
}

func intersect(a map[string]struct{}, b map[string]struct{}) []string {
	var out []string
	for k := range b {
		if _, ok := a[k]; ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
