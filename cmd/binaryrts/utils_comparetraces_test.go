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

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/binaryrts/internal/coverage"
	"github.com/kraklabs/binaryrts/internal/funcindex"
	"github.com/kraklabs/binaryrts/internal/traceindex"
)

func writeTracesFixture(t *testing.T, path string, deps map[string][]string) {
	t.Helper()
	ft := traceindex.NewFunctionTraces()
	for testID, entities := range deps {
		module, suite, testCase := coverage.FromTestID(testID)
		for _, entity := range entities {
			id, err := strconv.ParseUint(entity, 10, 32)
			require.NoError(t, err)
			fn := &funcindex.CoveredFunction{ID: uint32(id)}
			ft.AddDependency(module, suite, fn, testCase)
		}
	}
	require.NoError(t, ft.WriteCSV(path, ""))
}

func TestRunUtilsCompareTraces_ReportsSymmetricDifference(t *testing.T) {
	dir := t.TempDir()
	beforePath := filepath.Join(dir, "before.csv")
	afterPath := filepath.Join(dir, "after.csv")

	writeTracesFixture(t, beforePath, map[string][]string{
		"Mod!!!Suite!!!Case1": {"1"},
		"Mod!!!Suite!!!Case2": {"2"},
	})
	writeTracesFixture(t, afterPath, map[string][]string{
		"Mod!!!Suite!!!Case1": {"1"},
		"Mod!!!Suite!!!Case3": {"2"},
	})

	var output string
	var runErr error
	output = captureOutput(t, func() {
		runErr = runUtilsCompareTraces([]string{
			"--before", beforePath,
			"--after", afterPath,
			"--entity", "1",
			"--entity", "2",
			"--json",
		}, GlobalFlags{})
	})
	require.NoError(t, runErr)

	var report compareTracesReport
	require.NoError(t, json.Unmarshal([]byte(output), &report))
	assert.Equal(t, 1, report.InBoth)
	assert.Equal(t, []string{"Mod!!!Suite!!!Case2"}, report.OnlyInBefore)
	assert.Equal(t, []string{"Mod!!!Suite!!!Case3"}, report.OnlyInAfter)
}

func TestRunUtilsCompareTraces_RequiresAtLeastOneEntity(t *testing.T) {
	dir := t.TempDir()
	beforePath := filepath.Join(dir, "before.csv")
	afterPath := filepath.Join(dir, "after.csv")
	writeTracesFixture(t, beforePath, nil)
	writeTracesFixture(t, afterPath, nil)

	err := runUtilsCompareTraces([]string{
		"--before", beforePath,
		"--after", afterPath,
	}, GlobalFlags{})
	assert.Error(t, err)
}

func TestBuildAffectedEntitySet_MergesFlagsAndFile(t *testing.T) {
	dir := t.TempDir()
	entitiesFile := filepath.Join(dir, "entities.txt")
	require.NoError(t, os.WriteFile(entitiesFile, []byte("2\n3\n"), 0o644))

	set, err := buildAffectedEntitySet([]string{"1"}, entitiesFile)
	require.NoError(t, err)
	assert.Len(t, set, 3)
	for _, id := range []string{"1", "2", "3"} {
		_, ok := set[id]
		assert.True(t, ok, "expected %q in set", id)
	}
}
