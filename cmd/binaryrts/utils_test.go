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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunUtilsMerge_UnionsExcludesAndWritesOutput(t *testing.T) {
	dir := t.TempDir()
	excludeA := filepath.Join(dir, "excludeA.txt")
	excludeB := filepath.Join(dir, "excludeB.txt")
	require.NoError(t, os.WriteFile(excludeA, []byte("Mod!!!Suite!!!Case1\n"), 0o644))
	require.NoError(t, os.WriteFile(excludeB, []byte("Mod!!!Suite!!!Case2\n"), 0o644))
	outDir := filepath.Join(dir, "out")

	err := runUtilsMerge([]string{
		"--exclude", excludeA,
		"--exclude", excludeB,
		"-o", outDir,
	}, GlobalFlags{})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, excludedTestsFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Mod!!!Suite!!!Case1")
	assert.Contains(t, string(data), "Mod!!!Suite!!!Case2")
}

func TestRunUtilsMerge_IncludeRemovesFromExcludes(t *testing.T) {
	dir := t.TempDir()
	excludeA := filepath.Join(dir, "excludeA.txt")
	includeA := filepath.Join(dir, "includeA.txt")
	require.NoError(t, os.WriteFile(excludeA, []byte("Mod!!!Suite!!!Case1\nMod!!!Suite!!!Case2\n"), 0o644))
	require.NoError(t, os.WriteFile(includeA, []byte("Mod!!!Suite!!!Case1\n"), 0o644))
	outDir := filepath.Join(dir, "out")

	err := runUtilsMerge([]string{
		"--exclude", excludeA,
		"--include", includeA,
		"-o", outDir,
	}, GlobalFlags{})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, excludedTestsFile))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Mod!!!Suite!!!Case1")
	assert.Contains(t, string(data), "Mod!!!Suite!!!Case2")
}

func TestRunUtils_UnknownSubcommandErrors(t *testing.T) {
	err := runUtils("bogus", nil, GlobalFlags{})
	assert.Error(t, err)
}
