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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/binaryrts/internal/coverage"
	"github.com/kraklabs/binaryrts/internal/funcindex"
)

func TestFunctionTraces_CSVRoundTrip_SelfContained(t *testing.T) {
	ft := NewFunctionTraces()
	ft.AddDependency("mod", "Suite", &funcindex.CoveredFunction{ID: 1}, "Case1")
	ft.AddDependency("mod", "Suite", &funcindex.CoveredFunction{ID: 2}, "Case1")
	ft.AddDependency("mod", "Suite", &funcindex.CoveredFunction{ID: 3}, "Case2")

	path := filepath.Join(t.TempDir(), "traces.csv")
	require.NoError(t, ft.WriteCSV(path, ""))

	loaded, err := ReadFunctionTracesCSV(path, "")
	require.NoError(t, err)
	require.True(t, ft.Equal(loaded.Trace))
}

func TestFunctionTraces_CSVRoundTrip_WithLookup(t *testing.T) {
	ft := NewFunctionTraces()
	ft.AddDependency("mod", "Suite", &funcindex.CoveredFunction{ID: 1}, "Case1")
	ft.AddDependency("mod", "Suite", &funcindex.CoveredFunction{ID: 2}, "Case2")

	dir := t.TempDir()
	path := filepath.Join(dir, "traces.csv")
	lookupPath := filepath.Join(dir, "test-lookup.csv")
	require.NoError(t, ft.WriteCSV(path, lookupPath))

	loaded, err := ReadFunctionTracesCSV(path, lookupPath)
	require.NoError(t, err)
	require.True(t, ft.Equal(loaded.Trace))
}

func TestFileTraces_CSVRoundTrip(t *testing.T) {
	ft := NewFileTraces("")
	tc := coverage.NewTestCoverage("mod", "Suite", "Case1", "")
	tc.Files["/repo/a.txt"] = struct{}{}
	tc.Files["/repo/B.CSV"] = struct{}{}
	ft.AddCoverage(tc)

	path := filepath.Join(t.TempDir(), "filetraces.csv")
	require.NoError(t, ft.WriteCSV(path))

	loaded, err := ReadFileTracesCSV(path)
	require.NoError(t, err)
	require.True(t, ft.Equal(loaded.Trace))
}
