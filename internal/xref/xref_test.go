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

package xref

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCallSites_WalkBackend_FindsTokenBoundedMatches(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.cpp")
	content := "int x = FOO_BAR;\nint y = FOO_BAR_BAZ;\ncall(FOO_BAR);\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	a := New(dir, BackendWalk)
	sites, err := a.GetCallSites(context.Background(), "FOO_BAR", "")
	require.NoError(t, err)

	lines := make(map[int]bool)
	for _, s := range sites {
		lines[s.LineNo] = true
	}
	assert.True(t, lines[1])
	assert.True(t, lines[3])
	assert.False(t, lines[2], "FOO_BAR_BAZ must not match a search for FOO_BAR")
}

func TestGetCallSites_WalkBackend_IgnoresNonCFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("FOO_BAR;"), 0o644))

	a := New(dir, BackendWalk)
	sites, err := a.GetCallSites(context.Background(), "FOO_BAR", "")
	require.NoError(t, err)
	assert.Empty(t, sites)
}

func TestGetCallSites_WalkBackend_RelativizesPaths(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "src")
	require.NoError(t, os.Mkdir(sub, 0o755))
	file := filepath.Join(sub, "a.cpp")
	require.NoError(t, os.WriteFile(file, []byte("call(FOO_BAR);\n"), 0o644))

	a := New(dir, BackendWalk)
	sites, err := a.GetCallSites(context.Background(), "FOO_BAR", dir)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "src/a.cpp", sites[0].Path)
}
