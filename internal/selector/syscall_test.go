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

package selector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/binaryrts/internal/coverage"
	"github.com/kraklabs/binaryrts/internal/traceindex"
	"github.com/kraklabs/binaryrts/internal/vcs"
)

func TestSyscallFileLevelRTS_ModifiedFileAffectsTestsThatOpenedIt(t *testing.T) {
	ft := traceindex.NewFileTraces("")
	tc := coverage.NewTestCoverage("ModA", "SuiteA", "Case1", "PASSED")
	tc.Files = map[string]struct{}{"config.ini": {}}
	ft.AddCoverage(tc)

	git := &fakeGit{diff: vcs.Changelist{Items: []vcs.ChangelistItem{
		{Filepath: "data/config.ini", Action: vcs.Modified},
	}}}
	rts := NewSyscallFileLevelRTS(git, ft, t.TempDir())

	included, excluded, _, err := rts.SelectTests(context.Background(), "main", "HEAD")
	require.NoError(t, err)
	assert.Contains(t, included, "ModA!!!SuiteA!!!Case1")
	assert.Empty(t, excluded)
}

func TestSyscallFileLevelRTS_ExcludesRegexSkipsMatchingFiles(t *testing.T) {
	ft := traceindex.NewFileTraces("")
	tc := coverage.NewTestCoverage("ModA", "SuiteA", "Case1", "PASSED")
	tc.Files = map[string]struct{}{"config.ini": {}}
	ft.AddCoverage(tc)

	git := &fakeGit{diff: vcs.Changelist{Items: []vcs.ChangelistItem{
		{Filepath: "data/config.ini", Action: vcs.Modified},
	}}}
	rts := NewSyscallFileLevelRTS(git, ft, t.TempDir())
	rts.ExcludesRegex = ".*config.*"

	included, excluded, _, err := rts.SelectTests(context.Background(), "main", "HEAD")
	require.NoError(t, err)
	assert.NotContains(t, included, "ModA!!!SuiteA!!!Case1")
	assert.Contains(t, excluded, "ModA!!!SuiteA!!!Case1")
}
