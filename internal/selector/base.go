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

// Package selector implements the Selector (C9): turning a VCS revision
// pair into an included/excluded test-identifier split, by combining the
// function index (C2), trace index (C5), diff analyzer (C6), and
// cross-reference searcher (C7) behind one of three concrete strategies
// (file-level, function-level, syscall file-level), plus the utility
// operations that merge selection results and drive the built-in
// evaluation presets.
package selector

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kraklabs/binaryrts/internal/vcs"
)

// SelectionCause labels why a test was included, for the human-readable
// selection-causes report. Values match the original tool's so existing
// dashboards parsing that report keep working.
type SelectionCause string

const (
	AddNonFunctionalFile    SelectionCause = "Add non-functional"
	DeleteNonFunctionalFile SelectionCause = "Delete non-functional"
	ModifyNonFunctionalFile SelectionCause = "Modify non-functional"
	RetestAllRegexCause     SelectionCause = "Retest-all regex"
	SelectionFailureCause   SelectionCause = "Selection failure"
	UnknownCause            SelectionCause = "Unknown"
)

// Selector is the common interface every concrete RTS strategy satisfies.
type Selector interface {
	// SelectTests compares fromRevision to toRevision and returns the set
	// of test identifiers to include, the set to exclude, and a
	// per-included-test record of what caused its inclusion.
	SelectTests(ctx context.Context, fromRevision, toRevision string) (included, excluded map[string]struct{}, causes map[string][]string, err error)
}

// Base holds the fields every concrete selector is configured with, mirroring
// the original's RTSAlgo base class.
type Base struct {
	Git       vcs.Provider
	RepoRoot  string
	OutputDir string

	IncludesRegex string
	ExcludesRegex string

	GeneratedCodeRegex string
	GeneratedCodeExts  []string

	RetestAllRegex string
}

// NewBase returns a Base rooted at git with the original's defaults
// (match everything, exclude nothing). repoRoot is used to relativize
// cross-reference search results against, so they line up with the
// function index's file keys.
func NewBase(git vcs.Provider, repoRoot, outputDir string) Base {
	return Base{Git: git, RepoRoot: repoRoot, OutputDir: outputDir, IncludesRegex: ".*"}
}

// RetestAll is the _retest_all fallback: select every test, exclude none,
// and attribute the decision to causes (or UnknownCause if none given).
func RetestAll(causes []string) (included, excluded map[string]struct{}, selectionCauses map[string][]string) {
	if causes == nil {
		causes = []string{string(UnknownCause)}
	}
	return map[string]struct{}{"*": {}}, map[string]struct{}{}, map[string][]string{"*": causes}
}

// hasExt reports whether path's final extension (lowercased) is in exts.
func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// getParent returns the depth-th ancestor directory of path: depth=0
// returns path unchanged, depth=1 returns its containing directory, and so
// on. Used to bound how far up the tree non-functional call analysis walks
// from a changed file, since the convention of splitting a C/C++ project
// into `inc`/`src` subdirectories means a macro's definition and its call
// sites often don't share a directory.
func getParent(path string, depth int) string {
	for i := 0; i < depth; i++ {
		path = filepath.Dir(path)
	}
	return path
}

// sortedStrings returns the keys of set in sorted order.
func sortedStrings(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
