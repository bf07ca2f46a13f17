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
	"path/filepath"
	"strings"

	"github.com/kraklabs/binaryrts/internal/rtserrors"
	"github.com/kraklabs/binaryrts/internal/traceindex"
	"github.com/kraklabs/binaryrts/internal/vcs"
)

// SyscallFileLevelRTS selects tests by which files each test's process
// opened at runtime (FileTraces), rather than by function coverage: a
// changed file affects every test whose trace recorded opening a file of
// the same basename, regardless of directory.
type SyscallFileLevelRTS struct {
	Base

	FileTraces *traceindex.FileTraces
}

// NewSyscallFileLevelRTS returns a SyscallFileLevelRTS rooted at git.
func NewSyscallFileLevelRTS(git vcs.Provider, fileTraces *traceindex.FileTraces, outputDir string) *SyscallFileLevelRTS {
	return &SyscallFileLevelRTS{Base: NewBase(git, "", outputDir), FileTraces: fileTraces}
}

func (r *SyscallFileLevelRTS) SelectTests(ctx context.Context, fromRevision, toRevision string) (map[string]struct{}, map[string]struct{}, map[string][]string, error) {
	affectedFiles := make(map[string]struct{})
	changelist, err := r.Git.GetDiff(fromRevision, toRevision)
	if err != nil {
		return nil, nil, nil, rtserrors.Wrap(rtserrors.ErrVcsFailure, err)
	}

	for _, item := range changelist.Items {
		if !reMatch(r.IncludesRegex, item.Filepath) {
			continue
		}
		if r.ExcludesRegex != "" && reMatch(r.ExcludesRegex, item.Filepath) {
			continue
		}
		if item.Action == vcs.Deleted || item.Action == vcs.Modified {
			affectedFiles[strings.ToLower(filepath.Base(item.Filepath))] = struct{}{}
		}
	}

	included, excluded, rawCauses := r.FileTraces.SelectTests(affectedFiles)
	causes := make(map[string][]string, len(rawCauses))
	for testID, entities := range rawCauses {
		causes[testID] = entities
	}
	return included, excluded, causes, nil
}
