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
	"errors"
	"regexp"
	"strconv"

	"github.com/kraklabs/binaryrts/internal/diffanalysis"
	"github.com/kraklabs/binaryrts/internal/funcindex"
	"github.com/kraklabs/binaryrts/internal/rtserrors"
	"github.com/kraklabs/binaryrts/internal/sourcetags"
	"github.com/kraklabs/binaryrts/internal/tmpmaterialize"
	"github.com/kraklabs/binaryrts/internal/traceindex"
	"github.com/kraklabs/binaryrts/internal/vcs"
	"github.com/kraklabs/binaryrts/internal/xref"
)

// CppBase is shared by the two C/C++ selection strategies: it adds the
// function index and function traces every concrete cpp selector needs,
// plus the file-classification checks common to both.
type CppBase struct {
	Base

	FuncIndex  *funcindex.Index
	FuncTraces *traceindex.FunctionTraces
}

func reMatch(pattern, s string) bool {
	if pattern == "" {
		return false
	}
	re, err := regexp.Compile("(?i)^(?:" + pattern + ")")
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// checkRetestAll reports whether item's path matches RetestAllRegex,
// meaning any selection strategy must fall back to retest-all.
func (c *CppBase) checkRetestAll(item vcs.ChangelistItem) bool {
	return c.RetestAllRegex != "" && reMatch(c.RetestAllRegex, item.Filepath)
}

// checkGeneratedCode reports whether item's path has one of the configured
// generated-code extensions, triggering the generated-code directory's
// functions to be marked affected instead of analyzing item itself.
func (c *CppBase) checkGeneratedCode(item vcs.ChangelistItem) bool {
	return c.GeneratedCodeRegex != "" && len(c.GeneratedCodeExts) > 0 && hasExt(item.Filepath, c.GeneratedCodeExts)
}

// checkFileExcluded reports whether item should be skipped entirely: not a
// recognized C/C++ file, outside IncludesRegex, or inside ExcludesRegex.
func (c *CppBase) checkFileExcluded(item vcs.ChangelistItem) bool {
	if !sourcetags.IsCFile(item.Filepath) {
		return true
	}
	if !reMatch(c.IncludesRegex, item.Filepath) {
		return true
	}
	if c.ExcludesRegex != "" && reMatch(c.ExcludesRegex, item.Filepath) {
		return true
	}
	return false
}

func idToEntity(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

func idSetToEntities(ids map[uint32]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for id := range ids {
		out[idToEntity(id)] = struct{}{}
	}
	return out
}

// CppFileLevelRTS selects tests at file granularity: any added, deleted, or
// modified function anywhere in a changed file marks the whole file
// affected, without inspecting which functions actually changed.
type CppFileLevelRTS struct {
	CppBase
}

// NewCppFileLevelRTS returns a CppFileLevelRTS rooted at git.
func NewCppFileLevelRTS(git vcs.Provider, repoRoot string, funcIndex *funcindex.Index, funcTraces *traceindex.FunctionTraces, outputDir string) *CppFileLevelRTS {
	return &CppFileLevelRTS{CppBase: CppBase{Base: NewBase(git, repoRoot, outputDir), FuncIndex: funcIndex, FuncTraces: funcTraces}}
}

func (r *CppFileLevelRTS) SelectTests(ctx context.Context, fromRevision, toRevision string) (map[string]struct{}, map[string]struct{}, map[string][]string, error) {
	affectedIDs := make(map[uint32]struct{})
	changelist, err := r.Git.GetDiff(fromRevision, toRevision)
	if err != nil {
		return nil, nil, nil, rtserrors.Wrap(rtserrors.ErrVcsFailure, err)
	}

	for _, item := range changelist.Items {
		if r.checkRetestAll(item) {
			included, excluded, causes := RetestAll([]string{string(RetestAllRegexCause) + " " + item.Filepath})
			return included, excluded, causes, nil
		}
		if r.checkGeneratedCode(item) {
			funcs, err := r.FuncIndex.FindFunctionsByFileRegex(r.GeneratedCodeRegex)
			if err != nil {
				return nil, nil, nil, err
			}
			for _, f := range funcs {
				affectedIDs[f.ID] = struct{}{}
			}
			continue
		}
		if r.checkFileExcluded(item) {
			continue
		}
		if item.Action == vcs.Deleted || item.Action == vcs.Modified {
			file := item.Filepath
			for _, f := range r.FuncIndex.FindFunctions(funcindex.Query{File: &file}) {
				affectedIDs[f.ID] = struct{}{}
			}
		}
	}

	included, excluded, rawCauses := r.FuncTraces.SelectTests(idSetToEntities(affectedIDs))
	causes := make(map[string][]string, len(rawCauses))
	for testID, entities := range rawCauses {
		files := make(map[string]struct{})
		for _, entity := range entities {
			id, err := strconv.ParseUint(entity, 10, 32)
			if err != nil {
				continue
			}
			if fn, ok := r.FuncIndex.GetByID(uint32(id)); ok {
				files[fn.File] = struct{}{}
			}
		}
		causes[testID] = sortedStrings(files)
	}
	return included, excluded, causes, nil
}

// CppFunctionLevelRTS selects tests at function granularity: it diffs
// materialized revisions of each changed file and resolves exactly which
// functions changed, were added, or were deleted, with optional
// overload/virtual/scope synthesis and non-functional (macro/global) call
// analysis.
type CppFunctionLevelRTS struct {
	CppBase

	Extractor sourcetags.Extractor

	NonFunctionalAnalysis      bool
	NonFunctionalAnalysisDepth int
	NonFunctionalRetestAll     bool
	VirtualAnalysis            bool
	ScopeAnalysis              bool
	OverloadAnalysis           bool
	UseCscope                  bool
	FileLevelRegex             string
}

// NewCppFunctionLevelRTS returns a CppFunctionLevelRTS with
// NonFunctionalAnalysisDepth defaulted to 2 (the original's default, since
// splitting a project into `inc`/`src` is common practice).
func NewCppFunctionLevelRTS(git vcs.Provider, repoRoot string, funcIndex *funcindex.Index, funcTraces *traceindex.FunctionTraces, extractor sourcetags.Extractor, outputDir string) *CppFunctionLevelRTS {
	return &CppFunctionLevelRTS{
		CppBase:                    CppBase{Base: NewBase(git, repoRoot, outputDir), FuncIndex: funcIndex, FuncTraces: funcTraces},
		Extractor:                  extractor,
		NonFunctionalAnalysisDepth: 2,
	}
}

func (r *CppFunctionLevelRTS) idsOfAffectedFunctionsForFile(funcs []sourcetags.FunctionDefinition, file *string) map[uint32]struct{} {
	ids := make(map[uint32]struct{})
	for _, fn := range funcs {
		sig := fn.Signature
		q := funcindex.Query{Signature: &sig, Namespace: fn.Namespace, ClassName: fn.ClassName}
		if file != nil {
			q.File = file
		}
		for _, cf := range r.FuncIndex.FindFunctions(q) {
			ids[cf.ID] = struct{}{}
		}
	}
	return ids
}

func (r *CppFunctionLevelRTS) idsOfAffectedFunctionsForNonFunctional(ctx context.Context, symbolName, rootDir, fileRelativeTo string) (map[uint32]struct{}, error) {
	backend := xref.BackendWalk
	if r.UseCscope {
		backend = xref.BackendCscope
	}
	sites, err := xref.New(rootDir, backend).GetCallSites(ctx, symbolName, fileRelativeTo)
	if err != nil {
		return nil, err
	}
	ids := make(map[uint32]struct{})
	for _, site := range sites {
		funcs, err := r.FuncIndex.FindFunctionsByLine(site.Path, site.LineNo)
		if err != nil && !errors.Is(err, rtserrors.ErrUncoveredLine) {
			return nil, err
		}
		for _, f := range funcs {
			ids[f.ID] = struct{}{}
		}
	}
	return ids, nil
}

// markAllFunctionsAsAffected implements the file_level_regex escape hatch:
// when a non-functional change lands in a file matching FileLevelRegex,
// every function defined in that file is marked affected rather than
// relying on non-functional call analysis to find the right ones.
func (r *CppFunctionLevelRTS) markAllFunctionsAsAffected(item vcs.ChangelistItem) map[uint32]struct{} {
	ids := make(map[uint32]struct{})
	if r.FileLevelRegex == "" || !sourcetags.IsCFile(item.Filepath) || !reMatch(r.FileLevelRegex, item.Filepath) {
		return ids
	}
	file := item.Filepath
	for _, f := range r.FuncIndex.FindFunctions(funcindex.Query{File: &file}) {
		ids[f.ID] = struct{}{}
	}
	return ids
}

func (r *CppFunctionLevelRTS) SelectTests(ctx context.Context, fromRevision, toRevision string) (map[string]struct{}, map[string]struct{}, map[string][]string, error) {
	affectedIDs := make(map[uint32]struct{})
	changelist, err := r.Git.GetDiff(fromRevision, toRevision)
	if err != nil {
		return nil, nil, nil, rtserrors.Wrap(rtserrors.ErrVcsFailure, err)
	}

	// Function prototypes are included here since a changed declaration
	// (e.g. adding `override`) must be caught even without a matching
	// definition edit.
	diffAnalyzer := diffanalysis.New(r.Extractor, r.ScopeAnalysis, r.OverloadAnalysis, r.VirtualAnalysis)

	for _, item := range changelist.Items {
		if r.checkRetestAll(item) {
			included, excluded, causes := RetestAll([]string{string(RetestAllRegexCause) + " " + item.Filepath})
			return included, excluded, causes, nil
		}
		if r.checkGeneratedCode(item) {
			funcs, err := r.FuncIndex.FindFunctionsByFileRegex(r.GeneratedCodeRegex)
			if err != nil {
				return nil, nil, nil, err
			}
			for _, f := range funcs {
				affectedIDs[f.ID] = struct{}{}
			}
			continue
		}
		if r.checkFileExcluded(item) {
			continue
		}

		switch item.Action {
		case vcs.Added:
			retestAll, causes, err := r.analyzeAddedOrDeleted(ctx, item, toRevision, affectedIDs, true)
			if err != nil {
				return nil, nil, nil, err
			}
			if retestAll {
				included, excluded, c := RetestAll(causes)
				return included, excluded, c, nil
			}
		case vcs.Deleted:
			retestAll, causes, err := r.analyzeAddedOrDeleted(ctx, item, fromRevision, affectedIDs, false)
			if err != nil {
				return nil, nil, nil, err
			}
			if retestAll {
				included, excluded, c := RetestAll(causes)
				return included, excluded, c, nil
			}
		case vcs.Modified:
			retestAll, causes, err := r.analyzeModified(ctx, diffAnalyzer, item, fromRevision, toRevision, affectedIDs)
			if err != nil {
				return nil, nil, nil, err
			}
			if retestAll {
				included, excluded, c := RetestAll(causes)
				return included, excluded, c, nil
			}
		}
	}

	included, excluded, rawCauses := r.FuncTraces.SelectTests(idSetToEntities(affectedIDs))
	causes := make(map[string][]string, len(rawCauses))
	for testID, entities := range rawCauses {
		names := make([]string, 0, len(entities))
		for _, entity := range entities {
			id, err := strconv.ParseUint(entity, 10, 32)
			if err != nil {
				continue
			}
			if fn, ok := r.FuncIndex.GetByID(uint32(id)); ok {
				names = append(names, fn.FullName())
			}
		}
		causes[testID] = names
	}
	return included, excluded, causes, nil
}

// analyzeAddedOrDeleted materializes item's content at revision and folds
// every function it defines into affectedIDs, plus (when non-functional
// analysis is on) every call site of its non-functional entities. A true
// first return value means a non-functional-retest-all was triggered and
// causes holds the retest-all cause.
func (r *CppFunctionLevelRTS) analyzeAddedOrDeleted(ctx context.Context, item vcs.ChangelistItem, revision string, affectedIDs map[uint32]struct{}, added bool) (bool, []string, error) {
	content, err := r.Git.GetFileContentAtRevision(revision, item.Filepath)
	if err != nil {
		return false, nil, rtserrors.Wrap(rtserrors.ErrVcsFailure, err)
	}

	var fileFilter *string
	if !added {
		f := item.Filepath
		fileFilter = &f
	}

	var retestAll bool
	var retestCauses []string
	err = tmpmaterialize.File(".cxx", []byte(content), func(path string) error {
		funcs, err := r.Extractor.Functions(ctx, path, true)
		if err != nil {
			return err
		}
		for id := range r.idsOfAffectedFunctionsForFile(funcs, fileFilter) {
			affectedIDs[id] = struct{}{}
		}

		if !r.NonFunctionalAnalysis && !r.NonFunctionalRetestAll {
			return nil
		}
		entities, err := r.Extractor.NonFunctionalEntities(ctx, path)
		if err != nil {
			return err
		}
		for _, entity := range entities {
			if r.NonFunctionalRetestAll {
				cause := string(AddNonFunctionalFile)
				if !added {
					cause = string(DeleteNonFunctionalFile)
				}
				retestAll = true
				retestCauses = []string{cause + " " + item.Filepath}
				return nil
			}
			rootDir := getParent(item.Filepath, r.NonFunctionalAnalysisDepth)
			ids, err := r.idsOfAffectedFunctionsForNonFunctional(ctx, entity.Name, rootDir, r.RepoRoot)
			if err != nil {
				return err
			}
			for id := range ids {
				affectedIDs[id] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return retestAll, retestCauses, nil
}

// analyzeModified materializes both revisions of item and folds in every
// changed/newly-overridden/deleted function, plus (when configured) changed
// non-functional entities' call sites.
func (r *CppFunctionLevelRTS) analyzeModified(ctx context.Context, diffAnalyzer *diffanalysis.Analyzer, item vcs.ChangelistItem, fromRevision, toRevision string, affectedIDs map[uint32]struct{}) (bool, []string, error) {
	oldContent, err := r.Git.GetFileContentAtRevision(fromRevision, item.Filepath)
	if err != nil {
		return false, nil, rtserrors.Wrap(rtserrors.ErrVcsFailure, err)
	}
	newContent, err := r.Git.GetFileContentAtRevision(toRevision, item.Filepath)
	if err != nil {
		return false, nil, rtserrors.Wrap(rtserrors.ErrVcsFailure, err)
	}

	var retestAll bool
	var retestCauses []string

	err = tmpmaterialize.File(".cxx", []byte(newContent), func(newPath string) error {
		return tmpmaterialize.File(".cxx", []byte(oldContent), func(oldPath string) error {
			changed, err := diffAnalyzer.ChangedOrNewlyOverriddenFunctions(ctx, oldPath, newPath)
			if err != nil {
				return err
			}
			deleted, err := diffAnalyzer.DeletedFunctions(ctx, oldPath, newPath)
			if err != nil {
				return err
			}
			for _, cf := range append(changed, deleted...) {
				var fileFilter *string
				if cf.File != nil {
					f := item.Filepath
					fileFilter = &f
				}
				for id := range r.idsOfAffectedFunctionsForFile([]sourcetags.FunctionDefinition{cf.Function}, fileFilter) {
					affectedIDs[id] = struct{}{}
				}
			}

			if !r.NonFunctionalAnalysis && !r.NonFunctionalRetestAll && r.FileLevelRegex == "" {
				return nil
			}
			nonFunctional, err := diffAnalyzer.ChangedNonFunctionalEntities(ctx, oldPath, newPath)
			if err != nil {
				return err
			}
			isFirstEntity := true
			for _, nf := range nonFunctional {
				if r.NonFunctionalRetestAll {
					retestAll = true
					retestCauses = []string{string(ModifyNonFunctionalFile) + " " + item.Filepath}
					return nil
				}
				if isFirstEntity && r.FileLevelRegex != "" {
					for id := range r.markAllFunctionsAsAffected(item) {
						affectedIDs[id] = struct{}{}
					}
				}
				isFirstEntity = false

				if r.NonFunctionalAnalysis {
					rootDir := getParent(item.Filepath, r.NonFunctionalAnalysisDepth)
					ids, err := r.idsOfAffectedFunctionsForNonFunctional(ctx, nf.Entity.Name, rootDir, r.RepoRoot)
					if err != nil {
						return err
					}
					for id := range ids {
						affectedIDs[id] = struct{}{}
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		return false, nil, err
	}
	return retestAll, retestCauses, nil
}
