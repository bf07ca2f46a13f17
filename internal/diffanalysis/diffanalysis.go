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

// Package diffanalysis implements the Diff Analyzer (C6): comparing the
// function and non-functional-entity definitions of two materialized file
// revisions to decide which are changed, newly added, or deleted, and
// synthesizing broader lookup queries for overload/virtual/scope analysis.
package diffanalysis

import (
	"context"

	"github.com/kraklabs/binaryrts/internal/sourcetags"
)

// ChangedFunction pairs a function definition flagged as affected with the
// revision file it should be attributed to when resolving line coverage
// (nil means "search without file restriction").
type ChangedFunction struct {
	Function sourcetags.FunctionDefinition
	File     *string
}

// ChangedNonFunctional pairs a non-functional entity flagged as affected
// with the revision file it should be resolved against.
type ChangedNonFunctional struct {
	Entity sourcetags.NonFunctionalEntityDefinition
	File   string
}

// Analyzer is the Diff Analyzer (C6). It is configured once with which
// extra synthesis rules to run, then compared across as many revision
// pairs as needed; results from one file are cached for its lifetime.
type Analyzer struct {
	Extractor        sourcetags.Extractor
	ScopeAnalysis    bool
	OverloadAnalysis bool
	VirtualAnalysis  bool

	functionCache map[string][]sourcetags.FunctionDefinition
}

// New returns an Analyzer backed by extractor with the given synthesis
// rules enabled.
func New(extractor sourcetags.Extractor, scopeAnalysis, overloadAnalysis, virtualAnalysis bool) *Analyzer {
	return &Analyzer{
		Extractor:        extractor,
		ScopeAnalysis:    scopeAnalysis,
		OverloadAnalysis: overloadAnalysis,
		VirtualAnalysis:  virtualAnalysis,
		functionCache:    make(map[string][]sourcetags.FunctionDefinition),
	}
}

func (a *Analyzer) functions(ctx context.Context, file string) ([]sourcetags.FunctionDefinition, error) {
	if cached, ok := a.functionCache[file]; ok {
		return cached, nil
	}
	funcs, err := a.Extractor.Functions(ctx, file, true)
	if err != nil {
		return nil, err
	}
	a.functionCache[file] = funcs
	return funcs, nil
}

// ChangedOrNewlyOverriddenFunctions implements the four-rule change
// analysis over a pair of materialized revisions of the same logical file:
//
//  1. A function present (by Identifier) in both revisions whose raw code
//     differs is reported as changed, attributed to newRevision.
//  2. (overload analysis) A genuinely new, non-prototype, parameterized,
//     non-test function is also reported as a wildcard-signature query
//     (RawFunctionName + "*") scoped to newRevision, to catch overload
//     resolution silently picking the new function for existing call sites.
//  3. (virtual analysis) A genuinely new function whose properties include
//     "virtual" or "override" is reported as a class-wildcard
//     (ClassName = "*") query with no file restriction, to catch every
//     override point across the whole function index.
//  4. (scope analysis) A genuinely new member or namespace-scoped function
//     is reported with class/namespace stripped (no file restriction), to
//     catch shadowing of an outer-scope function of the same name.
//
// Rules 3 and 4 are mutually exclusive per function: 3 takes precedence
// when both would apply.
func (a *Analyzer) ChangedOrNewlyOverriddenFunctions(ctx context.Context, oldRevision, newRevision string) ([]ChangedFunction, error) {
	oldFunctions, err := a.functions(ctx, oldRevision)
	if err != nil {
		return nil, err
	}
	newFunctions, err := a.functions(ctx, newRevision)
	if err != nil {
		return nil, err
	}

	isCFile := sourcetags.IsCFile(newRevision)
	var out []ChangedFunction

	for _, newFunc := range newFunctions {
		newCode, err := sourcetags.GetRawCode(newRevision, newFunc.StartLine, newFunc.EndLine)
		if err != nil {
			return nil, err
		}

		found := false
		for _, oldFunc := range oldFunctions {
			if newFunc.Identifier(isCFile) != oldFunc.Identifier(isCFile) {
				continue
			}
			oldCode, err := sourcetags.GetRawCode(oldRevision, oldFunc.StartLine, oldFunc.EndLine)
			if err != nil {
				return nil, err
			}
			if newFunc.IsPrototype() && newCode != oldCode {
				// A "virtual"/"override" keyword added to an existing
				// prototype is not itself reported as a change; leave
				// found unset so rules 2-4 below still run for it, since
				// rule 3 (virtual analysis) is what actually catches this.
				break
			}
			if newCode != oldCode {
				rev := newRevision
				out = append(out, ChangedFunction{Function: newFunc, File: &rev})
			}
			found = true
			break
		}
		if found {
			continue
		}

		if a.OverloadAnalysis && !newFunc.IsPrototype() && newFunc.HasParameters() && !newFunc.IsTestFunction() {
			rev := newRevision
			tmp := sourcetags.FunctionDefinition{
				File:       newFunc.File,
				Signature:  newFunc.RawFunctionName() + "*",
				StartLine:  newFunc.StartLine,
				EndLine:    newFunc.EndLine,
				Properties: newFunc.Properties,
			}
			out = append(out, ChangedFunction{Function: tmp, File: &rev})
		}

		switch {
		case a.VirtualAnalysis && (newFunc.HasProperty("virtual") || newFunc.HasProperty("override")):
			wildcardClass := "*"
			tmp := sourcetags.FunctionDefinition{
				File:       newFunc.File,
				Signature:  newFunc.Signature,
				ClassName:  &wildcardClass,
				StartLine:  newFunc.StartLine,
				EndLine:    newFunc.EndLine,
				Properties: newFunc.Properties,
			}
			out = append(out, ChangedFunction{Function: tmp, File: nil})
		case a.ScopeAnalysis && (newFunc.ClassName != nil || newFunc.Namespace != nil) && !newFunc.IsPrototype():
			tmp := sourcetags.FunctionDefinition{
				File:       newFunc.File,
				Signature:  newFunc.Signature,
				StartLine:  newFunc.StartLine,
				EndLine:    newFunc.EndLine,
				Properties: newFunc.Properties,
			}
			out = append(out, ChangedFunction{Function: tmp, File: nil})
		}
	}
	return out, nil
}

// DeletedFunctions returns every function present in oldRevision with no
// matching Identifier in newRevision (deleted or renamed).
func (a *Analyzer) DeletedFunctions(ctx context.Context, oldRevision, newRevision string) ([]ChangedFunction, error) {
	oldFunctions, err := a.functions(ctx, oldRevision)
	if err != nil {
		return nil, err
	}
	newFunctions, err := a.functions(ctx, newRevision)
	if err != nil {
		return nil, err
	}
	isCFile := sourcetags.IsCFile(newRevision)

	var out []ChangedFunction
	for _, oldFunc := range oldFunctions {
		found := false
		for _, newFunc := range newFunctions {
			if oldFunc.Identifier(isCFile) == newFunc.Identifier(isCFile) {
				found = true
				break
			}
		}
		if !found {
			rev := newRevision
			out = append(out, ChangedFunction{Function: oldFunc, File: &rev})
		}
	}
	return out, nil
}

// ChangedNonFunctionalEntities reports added, modified, and deleted
// non-functional entities (macros, globals, members, constexprs) between
// the two revisions, matched by name.
func (a *Analyzer) ChangedNonFunctionalEntities(ctx context.Context, oldRevision, newRevision string) ([]ChangedNonFunctional, error) {
	oldEntities, err := a.Extractor.NonFunctionalEntities(ctx, oldRevision)
	if err != nil {
		return nil, err
	}
	newEntities, err := a.Extractor.NonFunctionalEntities(ctx, newRevision)
	if err != nil {
		return nil, err
	}

	var out []ChangedNonFunctional
	for _, newEntity := range newEntities {
		newCode, err := sourcetags.GetRawCode(newRevision, newEntity.StartLine, newEntity.EndLine)
		if err != nil {
			return nil, err
		}
		found := false
		for _, oldEntity := range oldEntities {
			if newEntity.Name != oldEntity.Name {
				continue
			}
			oldCode, err := sourcetags.GetRawCode(oldRevision, oldEntity.StartLine, oldEntity.EndLine)
			if err != nil {
				return nil, err
			}
			if newCode != oldCode {
				out = append(out, ChangedNonFunctional{Entity: newEntity, File: newRevision})
			}
			found = true
			break
		}
		if !found {
			out = append(out, ChangedNonFunctional{Entity: newEntity, File: newRevision})
		}
	}

	for _, oldEntity := range oldEntities {
		found := false
		for _, newEntity := range newEntities {
			if oldEntity.Name == newEntity.Name {
				found = true
				break
			}
		}
		if !found {
			out = append(out, ChangedNonFunctional{Entity: oldEntity, File: newRevision})
		}
	}
	return out, nil
}
