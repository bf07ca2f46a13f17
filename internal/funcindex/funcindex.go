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

// Package funcindex implements the Function Index (C2): a mapping from
// file-key to the ordered list of functions defined in that file, with
// dense stable identifiers and signature/line/regex lookups.
package funcindex

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/kraklabs/binaryrts/internal/rtserrors"
	"github.com/kraklabs/binaryrts/internal/sourcetags"
)

// CoveredFunction is an indexed function record: the identified, located,
// and annotated view of one function a test's coverage can point at.
type CoveredFunction struct {
	ID         uint32
	File       string
	Signature  string
	Start      int
	End        int
	Properties *string
	Namespace  *string
	ClassName  *string
}

// FullName is the composite identity spec.md defines as
// "<file>::<ns?>::<class?>::<signature>".
func (f CoveredFunction) FullName() string {
	ns := ""
	if f.Namespace != nil {
		ns = *f.Namespace
	}
	cls := ""
	if f.ClassName != nil {
		cls = *f.ClassName
	}
	return f.File + "::" + ns + "::" + cls + "::" + f.Signature
}

// Index is the Function Index (C2). It is append-only during ingestion and
// read-only afterward; deserialized indices drop their repo-root binding.
type Index struct {
	// RepoRoot, when set, lets new file-keys be computed repo-relative.
	// Deserialized indices leave this unset (see FileKey).
	RepoRoot string

	table        map[string][]*CoveredFunction
	byID         []*CoveredFunction
	sigCache     map[string][]*CoveredFunction
	maxID        uint32
	extractor    sourcetags.Extractor
}

// NewIndex returns an empty Function Index backed by extractor for
// AddFunctions calls, rooted (for file-key relativization) at repoRoot.
func NewIndex(repoRoot string, extractor sourcetags.Extractor) *Index {
	return &Index{
		RepoRoot:  repoRoot,
		table:     make(map[string][]*CoveredFunction),
		sigCache:  make(map[string][]*CoveredFunction),
		extractor: extractor,
	}
}

// FileKey computes the stable key for a function's file: the repo-relative
// path if RepoRoot is set and the file is inside it, the absolute path if
// RepoRoot is set and the file is outside it, and file unchanged if
// RepoRoot is unset.
func (idx *Index) FileKey(file string) string {
	if idx.RepoRoot == "" {
		return file
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return file
	}
	root, err := filepath.Abs(idx.RepoRoot)
	if err != nil {
		return file
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return filepath.ToSlash(rel)
}

// MaxID returns one past the last assigned identifier.
func (idx *Index) MaxID() uint32 { return idx.maxID }

// Len returns the number of functions assigned an identifier.
func (idx *Index) Len() int { return len(idx.byID) }

// HasFile reports whether functions have already been loaded for fileKey.
func (idx *Index) HasFile(fileKey string) bool {
	_, ok := idx.table[fileKey]
	return ok
}

// AddFunctions reads every function defined in file via the configured
// extractor and assigns each a new contiguous identifier. It is forbidden
// to call this twice for the same file-key.
func (idx *Index) AddFunctions(ctx context.Context, file string) ([]*CoveredFunction, error) {
	key := idx.FileKey(file)
	if idx.HasFile(key) {
		return nil, fmt.Errorf("file %q already present in function index", key)
	}

	defs, err := idx.extractor.Functions(ctx, file, false)
	if err != nil {
		return nil, rtserrors.Wrap(rtserrors.ErrExtractorFailure, err)
	}

	functions := make([]*CoveredFunction, 0, len(defs))
	for _, d := range defs {
		fn := &CoveredFunction{
			ID:         idx.maxID,
			File:       key,
			Signature:  d.Signature,
			Start:      d.StartLine,
			End:        d.EndLine,
			Properties: d.Properties,
			Namespace:  d.Namespace,
			ClassName:  d.ClassName,
		}
		idx.maxID++
		functions = append(functions, fn)
		idx.byID = append(idx.byID, fn)
		idx.sigCache[fn.Signature] = append(idx.sigCache[fn.Signature], fn)
	}
	idx.table[key] = functions
	return functions, nil
}

// FindOrAddFunctions ensures fileKey's functions are loaded (loading them on
// first reference), then returns every function whose [Start,End] range
// contains line. Returns rtserrors.ErrUncoveredLine if the file is loaded
// but no function encloses the line.
func (idx *Index) FindOrAddFunctions(ctx context.Context, file string, line int) ([]*CoveredFunction, error) {
	key := idx.FileKey(file)
	if !idx.HasFile(key) {
		if _, err := idx.AddFunctions(ctx, file); err != nil {
			return nil, err
		}
	}
	return idx.FindFunctionsByLine(key, line)
}

// FindFunctionsByLine returns every function in the file for fileKey whose
// [Start,End] range contains line, or ErrUncoveredLine if the file is
// loaded but none match. A nil, nil result signals the file isn't loaded
// at all.
func (idx *Index) FindFunctionsByLine(fileKey string, line int) ([]*CoveredFunction, error) {
	funcs, ok := idx.table[fileKey]
	if !ok {
		return nil, nil
	}
	var matches []*CoveredFunction
	for _, f := range funcs {
		if f.Start <= line && line <= f.End {
			matches = append(matches, f)
		}
	}
	if len(matches) == 0 {
		return nil, rtserrors.ErrUncoveredLine
	}
	return matches, nil
}

// Query narrows a find_functions lookup. Empty-string pointers distinguish
// "not provided" (nil) from "explicitly empty" ("").
type Query struct {
	File      *string
	Signature *string
	Namespace *string
	ClassName *string
}

// FindFunctions implements the find_functions filter semantics:
//   - Signature ending in "*" matches by substring (after stripping the "*").
//   - Namespace "" matches functions with no namespace; "*" matches any
//     non-empty namespace; otherwise exact match.
//   - Same rules apply to ClassName.
func (idx *Index) FindFunctions(q Query) []*CoveredFunction {
	candidates := idx.candidatesFor(q)

	var out []*CoveredFunction
	for _, f := range candidates {
		if q.File != nil && f.File != *q.File {
			continue
		}
		if q.Signature != nil && !matchesSignature(f.Signature, *q.Signature) {
			continue
		}
		if !matchesOptionalField(f.Namespace, q.Namespace) {
			continue
		}
		if !matchesOptionalField(f.ClassName, q.ClassName) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// candidatesFor narrows the search set using the signature cache whenever a
// non-wildcard signature is provided.
func (idx *Index) candidatesFor(q Query) []*CoveredFunction {
	if q.Signature != nil && !strings.HasSuffix(*q.Signature, "*") {
		sig := strings.TrimPrefix(*q.Signature, sourcetags.PrototypePrefix)
		return idx.sigCache[sig]
	}
	if q.File != nil {
		return idx.table[*q.File]
	}
	return idx.byID
}

func matchesSignature(actual, query string) bool {
	query = strings.TrimPrefix(query, sourcetags.PrototypePrefix)
	if strings.HasSuffix(query, "*") {
		prefix := strings.TrimSuffix(query, "*")
		return strings.Contains(actual, prefix)
	}
	return actual == query
}

// matchesOptionalField implements the None/""/"*" /exact rule shared by
// Namespace and ClassName matching. query == nil means "no filter".
func matchesOptionalField(actual *string, query *string) bool {
	if query == nil {
		return true
	}
	switch *query {
	case "":
		return actual == nil || *actual == ""
	case "*":
		return actual != nil && *actual != ""
	default:
		return actual != nil && *actual == *query
	}
}

// FindFunctionsByFileRegex scans file-keys matching re (case-insensitive,
// anchored at the start) and returns every function under a matching key.
func (idx *Index) FindFunctionsByFileRegex(pattern string) ([]*CoveredFunction, error) {
	re, err := regexp.Compile("(?i)^(?:" + pattern + ")")
	if err != nil {
		return nil, err
	}
	var out []*CoveredFunction
	keys := make([]string, 0, len(idx.table))
	for k := range idx.table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if re.MatchString(k) {
			out = append(out, idx.table[k]...)
		}
	}
	return out, nil
}

// GetByID returns the function assigned identifier id. O(1) per the dense
// identifier invariant.
func (idx *Index) GetByID(id uint32) (*CoveredFunction, bool) {
	if int(id) >= len(idx.byID) {
		return nil, false
	}
	return idx.byID[id], true
}
