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

// Package sourcetags defines the source tag extractor interface (C3) and
// the code slicer (C4): parsing a C/C++ file into function and
// non-functional entity definitions, and extracting normalized line ranges
// for textual equality checks.
package sourcetags

import (
	"context"
	"strings"
)

// PrototypePrefix is prepended to a function's signature when the tag
// extractor reports it as a forward declaration rather than a definition.
const PrototypePrefix = "__proto__"

// testFunctionNames lists GoogleTest macro names whose expansion must never
// be treated as a candidate for overload-analysis synthesis.
var testFunctionNames = map[string]bool{
	"TEST":          true,
	"TEST_F":        true,
	"TEST_P":        true,
	"TYPED_TEST":    true,
	"TYPED_TEST_P":  true,
	"FRIEND_TEST":   true,
}

// FunctionDefinition mirrors CoveredFunction minus the assigned identifier:
// the tag extractor's raw view of one function or prototype.
type FunctionDefinition struct {
	File       string
	Signature  string
	StartLine  int
	EndLine    int
	Namespace  *string
	ClassName  *string
	Properties *string
}

// Identifier returns the matching key used to unify declarations: for C/C++
// source files this includes namespace and class, for anything else it's
// just the signature.
func (f FunctionDefinition) Identifier(isCFile bool) string {
	if !isCFile {
		return f.Signature
	}
	ns := ""
	if f.Namespace != nil {
		ns = *f.Namespace
	}
	cls := ""
	if f.ClassName != nil {
		cls = *f.ClassName
	}
	return ns + "::" + cls + "::" + f.Signature
}

// RawFunctionName returns the signature text before the first '(', i.e. the
// bare function name without its parameter list.
func (f FunctionDefinition) RawFunctionName() string {
	if idx := strings.IndexByte(f.Signature, '('); idx >= 0 {
		return f.Signature[:idx]
	}
	return f.Signature
}

// IsPrototype reports whether this definition is a forward declaration.
func (f FunctionDefinition) IsPrototype() bool {
	return strings.HasPrefix(f.Signature, PrototypePrefix)
}

// HasParameters reports whether the signature's parameter list is
// non-empty.
func (f FunctionDefinition) HasParameters() bool {
	return !strings.Contains(f.Signature, "()")
}

// IsTestFunction reports whether the raw function name is one of the
// GoogleTest macros, meaning this "function" is actually a macro expansion
// and should never be subjected to overload-analysis synthesis.
func (f FunctionDefinition) IsTestFunction() bool {
	return testFunctionNames[f.RawFunctionName()]
}

// HasProperty reports whether the comma-joined Properties bag contains the
// named annotation (e.g. "virtual", "override", "constexpr").
func (f FunctionDefinition) HasProperty(name string) bool {
	if f.Properties == nil {
		return false
	}
	for _, p := range strings.Split(*f.Properties, ",") {
		if p == name {
			return true
		}
	}
	return false
}

// NonFunctionalEntityDefinition is a macro, global/member/enum variable,
// extern variable, or constexpr/consteval function.
type NonFunctionalEntityDefinition struct {
	File       string
	Name       string
	StartLine  int
	EndLine    int
	Properties *string
}

// TypeDefinition is a class or struct tag used during the class-name
// upgrade post-processing sweep.
type TypeDefinition struct {
	File      string
	Name      string
	FullName  string
	StartLine int
	EndLine   int
	Namespace *string
}

// Extractor is the C3 interface: parse a C/C++ source file into function
// and non-functional entity definitions. Two adapters exist: a ctags
// subprocess adapter (the default, matching the original tool) and an
// in-process tree-sitter adapter.
type Extractor interface {
	// Functions returns every function (and, if includePrototypes is set,
	// every forward declaration) defined in file.
	Functions(ctx context.Context, file string, includePrototypes bool) ([]FunctionDefinition, error)

	// NonFunctionalEntities returns every macro, global/member/enum
	// variable, extern variable, and constexpr/consteval function in file.
	NonFunctionalEntities(ctx context.Context, file string) ([]NonFunctionalEntityDefinition, error)
}

// CLikeExtensions lists file extensions recognized as C/C++ source.
var CLikeExtensions = map[string]bool{
	".c": true, ".cc": true, ".cxx": true, ".c++": true, ".cpp": true,
	".ipp": true, ".tpp": true, ".tcc": true, ".inl": true, ".inc": true,
	".h": true, ".hh": true, ".hpp": true, ".hxx": true, ".h++": true,
}

// IsCFile reports whether path has a recognized C/C++-like extension.
func IsCFile(path string) bool {
	ext := extOf(path)
	return CLikeExtensions[strings.ToLower(ext)]
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return ""
	}
	return path[idx:]
}
