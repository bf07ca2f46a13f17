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

package funcindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/binaryrts/internal/rtserrors"
	"github.com/kraklabs/binaryrts/internal/sourcetags"
)

type fakeExtractor struct {
	functions map[string][]sourcetags.FunctionDefinition
}

func (f *fakeExtractor) Functions(ctx context.Context, file string, includePrototypes bool) ([]sourcetags.FunctionDefinition, error) {
	return f.functions[file], nil
}

func (f *fakeExtractor) NonFunctionalEntities(ctx context.Context, file string) ([]sourcetags.NonFunctionalEntityDefinition, error) {
	return nil, nil
}

func strPtr(s string) *string { return &s }

func TestIndex_AddFunctions_AssignsDenseIDs(t *testing.T) {
	ns := "myns"
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		"a.cpp": {
			{File: "a.cpp", Signature: "foo()", StartLine: 1, EndLine: 5, Namespace: &ns},
			{File: "a.cpp", Signature: "bar()", StartLine: 7, EndLine: 10},
		},
	}}
	idx := NewIndex("", ex)

	funcs, err := idx.AddFunctions(context.Background(), "a.cpp")
	require.NoError(t, err)
	require.Len(t, funcs, 2)
	assert.Equal(t, uint32(0), funcs[0].ID)
	assert.Equal(t, uint32(1), funcs[1].ID)
	assert.Equal(t, uint32(2), idx.MaxID())
}

func TestIndex_AddFunctions_RejectsDuplicateFile(t *testing.T) {
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		"a.cpp": {{File: "a.cpp", Signature: "foo()", StartLine: 1, EndLine: 2}},
	}}
	idx := NewIndex("", ex)
	_, err := idx.AddFunctions(context.Background(), "a.cpp")
	require.NoError(t, err)

	_, err = idx.AddFunctions(context.Background(), "a.cpp")
	assert.Error(t, err)
}

func TestIndex_FileKey_RelativizesUnderRepoRoot(t *testing.T) {
	idx := NewIndex("/repo", nil)
	assert.Equal(t, "src/a.cpp", idx.FileKey("/repo/src/a.cpp"))
}

func TestIndex_FileKey_FallsBackToAbsoluteOutsideRoot(t *testing.T) {
	idx := NewIndex("/repo", nil)
	key := idx.FileKey("/other/a.cpp")
	assert.Equal(t, filepath.Clean("/other/a.cpp"), key)
}

func TestIndex_FindFunctionsByLine(t *testing.T) {
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		"a.cpp": {
			{File: "a.cpp", Signature: "foo()", StartLine: 1, EndLine: 5},
			{File: "a.cpp", Signature: "bar()", StartLine: 10, EndLine: 20},
		},
	}}
	idx := NewIndex("", ex)
	_, err := idx.AddFunctions(context.Background(), "a.cpp")
	require.NoError(t, err)

	matches, err := idx.FindFunctionsByLine("a.cpp", 3)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "foo()", matches[0].Signature)

	_, err = idx.FindFunctionsByLine("a.cpp", 6)
	assert.ErrorIs(t, err, rtserrors.ErrUncoveredLine)
}

func TestIndex_FindOrAddFunctions_LoadsLazily(t *testing.T) {
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		"a.cpp": {{File: "a.cpp", Signature: "foo()", StartLine: 1, EndLine: 5}},
	}}
	idx := NewIndex("", ex)

	matches, err := idx.FindOrAddFunctions(context.Background(), "a.cpp", 2)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.True(t, idx.HasFile("a.cpp"))
}

func TestIndex_FindFunctions_SignatureWildcard(t *testing.T) {
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		"a.cpp": {
			{File: "a.cpp", Signature: "foo(int)", StartLine: 1, EndLine: 2},
			{File: "a.cpp", Signature: "foo(int, int)", StartLine: 3, EndLine: 4},
			{File: "a.cpp", Signature: "bar()", StartLine: 5, EndLine: 6},
		},
	}}
	idx := NewIndex("", ex)
	_, err := idx.AddFunctions(context.Background(), "a.cpp")
	require.NoError(t, err)

	sig := "foo("
	matches := idx.FindFunctions(Query{Signature: strPtr(sig + "*")})
	assert.Len(t, matches, 2)
}

func TestIndex_FindFunctions_NamespaceWildcardAndEmpty(t *testing.T) {
	ns := "app"
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		"a.cpp": {
			{File: "a.cpp", Signature: "foo()", StartLine: 1, EndLine: 2, Namespace: &ns},
			{File: "a.cpp", Signature: "bar()", StartLine: 3, EndLine: 4},
		},
	}}
	idx := NewIndex("", ex)
	_, err := idx.AddFunctions(context.Background(), "a.cpp")
	require.NoError(t, err)

	withNS := idx.FindFunctions(Query{Namespace: strPtr("*")})
	require.Len(t, withNS, 1)
	assert.Equal(t, "foo()", withNS[0].Signature)

	withoutNS := idx.FindFunctions(Query{Namespace: strPtr("")})
	require.Len(t, withoutNS, 1)
	assert.Equal(t, "bar()", withoutNS[0].Signature)
}

func TestIndex_FindFunctionsByFileRegex(t *testing.T) {
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		"src/a.cpp": {{File: "src/a.cpp", Signature: "foo()", StartLine: 1, EndLine: 2}},
		"test/b.cpp": {{File: "test/b.cpp", Signature: "bar()", StartLine: 1, EndLine: 2}},
	}}
	idx := NewIndex("", ex)
	_, err := idx.AddFunctions(context.Background(), "src/a.cpp")
	require.NoError(t, err)
	_, err = idx.AddFunctions(context.Background(), "test/b.cpp")
	require.NoError(t, err)

	matches, err := idx.FindFunctionsByFileRegex("src/.*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "foo()", matches[0].Signature)
}

func TestIndex_GetByID(t *testing.T) {
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		"a.cpp": {{File: "a.cpp", Signature: "foo()", StartLine: 1, EndLine: 2}},
	}}
	idx := NewIndex("", ex)
	_, err := idx.AddFunctions(context.Background(), "a.cpp")
	require.NoError(t, err)

	fn, ok := idx.GetByID(0)
	require.True(t, ok)
	assert.Equal(t, "foo()", fn.Signature)

	_, ok = idx.GetByID(99)
	assert.False(t, ok)
}
