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

package diffanalysis

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/binaryrts/internal/sourcetags"
)

type fakeExtractor struct {
	functions map[string][]sourcetags.FunctionDefinition
	nonFuncs  map[string][]sourcetags.NonFunctionalEntityDefinition
}

func (f *fakeExtractor) Functions(ctx context.Context, file string, includePrototypes bool) ([]sourcetags.FunctionDefinition, error) {
	return f.functions[file], nil
}

func (f *fakeExtractor) NonFunctionalEntities(ctx context.Context, file string) ([]sourcetags.NonFunctionalEntityDefinition, error) {
	return f.nonFuncs[file], nil
}

func writeLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestChangedOrNewlyOverriddenFunctions_DetectsBodyChange(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "old.cpp")
	newFile := filepath.Join(dir, "new.cpp")
	writeLines(t, oldFile, "int foo() {", "  return 1;", "}")
	writeLines(t, newFile, "int foo() {", "  return 2;", "}")

	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		oldFile: {{File: oldFile, Signature: "foo()", StartLine: 1, EndLine: 3}},
		newFile: {{File: newFile, Signature: "foo()", StartLine: 1, EndLine: 3}},
	}}
	a := New(ex, false, false, false)

	changed, err := a.ChangedOrNewlyOverriddenFunctions(context.Background(), oldFile, newFile)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "foo()", changed[0].Function.Signature)
	require.NotNil(t, changed[0].File)
	assert.Equal(t, newFile, *changed[0].File)
}

func TestChangedOrNewlyOverriddenFunctions_UnchangedBodyNotReported(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "old.cpp")
	newFile := filepath.Join(dir, "new.cpp")
	writeLines(t, oldFile, "int foo() {", "  return 1;", "}")
	writeLines(t, newFile, "int foo() {", "  return 1;", "}")

	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		oldFile: {{File: oldFile, Signature: "foo()", StartLine: 1, EndLine: 3}},
		newFile: {{File: newFile, Signature: "foo()", StartLine: 1, EndLine: 3}},
	}}
	a := New(ex, false, false, false)

	changed, err := a.ChangedOrNewlyOverriddenFunctions(context.Background(), oldFile, newFile)
	require.NoError(t, err)
	assert.Empty(t, changed)
}

func TestChangedOrNewlyOverriddenFunctions_OverloadAnalysis(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "old.cpp")
	newFile := filepath.Join(dir, "new.cpp")
	writeLines(t, oldFile, "")
	writeLines(t, newFile, "void setName(B& b) {", "  b.name = \"x\";", "}")

	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		oldFile: {},
		newFile: {{File: newFile, Signature: "setName(B& b)", StartLine: 1, EndLine: 3}},
	}}
	a := New(ex, false, true, false)

	changed, err := a.ChangedOrNewlyOverriddenFunctions(context.Background(), oldFile, newFile)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "setName*", changed[0].Function.Signature)
	require.NotNil(t, changed[0].File)
	assert.Equal(t, newFile, *changed[0].File)
}

func TestChangedOrNewlyOverriddenFunctions_VirtualAnalysis(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "old.cpp")
	newFile := filepath.Join(dir, "new.cpp")
	writeLines(t, oldFile, "")
	writeLines(t, newFile, "void foo() override {", "}")

	props := "override"
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		oldFile: {},
		newFile: {{File: newFile, Signature: "foo()", StartLine: 1, EndLine: 2, Properties: &props}},
	}}
	a := New(ex, false, false, true)

	changed, err := a.ChangedOrNewlyOverriddenFunctions(context.Background(), oldFile, newFile)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	require.NotNil(t, changed[0].Function.ClassName)
	assert.Equal(t, "*", *changed[0].Function.ClassName)
	assert.Nil(t, changed[0].File)
}

func TestChangedOrNewlyOverriddenFunctions_ChangedPrototypeStillTriggersVirtualAnalysis(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "old.h")
	newFile := filepath.Join(dir, "new.h")
	writeLines(t, oldFile, "void foo();")
	writeLines(t, newFile, "void foo() override;")

	props := "override"
	protoSig := sourcetags.PrototypePrefix + "void foo()"
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		oldFile: {{File: oldFile, Signature: protoSig, StartLine: 1, EndLine: 1}},
		newFile: {{File: newFile, Signature: protoSig, StartLine: 1, EndLine: 1, Properties: &props}},
	}}
	a := New(ex, false, false, true)

	changed, err := a.ChangedOrNewlyOverriddenFunctions(context.Background(), oldFile, newFile)
	require.NoError(t, err)
	require.Len(t, changed, 1, "a changed prototype must still fall through to the virtual-analysis rule")
	require.NotNil(t, changed[0].Function.ClassName)
	assert.Equal(t, "*", *changed[0].Function.ClassName)
	assert.Nil(t, changed[0].File)
}

func TestChangedOrNewlyOverriddenFunctions_ScopeAnalysis(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "old.cpp")
	newFile := filepath.Join(dir, "new.cpp")
	writeLines(t, oldFile, "")
	writeLines(t, newFile, "void foo() {", "}")

	cls := "Widget"
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		oldFile: {},
		newFile: {{File: newFile, Signature: "foo()", StartLine: 1, EndLine: 2, ClassName: &cls}},
	}}
	a := New(ex, true, false, false)

	changed, err := a.ChangedOrNewlyOverriddenFunctions(context.Background(), oldFile, newFile)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Nil(t, changed[0].Function.ClassName)
	assert.Nil(t, changed[0].File)
}

func TestDeletedFunctions(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "old.cpp")
	newFile := filepath.Join(dir, "new.cpp")

	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		oldFile: {{File: oldFile, Signature: "foo()", StartLine: 1, EndLine: 2}},
		newFile: {},
	}}
	a := New(ex, false, false, false)

	deleted, err := a.DeletedFunctions(context.Background(), oldFile, newFile)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "foo()", deleted[0].Function.Signature)
}

func TestChangedNonFunctionalEntities_AddedChangedDeleted(t *testing.T) {
	dir := t.TempDir()
	oldFile := filepath.Join(dir, "old.h")
	newFile := filepath.Join(dir, "new.h")
	writeLines(t, oldFile, "#define A 1", "#define B 2")
	writeLines(t, newFile, "#define A 2", "#define C 3")

	ex := &fakeExtractor{nonFuncs: map[string][]sourcetags.NonFunctionalEntityDefinition{
		oldFile: {
			{File: oldFile, Name: "A", StartLine: 1, EndLine: 1},
			{File: oldFile, Name: "B", StartLine: 2, EndLine: 2},
		},
		newFile: {
			{File: newFile, Name: "A", StartLine: 1, EndLine: 1},
			{File: newFile, Name: "C", StartLine: 2, EndLine: 2},
		},
	}}
	a := New(ex, false, false, false)

	changed, err := a.ChangedNonFunctionalEntities(context.Background(), oldFile, newFile)
	require.NoError(t, err)

	names := make(map[string]int)
	for _, c := range changed {
		names[c.Entity.Name]++
	}
	assert.Equal(t, 1, names["A"], "A changed value should be reported once")
	assert.Equal(t, 1, names["C"], "C is newly added")
	assert.Equal(t, 1, names["B"], "B is deleted")
}
