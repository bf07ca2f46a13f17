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

	"github.com/kraklabs/binaryrts/internal/sourcetags"
)

func buildSampleIndex(t *testing.T) *Index {
	t.Helper()
	ns := "app::detail"
	cls := "Widget"
	props := "const"
	ex := &fakeExtractor{functions: map[string][]sourcetags.FunctionDefinition{
		"a.cpp": {
			{File: "a.cpp", Signature: "foo()", StartLine: 1, EndLine: 5, Namespace: &ns, ClassName: &cls, Properties: &props},
			{File: "a.cpp", Signature: "bar()", StartLine: 7, EndLine: 9},
		},
	}}
	idx := NewIndex("", ex)
	_, err := idx.AddFunctions(context.Background(), "a.cpp")
	require.NoError(t, err)
	return idx
}

func TestCSV_RoundTrip(t *testing.T) {
	idx := buildSampleIndex(t)
	path := filepath.Join(t.TempDir(), "funcs.csv")
	require.NoError(t, idx.WriteCSV(path))

	loaded, err := ReadCSV(path)
	require.NoError(t, err)
	require.Equal(t, idx.Len(), loaded.Len())

	for i := 0; i < idx.Len(); i++ {
		want, _ := idx.GetByID(uint32(i))
		got, ok := loaded.GetByID(uint32(i))
		require.True(t, ok)
		assert.Equal(t, want.File, got.File)
		assert.Equal(t, want.Signature, got.Signature)
		assert.Equal(t, want.Start, got.Start)
		assert.Equal(t, want.End, got.End)
		assert.Equal(t, want.Namespace, got.Namespace)
		assert.Equal(t, want.ClassName, got.ClassName)
		assert.Equal(t, want.Properties, got.Properties)
	}
}

func TestCSV_RoundTrip_NilOptionalFields(t *testing.T) {
	idx := buildSampleIndex(t)
	path := filepath.Join(t.TempDir(), "funcs.csv")
	require.NoError(t, idx.WriteCSV(path))

	loaded, err := ReadCSV(path)
	require.NoError(t, err)
	second, ok := loaded.GetByID(1)
	require.True(t, ok)
	assert.Nil(t, second.Namespace)
	assert.Nil(t, second.ClassName)
	assert.Nil(t, second.Properties)
}
