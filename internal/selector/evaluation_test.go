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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluationPresets_CppNamesAndDepth(t *testing.T) {
	presets := EvaluationPresets(false)
	require := assert.New(t)
	require.Len(presets, 8)
	require.Equal("cpp-func", presets[0].Name)
	require.Equal("cpp-file", presets[len(presets)-1].Name)
	for _, p := range presets {
		require.Equal(evaluationDepth, p.NonFunctionalAnalysisDepth)
	}
}

func TestEvaluationPresets_JavaPrefix(t *testing.T) {
	presets := EvaluationPresets(true)
	assert.Equal(t, "java-func-all", presets[6].Name)
	assert.True(t, presets[6].ScopeAnalysis)
	assert.True(t, presets[6].OverloadAnalysis)
	assert.True(t, presets[6].VirtualAnalysis)
	assert.True(t, presets[6].NonFunctionalAnalysis)
}
