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

import "github.com/kraklabs/binaryrts/internal/config"

// evaluationDepth is the non-functional analysis depth every evaluation
// preset runs with, independent of the --non-functional-depth CLI default.
const evaluationDepth = 1

// EvaluationPresets returns the eight named RTS configurations `select
// --evaluation` runs in one invocation, so a project can compare every
// analysis combination's test-selection cost and safety side by side. The
// name prefix switches between "cpp" and "java" purely for output
// directory naming; it has no effect on selection behavior.
func EvaluationPresets(javaPrefix bool) []config.RTSConfiguration {
	prefix := "cpp"
	if javaPrefix {
		prefix = "java"
	}
	return []config.RTSConfiguration{
		{
			Name:                       prefix + "-func",
			NonFunctionalAnalysisDepth: evaluationDepth,
		},
		{
			Name:                       prefix + "-func-macro",
			NonFunctionalAnalysis:      true,
			NonFunctionalAnalysisDepth: evaluationDepth,
		},
		{
			Name:                       prefix + "-func-macro-retest-all",
			NonFunctionalRetestAll:     true,
			NonFunctionalAnalysisDepth: evaluationDepth,
		},
		{
			Name:                       prefix + "-func-scope",
			ScopeAnalysis:              true,
			NonFunctionalAnalysisDepth: evaluationDepth,
		},
		{
			Name:                       prefix + "-func-overload",
			OverloadAnalysis:           true,
			NonFunctionalAnalysisDepth: evaluationDepth,
		},
		{
			Name:                       prefix + "-func-virtual",
			VirtualAnalysis:            true,
			NonFunctionalAnalysisDepth: evaluationDepth,
		},
		{
			Name:                       prefix + "-func-all",
			ScopeAnalysis:              true,
			OverloadAnalysis:           true,
			VirtualAnalysis:            true,
			NonFunctionalAnalysis:      true,
			NonFunctionalAnalysisDepth: evaluationDepth,
		},
		{
			Name:                       prefix + "-file",
			FileLevel:                  true,
			NonFunctionalAnalysisDepth: evaluationDepth,
		},
	}
}
