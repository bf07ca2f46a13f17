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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/binaryrts/internal/ui"
)

// coverageReport summarizes an already-converted function-lookup/
// test-function-traces pair, without re-running C1.
type coverageReport struct {
	Functions              int      `json:"functions"`
	Tests                  int      `json:"tests"`
	FunctionsPerTestMean   float64  `json:"functions_per_test_mean"`
	FunctionsPerTestMedian float64  `json:"functions_per_test_median"`
	ZeroCoverageFiles      []string `json:"zero_coverage_files"`
}

func runUtilsCoverage(args []string, globals GlobalFlags) error {
	fset := flag.NewFlagSet("utils coverage", flag.ExitOnError)
	lookupFile := fset.String("lookup", "", "Function lookup file (.csv or .bin) produced by `convert cpp`")
	tracesFile := fset.String("traces", "", "Test function traces file (.csv) produced by `convert cpp`")
	jsonOutput := fset.Bool("json", false, "Output the report as JSON instead of text")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *lookupFile == "" || *tracesFile == "" {
		return fmt.Errorf("--lookup and --traces are required")
	}

	idx, err := loadFunctionIndex(*lookupFile)
	if err != nil {
		return err
	}
	traces, err := loadFunctionTraces(*tracesFile)
	if err != nil {
		return err
	}

	report := coverageReport{Functions: idx.Len(), Tests: len(traces.Table)}

	counts := make([]int, 0, len(traces.Table))
	coveredIDs := make(map[string]struct{})
	for _, entities := range traces.Table {
		counts = append(counts, len(entities))
		for entity := range entities {
			coveredIDs[entity] = struct{}{}
		}
	}
	report.FunctionsPerTestMean, report.FunctionsPerTestMedian = meanAndMedian(counts)

	allFunctions, err := idx.FindFunctionsByFileRegex(".*")
	if err != nil {
		return err
	}
	fileHasCoverage := make(map[string]bool)
	for _, fn := range allFunctions {
		if _, ok := fileHasCoverage[fn.File]; !ok {
			fileHasCoverage[fn.File] = false
		}
		if _, covered := coveredIDs[fmt.Sprintf("%d", fn.ID)]; covered {
			fileHasCoverage[fn.File] = true
		}
	}
	for file, covered := range fileHasCoverage {
		if !covered {
			report.ZeroCoverageFiles = append(report.ZeroCoverageFiles, file)
		}
	}
	sort.Strings(report.ZeroCoverageFiles)

	if *jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(report)
	}
	printCoverageReport(report)
	return nil
}

// meanAndMedian computes the mean and median of counts, returning 0, 0 for
// an empty input.
func meanAndMedian(counts []int) (mean, median float64) {
	if len(counts) == 0 {
		return 0, 0
	}
	sorted := make([]int, len(counts))
	copy(sorted, counts)
	sort.Ints(sorted)

	sum := 0
	for _, c := range sorted {
		sum += c
	}
	mean = float64(sum) / float64(len(sorted))

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = float64(sorted[mid-1]+sorted[mid]) / 2
	} else {
		median = float64(sorted[mid])
	}
	return mean, median
}

func printCoverageReport(r coverageReport) {
	ui.Header("Coverage summary")
	fmt.Printf("%s %s\n", ui.Label("Functions:"), ui.CountText(r.Functions))
	fmt.Printf("%s %s\n", ui.Label("Tests:"), ui.CountText(r.Tests))
	fmt.Printf("%s %.2f\n", ui.Label("Functions per test (mean):"), r.FunctionsPerTestMean)
	fmt.Printf("%s %.2f\n", ui.Label("Functions per test (median):"), r.FunctionsPerTestMedian)
	if len(r.ZeroCoverageFiles) == 0 {
		return
	}
	fmt.Printf("%s %s\n", ui.Label("Files with zero covered functions:"), ui.CountText(len(r.ZeroCoverageFiles)))
	for _, file := range r.ZeroCoverageFiles {
		fmt.Printf("  %s\n", ui.DimText(file))
	}
}
