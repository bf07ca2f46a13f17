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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/binaryrts/internal/ui"
)

// compareTracesReport is the symmetric difference of the included-test
// sets a given affected-entity set selects against two trace snapshots,
// a diagnostic for validating a trace re-collection didn't silently drop
// test-to-function mappings.
type compareTracesReport struct {
	OnlyInBefore []string `json:"only_in_before"`
	OnlyInAfter  []string `json:"only_in_after"`
	InBoth       int      `json:"in_both"`
}

func runUtilsCompareTraces(args []string, globals GlobalFlags) error {
	fset := flag.NewFlagSet("utils compare-traces", flag.ExitOnError)
	beforeFile := fset.String("before", "", "Test function traces file (.csv) from the earlier snapshot")
	afterFile := fset.String("after", "", "Test function traces file (.csv) from the later snapshot")
	entities := fset.StringSlice("entity", nil, "Affected function id to select against (repeatable)")
	entitiesFile := fset.String("entities-file", "", "File of affected function ids, one per line")
	jsonOutput := fset.Bool("json", false, "Output the report as JSON instead of text")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *beforeFile == "" || *afterFile == "" {
		return fmt.Errorf("--before and --after are required")
	}

	affected, err := buildAffectedEntitySet(*entities, *entitiesFile)
	if err != nil {
		return err
	}
	if len(affected) == 0 {
		return fmt.Errorf("at least one --entity or --entities-file entry is required")
	}

	before, err := loadFunctionTraces(*beforeFile)
	if err != nil {
		return err
	}
	after, err := loadFunctionTraces(*afterFile)
	if err != nil {
		return err
	}

	beforeIncluded, _, _ := before.SelectTests(affected)
	afterIncluded, _, _ := after.SelectTests(affected)

	report := compareTracesReport{}
	for testID := range beforeIncluded {
		if _, ok := afterIncluded[testID]; !ok {
			report.OnlyInBefore = append(report.OnlyInBefore, testID)
		} else {
			report.InBoth++
		}
	}
	for testID := range afterIncluded {
		if _, ok := beforeIncluded[testID]; !ok {
			report.OnlyInAfter = append(report.OnlyInAfter, testID)
		}
	}
	sort.Strings(report.OnlyInBefore)
	sort.Strings(report.OnlyInAfter)

	if *jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(report)
	}
	printCompareTracesReport(report)
	return nil
}

// buildAffectedEntitySet merges explicit --entity values with the lines of
// --entities-file, if given.
func buildAffectedEntitySet(entities []string, entitiesFile string) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if e != "" {
			set[e] = struct{}{}
		}
	}
	if entitiesFile == "" {
		return set, nil
	}
	f, err := os.Open(entitiesFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			set[line] = struct{}{}
		}
	}
	return set, scanner.Err()
}

func printCompareTracesReport(r compareTracesReport) {
	ui.Header("Trace comparison")
	fmt.Printf("%s %s\n", ui.Label("Selected in both snapshots:"), ui.CountText(r.InBoth))
	fmt.Printf("%s %s\n", ui.Label("Only selected before:"), ui.CountText(len(r.OnlyInBefore)))
	for _, testID := range r.OnlyInBefore {
		fmt.Printf("  %s\n", ui.DimText(testID))
	}
	fmt.Printf("%s %s\n", ui.Label("Only selected after:"), ui.CountText(len(r.OnlyInAfter)))
	for _, testID := range r.OnlyInAfter {
		fmt.Printf("  %s\n", ui.DimText(testID))
	}
}
