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
	"fmt"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/binaryrts/internal/selector"
)

func runUtils(sub string, args []string, globals GlobalFlags) error {
	switch sub {
	case "merge":
		return runUtilsMerge(args, globals)
	case "coverage":
		return runUtilsCoverage(args, globals)
	case "compare-traces":
		return runUtilsCompareTraces(args, globals)
	default:
		return fmt.Errorf("unknown utils subcommand: %s", sub)
	}
}

func runUtilsMerge(args []string, globals GlobalFlags) error {
	fset := flag.NewFlagSet("utils merge", flag.ExitOnError)
	output := fset.StringP("output", "o", ".", "Directory to write the merged excludes file to")
	includeFiles := fset.StringSlice("include", nil, "included.txt files to merge")
	excludeFiles := fset.StringSlice("exclude", nil, "excluded.txt files to merge")
	if err := fset.Parse(args); err != nil {
		return err
	}

	excludes, err := selector.MergeExcludes(*excludeFiles, *includeFiles)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*output, 0o755); err != nil {
		return err
	}
	return writeTestIDFile(filepath.Join(*output, excludedTestsFile), excludes)
}
