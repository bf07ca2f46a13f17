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

// Package main implements the binaryrts CLI: converting raw coverage dumps
// into test traces, and selecting the subset of tests affected by a VCS
// revision range.
//
// Usage:
//
//	binaryrts convert cpp      --input <dir> --output <dir> [--java] [--symbols --resolver <path>]
//	binaryrts convert syscalls --input <dir> --output <dir>
//	binaryrts select cpp       --lookup <file> --traces <file> --from <rev> --to <rev> [--evaluation]
//	binaryrts select syscalls  --traces <file> --from <rev> --to <rev>
//	binaryrts utils merge      --include <file>... --exclude <file>... -o <dir>
//	binaryrts utils coverage   --lookup <file> --traces <file>
//	binaryrts utils compare-traces --before <file> --after <file> --entity <id>...
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/binaryrts/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the flags recognized before the command/subcommand
// pair, mirroring the teacher CLI's top-level flag struct.
type GlobalFlags struct {
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		verbose     = flag.CountP("verbose", "v", "Increase verbosity (-v for info, -vv for debug)")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
	)
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `binaryrts - Regression Test Selection for native test suites

Usage:
  binaryrts <command> <subcommand> [options]

Commands:
  convert cpp       Convert raw basic-block coverage dumps into function traces
  convert syscalls   Convert raw syscall/file-access dumps into file traces
  select cpp        Select tests affected by a revision range (function/file level)
  select syscalls    Select tests affected by a revision range (opened-files level)
  utils merge       Merge included/excluded test-id files into one excludes file
  utils coverage    Summarize a converted function-lookup/test-traces pair
  utils compare-traces Diff selection results between two trace snapshots

Global Options:
  --no-color      Disable color output
  -v, --verbose   Increase verbosity
  -q, --quiet     Suppress non-essential output
  -V, --version   Show version and exit

For detailed command help: binaryrts <command> <subcommand> --help
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("binaryrts version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	globals := GlobalFlags{NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}
	ui.InitColors(globals.NoColor)
	switch {
	case globals.Verbose >= 2:
		slog.SetLogLoggerLevel(slog.LevelDebug)
	case globals.Verbose == 0:
		slog.SetLogLoggerLevel(slog.LevelWarn)
	}

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	group, sub, rest := args[0], args[1], args[2:]

	var err error
	switch group {
	case "convert":
		err = runConvert(sub, rest, globals)
	case "select":
		err = runSelect(sub, rest, globals)
	case "utils":
		err = runUtils(sub, rest, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", group)
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		ui.Warningf("error: %v", err)
		os.Exit(1)
	}
}
