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
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/binaryrts/internal/coverage"
	"github.com/kraklabs/binaryrts/internal/funcindex"
	"github.com/kraklabs/binaryrts/internal/mp"
	"github.com/kraklabs/binaryrts/internal/sourcetags"
	"github.com/kraklabs/binaryrts/internal/traceindex"
	"github.com/kraklabs/binaryrts/internal/ui"
)

// convertCommonFlags are the flags shared by `convert cpp` and
// `convert syscalls`, mirroring the original tool's callback-level options.
type convertCommonFlags struct {
	inputDir      string
	outputDir     string
	regex         string
	lookupName    string
	repoRoot      string
	clean         bool
	nProcesses    int
	binaryOutput  bool
}

func addConvertCommonFlags(fs *flag.FlagSet) *convertCommonFlags {
	c := &convertCommonFlags{}
	fs.StringVarP(&c.inputDir, "input", "i", ".", "Root directory where to search for coverage files")
	fs.StringVarP(&c.outputDir, "output", "o", ".", "Directory to write converted traces to")
	fs.StringVar(&c.regex, "regex", ".*", "Regular expression to filter covered files in test traces")
	fs.StringVar(&c.lookupName, "lookup", dumpLookupFileName, "Name of dump lookup file")
	fs.StringVar(&c.repoRoot, "repo", "", "Repository root; if set, traced files are made relative to it")
	fs.BoolVar(&c.clean, "clean", false, "Delete source dump files after conversion")
	fs.IntVar(&c.nProcesses, "processes", 1, "Number of goroutine shards for parallelization")
	fs.BoolVar(&c.binaryOutput, "binary", false, "Write the function lookup table in the schema-checked binary format")
	fs.BoolVar(&c.binaryOutput, "pickle", false, "Alias for --binary")
	return c
}

func runConvert(sub string, args []string, globals GlobalFlags) error {
	switch sub {
	case "cpp":
		return runConvertCpp(args, globals)
	case "syscalls":
		return runConvertSyscalls(args, globals)
	default:
		return fmt.Errorf("unknown convert subcommand: %s", sub)
	}
}

func runConvertCpp(args []string, globals GlobalFlags) error {
	fset := flag.NewFlagSet("convert cpp", flag.ExitOnError)
	common := addConvertCommonFlags(fset)
	var (
		extension       = fset.StringP("ext", "e", ".log", "Coverage file extension to search for recursively")
		javaMode        = fset.Bool("java", false, "Analyze coverage from Java tests (one file per suite, no modules)")
		resolveSymbols  = fset.Bool("symbols", false, "Resolve raw basic-block offsets via an external symbol resolver")
		resolverPath    = fset.String("resolver", "", "Path to the BinaryRTS symbol resolver executable")
		createTestLookup = fset.Bool("test-lookup", true, "Write a side-file test lookup instead of repeating identities per row")
		useTreeSitter   = fset.Bool("tree-sitter", false, "Use the in-process tree-sitter backend instead of shelling out to ctags")
	)
	if err := fset.Parse(args); err != nil {
		return err
	}

	if *resolveSymbols && *resolverPath == "" {
		return fmt.Errorf("--symbols requires --resolver")
	}

	if err := os.MkdirAll(common.outputDir, 0o755); err != nil {
		return err
	}

	lookupFiles, err := globLookupFiles(common.inputDir, common.lookupName)
	if err != nil {
		return err
	}

	parseRegex := common.regex
	if *resolveSymbols {
		// The resolver is handed the regex directly; double-filtering here
		// would reject paths it already normalized.
		parseRegex = ""
	}
	logger := slog.Default()
	parser, err := coverage.NewParser(*extension, lookupFiles, *javaMode, parseRegex, logger)
	if err != nil {
		return err
	}

	files, err := filterAndSortCoverageFiles(common.inputDir, *extension, common.lookupName)
	if err != nil {
		return err
	}

	if *resolveSymbols {
		if err := resolveAllSymbols(files, *extension, common.regex, *resolverPath); err != nil {
			return err
		}
	}

	ui.Infof("parsing %d coverage files", len(files))
	allCoverage := parseCoverageFilesConcurrently(files, common.nProcesses, func(f string) (*coverage.TestCoverage, error) {
		return parser.ParseCoverage(f, "", "", "", "")
	})
	ui.Infof("parsed %d valid test coverage dumps, building traces", len(allCoverage))

	var extractor sourcetags.Extractor = sourcetags.NewCtagsExtractor()
	if *useTreeSitter {
		extractor = sourcetags.NewTreeSitterExtractor()
	}
	idx := funcindex.NewIndex(common.repoRoot, extractor)
	traces := traceindex.NewFunctionTraces()

	ctx := context.Background()
	for _, tc := range allCoverage {
		for line := range tc.Covered {
			fns, err := idx.FindOrAddFunctions(ctx, line.File, line.Line)
			if err != nil {
				logger.Debug("failed to look up covered line", "file", line.File, "line", line.Line, "error", err)
				continue
			}
			for _, fn := range fns {
				traces.AddDependency(tc.TestModule, tc.TestSuite, fn, tc.TestCase)
			}
		}
	}

	if common.binaryOutput {
		if err := idx.WriteBinary(filepath.Join(common.outputDir, functionLookupBinaryFile)); err != nil {
			return err
		}
	} else {
		if err := idx.WriteCSV(filepath.Join(common.outputDir, functionLookupFile)); err != nil {
			return err
		}
	}
	lookupPath := ""
	if *createTestLookup {
		lookupPath = filepath.Join(common.outputDir, testLookupFile)
	}
	if err := traces.WriteCSV(filepath.Join(common.outputDir, testFunctionTracesFile), lookupPath); err != nil {
		return err
	}

	if common.clean {
		return cleanDumpFiles(files)
	}
	return nil
}

func runConvertSyscalls(args []string, globals GlobalFlags) error {
	fset := flag.NewFlagSet("convert syscalls", flag.ExitOnError)
	common := addConvertCommonFlags(fset)
	extension := fset.StringP("ext", "e", ".log.syscalls", "File extension to search for recursively")
	if err := fset.Parse(args); err != nil {
		return err
	}

	if err := os.MkdirAll(common.outputDir, 0o755); err != nil {
		return err
	}

	lookupFiles, err := globLookupFiles(common.inputDir, common.lookupName)
	if err != nil {
		return err
	}
	parser, err := coverage.NewParser(*extension, lookupFiles, false, common.regex, slog.Default())
	if err != nil {
		return err
	}

	files, err := filterAndSortCoverageFiles(common.inputDir, *extension, common.lookupName)
	if err != nil {
		return err
	}

	ui.Infof("parsing %d syscall dumps", len(files))
	allCoverage := parseCoverageFilesConcurrently(files, common.nProcesses, func(f string) (*coverage.TestCoverage, error) {
		return parser.ParseSyscalls(f, "", "", "", "")
	})

	traces := traceindex.NewFileTraces(common.repoRoot)
	for _, tc := range allCoverage {
		traces.AddCoverage(tc)
	}

	if err := traces.WriteCSV(filepath.Join(common.outputDir, testFileTracesFile)); err != nil {
		return err
	}

	if common.clean {
		return cleanDumpFiles(files)
	}
	return nil
}

// globLookupFiles finds every dump-lookup sidecar file under root.
func globLookupFiles(root, lookupName string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == lookupName {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// filterAndSortCoverageFiles walks root for every file ending in extension,
// excluding the lookup sidecar and the listener/client's own post-suite
// dump named "coverage"+extension, sorted in descending path order; each
// shard of parseCoverageFilesConcurrently is parsed in that same order, so
// within a shard later-numbered dumps (typically more recent) come first.
func filterAndSortCoverageFiles(root, extension, lookupName string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, extension) {
			return nil
		}
		if name == lookupName || name == "coverage"+extension {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// parseCoverageFilesConcurrently shards files across nProcesses goroutines
// (shuffled first for balanced shard sizes, per the original's
// multiprocessing convention), parses each shard in descending path order,
// and flattens the per-shard results.
func parseCoverageFilesConcurrently(files []string, nProcesses int, parseOne func(file string) (*coverage.TestCoverage, error)) []*coverage.TestCoverage {
	if nProcesses < 1 {
		nProcesses = 1
	}
	results := mp.Run(files, nProcesses, func(shard []string) ([]*coverage.TestCoverage, error) {
		ordered := append([]string(nil), shard...)
		sort.Sort(sort.Reverse(sort.StringSlice(ordered)))
		var out []*coverage.TestCoverage
		for _, f := range ordered {
			tc, err := parseOne(f)
			if err != nil {
				slog.Default().Debug("failed to parse coverage file", "file", f, "error", err)
				continue
			}
			if tc != nil {
				out = append(out, tc)
			}
		}
		return out, nil
	})
	var all []*coverage.TestCoverage
	for _, r := range results {
		all = append(all, r.Value...)
	}
	return all
}

// resolveAllSymbols invokes the external symbol resolver once per unique
// directory containing a coverage dump; the resolver rewrites each dump
// file in place with resolved file:line:symbol records.
func resolveAllSymbols(files []string, extension, regex, resolverPath string) error {
	dirs := make(map[string]struct{})
	for _, f := range files {
		dirs[filepath.Dir(f)] = struct{}{}
	}
	ctx := context.Background()
	for dir := range dirs {
		resolver := &coverage.SymbolResolver{
			Root:           dir,
			Extension:      extension,
			FileRegex:      regex,
			ExecutablePath: resolverPath,
		}
		if _, err := resolver.Resolve(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

func cleanDumpFiles(files []string) error {
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			return err
		}
	}
	return nil
}
