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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/binaryrts/internal/config"
	"github.com/kraklabs/binaryrts/internal/eventlog"
	"github.com/kraklabs/binaryrts/internal/funcindex"
	"github.com/kraklabs/binaryrts/internal/selector"
	"github.com/kraklabs/binaryrts/internal/sourcetags"
	"github.com/kraklabs/binaryrts/internal/traceindex"
	"github.com/kraklabs/binaryrts/internal/ui"
	"github.com/kraklabs/binaryrts/internal/vcs"
)

// selectCommonFlags are the flags shared by `select cpp` and
// `select syscalls`.
type selectCommonFlags struct {
	fromRevision string
	toRevision   string
	repoRoot     string
	output       string
	fileRegex    string
}

func addSelectCommonFlags(fs *flag.FlagSet) *selectCommonFlags {
	s := &selectCommonFlags{}
	fs.StringVarP(&s.fromRevision, "from", "f", "main", "Revision to diff from")
	fs.StringVarP(&s.toRevision, "to", "t", "HEAD", "Revision to diff to")
	fs.StringVar(&s.repoRoot, "repo", "", "Repository root (default: current directory)")
	fs.StringVarP(&s.output, "output", "o", ".", "Directory to write selection results to")
	fs.StringVar(&s.fileRegex, "regex", ".*", "Regex to include/exclude files from selection")
	return s
}

func runSelect(sub string, args []string, globals GlobalFlags) error {
	switch sub {
	case "cpp":
		return runSelectCpp(args, globals)
	case "syscalls":
		return runSelectSyscalls(args, globals)
	default:
		return fmt.Errorf("unknown select subcommand: %s", sub)
	}
}

func runSelectCpp(args []string, globals GlobalFlags) error {
	fset := flag.NewFlagSet("select cpp", flag.ExitOnError)
	common := addSelectCommonFlags(fset)
	var (
		lookupFile              = fset.String("lookup", "", "Function lookup file (.csv or .bin) produced by `convert cpp`")
		tracesFile              = fset.String("traces", "", "Test function traces file (.csv) produced by `convert cpp`")
		nonFunctional           = fset.Bool("non-functional", false, "Enable call analysis of macros, globals, and member variables")
		nonFunctionalDepth      = fset.Int("non-functional-depth", config.NonFunctionalAnalysisDepthDefault, "How far up the directory tree to walk for non-functional usages")
		nonFunctionalRetestAll  = fset.Bool("non-functional-retest-all", false, "Fall back to retest-all on any non-functional change")
		fileLevel               = fset.Bool("file-level", false, "Select at file granularity instead of function granularity")
		scopeAnalysis           = fset.Bool("scope-analysis", false, "Mark same-signature outer-scope functions affected by an added function")
		overloadAnalysis        = fset.Bool("overload-analysis", false, "Mark same-name functions affected by an added function")
		virtualAnalysis         = fset.Bool("virtual-analysis", false, "Mark overridden member functions' base implementations affected")
		generatedCodeRegex      = fset.String("generated-code", "", "Regex matching directories containing generated code")
		generatedCodeExt        = fset.StringSlice("generated-ext", nil, "Extensions that trigger file-level affecting for generated code")
		retestAllRegex          = fset.String("retest-all", "", "Regex for changed files that should trigger a retest-all")
		fileLevelRegex          = fset.String("file-level-regex", "", "Regex for changed files that trigger file-level selection for non-functional changes")
		useCscope               = fset.Bool("cscope", false, "Use cscope instead of a plain file walk to resolve non-functional call sites")
		evaluation              = fset.Bool("evaluation", false, "Run every built-in combination of analysis toggles")
		java                    = fset.Bool("java", false, "Use the java- prefix instead of cpp- for --evaluation output directories")
		configPath              = fset.String("config", "", "YAML file of named RTS configurations to run instead of the built-in --evaluation presets")
		metricsAddr             = fset.String("metrics-addr", "", "Address to serve Prometheus metrics on while selecting (e.g. :9090)")
	)
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *lookupFile == "" || *tracesFile == "" {
		return fmt.Errorf("--lookup and --traces are required")
	}

	git, repoRoot, err := gitClientFor(common.repoRoot)
	if err != nil {
		return err
	}
	common.repoRoot = repoRoot
	if err := os.MkdirAll(common.output, 0o755); err != nil {
		return err
	}

	idx, err := loadFunctionIndex(*lookupFile)
	if err != nil {
		return err
	}
	traces, err := loadFunctionTraces(*tracesFile)
	if err != nil {
		return err
	}

	metrics := startMetricsIfRequested(*metricsAddr)

	configs, err := resolveConfigurations(*evaluation, *java, *configPath, config.RTSConfiguration{
		FileLevel:                  *fileLevel,
		ScopeAnalysis:              *scopeAnalysis,
		OverloadAnalysis:           *overloadAnalysis,
		VirtualAnalysis:            *virtualAnalysis,
		NonFunctionalAnalysis:      *nonFunctional,
		NonFunctionalRetestAll:     *nonFunctionalRetestAll,
		NonFunctionalAnalysisDepth: *nonFunctionalDepth,
	})
	if err != nil {
		return err
	}

	extractor := sourcetags.NewCtagsExtractor()

	for _, cfg := range configs {
		outputDir := common.output
		if cfg.Name != "" {
			outputDir = filepath.Join(common.output, cfg.Name)
		}

		var algo selector.Selector
		if cfg.FileLevel {
			rts := selector.NewCppFileLevelRTS(git, common.repoRoot, idx, traces, outputDir)
			rts.IncludesRegex = common.fileRegex
			rts.GeneratedCodeRegex = *generatedCodeRegex
			rts.GeneratedCodeExts = *generatedCodeExt
			rts.RetestAllRegex = *retestAllRegex
			algo = rts
		} else {
			rts := selector.NewCppFunctionLevelRTS(git, common.repoRoot, idx, traces, extractor, outputDir)
			rts.IncludesRegex = common.fileRegex
			rts.GeneratedCodeRegex = *generatedCodeRegex
			rts.GeneratedCodeExts = *generatedCodeExt
			rts.RetestAllRegex = *retestAllRegex
			rts.NonFunctionalAnalysis = cfg.NonFunctionalAnalysis
			rts.NonFunctionalAnalysisDepth = cfg.NonFunctionalAnalysisDepth
			rts.NonFunctionalRetestAll = cfg.NonFunctionalRetestAll
			rts.ScopeAnalysis = cfg.ScopeAnalysis
			rts.OverloadAnalysis = cfg.OverloadAnalysis
			rts.VirtualAnalysis = cfg.VirtualAnalysis
			rts.FileLevelRegex = *fileLevelRegex
			rts.UseCscope = *useCscope
			algo = rts
		}

		if err := runRTSConfiguration(algo, outputDir, cfg.Name, common.fromRevision, common.toRevision, metrics); err != nil {
			return err
		}
	}
	return nil
}

func runSelectSyscalls(args []string, globals GlobalFlags) error {
	fset := flag.NewFlagSet("select syscalls", flag.ExitOnError)
	common := addSelectCommonFlags(fset)
	tracesFile := fset.String("traces", "", "Test file traces file (.csv) produced by `convert syscalls`")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if *tracesFile == "" {
		return fmt.Errorf("--traces is required")
	}

	git, _, err := gitClientFor(common.repoRoot)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(common.output, 0o755); err != nil {
		return err
	}

	traces, err := traceindex.ReadFileTracesCSV(*tracesFile)
	if err != nil {
		return err
	}

	rts := selector.NewSyscallFileLevelRTS(git, traces, common.output)
	rts.IncludesRegex = common.fileRegex

	return runRTSConfiguration(rts, common.output, "syscall", common.fromRevision, common.toRevision, nil)
}

// runRTSConfiguration runs one selection, writes its three output files,
// and brackets it with START/END events. Any error during selection falls
// back to retest-all rather than propagating, matching the original's
// conservative failure handling: a selector that can't decide must never
// silently skip tests.
func runRTSConfiguration(algo selector.Selector, outputDir, configName, fromRevision, toRevision string, metrics *eventlog.Metrics) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	logPath := filepath.Join(outputDir, eventLogFile)
	if err := eventlog.Append(logPath, eventlog.StartEvent(configName)); err != nil {
		return err
	}

	start := time.Now()
	included, excluded, causes, err := algo.SelectTests(context.Background(), fromRevision, toRevision)
	if metrics != nil {
		metrics.SelectionDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		ui.Warningf("selection failed for %q, falling back to retest-all: %v", configName, err)
		included, excluded, causes = selector.RetestAll([]string{string(selector.SelectionFailureCause)})
		if metrics != nil {
			metrics.SelectionFailures.Inc()
		}
	}

	if err := writeTestIDFile(filepath.Join(outputDir, includedTestsFile), included); err != nil {
		return err
	}
	if err := writeTestIDFile(filepath.Join(outputDir, excludedTestsFile), excluded); err != nil {
		return err
	}
	causesFile, err := os.Create(filepath.Join(outputDir, selectionCausesFile))
	if err != nil {
		return err
	}
	defer causesFile.Close()
	if err := json.NewEncoder(causesFile).Encode(causes); err != nil {
		return err
	}

	if metrics != nil {
		metrics.TestsIncluded.Add(float64(len(included)))
		metrics.TestsExcluded.Add(float64(len(excluded)))
	}

	return eventlog.Append(logPath, eventlog.EndEvent(configName))
}

func writeTestIDFile(path string, ids map[string]struct{}) error {
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Strings(list)
	return os.WriteFile(path, []byte(strings.Join(list, "\n")), 0o644)
}

// resolveConfigurations decides which RTSConfigurations to run: the 8 built
// -in presets under --evaluation, a user-supplied YAML list under
// --config, or just the single configuration built from CLI flags.
func resolveConfigurations(evaluation, java bool, configPath string, fromFlags config.RTSConfiguration) ([]config.RTSConfiguration, error) {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		if len(cfg.RTSConfigurations) > 0 {
			return cfg.RTSConfigurations, nil
		}
	}
	if evaluation {
		return selector.EvaluationPresets(java), nil
	}
	return []config.RTSConfiguration{fromFlags}, nil
}

func gitClientFor(repoRoot string) (*vcs.GitClient, string, error) {
	if repoRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		repoRoot = wd
	}
	if !vcs.IsGitRepo(repoRoot) {
		return nil, "", fmt.Errorf("not a git repository: %s", repoRoot)
	}
	client, err := vcs.NewGitClient(repoRoot)
	if err != nil {
		return nil, "", err
	}
	return client, repoRoot, nil
}

func loadFunctionIndex(path string) (*funcindex.Index, error) {
	if hasCSVExt(path) {
		return funcindex.ReadCSV(path)
	}
	return funcindex.ReadBinary(path)
}

func loadFunctionTraces(path string) (*traceindex.FunctionTraces, error) {
	lookupPath := filepath.Join(filepath.Dir(path), testLookupFile)
	if _, err := os.Stat(lookupPath); err != nil {
		lookupPath = ""
	}
	return traceindex.ReadFunctionTracesCSV(path, lookupPath)
}

func startMetricsIfRequested(addr string) *eventlog.Metrics {
	if addr == "" {
		return nil
	}
	metrics := eventlog.NewMetrics()
	go func() {
		if err := eventlog.ServeMetrics(addr); err != nil {
			ui.Warningf("metrics server stopped: %v", err)
		}
	}()
	return metrics
}
