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

package coverage

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Parser reads per-test dump files (basic-block coverage or syscall
// traces) and produces one TestCoverage per file, resolving the test's
// module/suite/case identity from its dump-lookup sibling file or from
// filename convention.
type Parser struct {
	extension string
	javaMode  bool
	regex     *regexp.Regexp
	logger    *slog.Logger

	// testIdentifierLookup maps a dump directory's base name (the test
	// module) to a map of bare dump filename -> raw test identifier, built
	// from that directory's dump-lookup file.
	testIdentifierLookup map[string]map[string]string
}

// NewParser builds a Parser from the set of dump-lookup files discovered
// alongside the coverage dumps being converted. includesRegex, when
// non-empty, is compiled case-insensitively and anchored at the start
// (Go's regexp package anchors via MatchString plus a leading ^, added
// here) to mirror the original's re.match semantics.
func NewParser(extension string, lookupFiles []string, javaMode bool, includesRegex string, logger *slog.Logger) (*Parser, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{
		extension:            extension,
		javaMode:             javaMode,
		logger:               logger,
		testIdentifierLookup: make(map[string]map[string]string),
	}
	if includesRegex != "" {
		re, err := regexp.Compile("(?i)^(?:" + includesRegex + ")")
		if err != nil {
			return nil, fmt.Errorf("compile includes regex: %w", err)
		}
		p.regex = re
	}
	for _, lookupFile := range lookupFiles {
		dir := filepath.Base(filepath.Dir(lookupFile))
		lookup, err := parseDumpLookup(lookupFile)
		if err != nil {
			logger.Warn("failed to parse dump lookup", "file", lookupFile, "error", err)
			continue
		}
		p.testIdentifierLookup[dir] = lookup
	}
	return p, nil
}

// parseDumpLookup reads a "<basename>;<raw_test_identifier>" file.
func parseDumpLookup(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lookup := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.Contains(line, CSVSep) {
			continue
		}
		fragments := strings.Split(line, CSVSep)
		if len(fragments) < 2 {
			continue
		}
		lookup[fragments[0]] = fragments[1]
	}
	return lookup, nil
}

// extractTestInfo derives (module, suite, case, result) for a dump file,
// by convention from its filename and parent directory unless overridden.
func (p *Parser) extractTestInfo(file, module, suite, testCase, result string) (string, string, string, string, error) {
	base := filepath.Base(file)
	fileNameWithoutExt := strings.Split(base, p.extension)[0]
	dir := filepath.Base(filepath.Dir(file))

	dirLookup, dirOK := p.testIdentifierLookup[dir]
	_, fileOK := dirLookup[fileNameWithoutExt]
	if (!dirOK || !fileOK) && suite == "" && testCase == "" {
		return "", "", "", "", fmt.Errorf("failed to find test suite or test case information for %s", file)
	}
	testIdentifier := dirLookup[fileNameWithoutExt]

	if module == "" {
		if p.javaMode {
			module = "*"
		} else {
			module = dir
		}
	}
	if suite == "" {
		if p.javaMode {
			suite = testIdentifier
		} else {
			suite = strings.Split(strings.Split(testIdentifier, TestSuiteSep)[0], TestResultSep)[0]
		}
	}
	if (testCase == "" && !strings.Contains(testIdentifier, TestSuiteSep)) || p.javaMode {
		testCase = "*"
	} else if testCase == "" && strings.Contains(testIdentifier, TestSuiteSep) {
		testCaseWithResult := strings.SplitN(testIdentifier, TestSuiteSep, 2)[1]
		parts := strings.SplitN(testCaseWithResult, TestResultSep, 2)
		testCase = parts[0]
		if len(parts) > 1 {
			result = parts[1]
		}
	}
	return module, suite, testCase, result, nil
}

// ParseCoverage parses one basic-block coverage dump file into a
// TestCoverage. Returns (nil, nil) when the file is irrelevant (e.g.
// BEFORE_PROGRAM_START) and also, after logging a warning, when its test
// identity can't be resolved. Per-line parse failures are logged and
// skipped; an error is returned only when the file can't be opened or read.
func (p *Parser) ParseCoverage(coverageFile, module, suite, testCase, result string) (*TestCoverage, error) {
	var err error
	module, suite, testCase, result, err = p.extractTestInfo(coverageFile, module, suite, testCase, result)
	if err != nil {
		p.logger.Warn("failed to parse coverage", "file", coverageFile, "error", err)
		return nil, nil
	}
	if suite == beforeProgramStart {
		return nil, nil
	}

	tc := NewTestCoverage(module, suite, testCase, result)

	f, err := os.Open(coverageFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "+0x") {
			continue
		}
		if !strings.Contains(line, "\\") && !strings.Contains(line, "/") {
			continue
		}
		idx := strings.Index(line, "+0x")
		rest := line[idx+len("+0x"):]
		fragments := strings.Split(rest, CoverageSep)
		if len(fragments) < 4 {
			p.logger.Warn("failed to parse coverage line", "line", line)
			continue
		}
		filePath := fragments[1]
		if p.regex != nil && !p.regex.MatchString(filePath) {
			continue
		}
		lineNo, err := strconv.Atoi(strings.TrimSpace(fragments[3]))
		if err != nil {
			p.logger.Warn("failed to parse coverage line number", "line", line, "error", err)
			continue
		}
		tc.Covered[CoveredLine{File: filePath, Symbol: fragments[2], Line: lineNo}] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return tc, nil
}

// ParseSyscalls parses one syscall-trace dump file into a TestCoverage
// whose Files set holds every accessed, regex-matched absolute path.
func (p *Parser) ParseSyscalls(syscallsFile, module, suite, testCase, result string) (*TestCoverage, error) {
	var err error
	module, suite, testCase, result, err = p.extractTestInfo(syscallsFile, module, suite, testCase, result)
	if err != nil {
		p.logger.Warn("failed to parse syscalls", "file", syscallsFile, "error", err)
		return nil, nil
	}
	if suite == beforeProgramStart {
		return nil, nil
	}

	tc := NewTestCoverage(module, suite, testCase, result)

	f, err := os.Open(syscallsFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		line = strings.ReplaceAll(line, `\??\`, "")
		abs, err := filepath.Abs(line)
		if err != nil {
			p.logger.Warn("failed to resolve accessed file", "line", line, "error", err)
			continue
		}
		if p.regex != nil && !p.regex.MatchString(abs) {
			continue
		}
		tc.Files[abs] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return tc, nil
}
