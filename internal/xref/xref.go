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

// Package xref implements the cross-reference searcher (C7): finding call
// sites of a non-functional symbol (a macro or global) across a C/C++
// source tree, backed by a plain directory walk by default and by cscope,
// grep, or findstr as opt-in external-tool backends.
package xref

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kraklabs/binaryrts/internal/rtserrors"
	"github.com/kraklabs/binaryrts/internal/sourcetags"
)

// cTokenPattern brackets a symbol name with a non-identifier character on
// each side, so a search for "FOO" does not also match "FOOBAR".
const cTokenPattern = `[\s;*%|&~^+\-/><,()!.=?{}]`

const subprocessTimeout = 10 * time.Minute
const cscopeTimeout = 10 * time.Minute

// CallSite is one location referencing a searched-for symbol.
type CallSite struct {
	Path   string
	LineNo int
	Name   string
}

// Backend selects which external tool (if any) GetCallSites shells out to.
type Backend int

const (
	// BackendWalk is the default: read every C/C++-like file in RootDir
	// directly and regex-match each line. No external tool required.
	BackendWalk Backend = iota
	BackendCscope
	BackendGrep
	BackendFindstr
)

// Analyzer is the Cross-reference Searcher (C7).
type Analyzer struct {
	RootDir string
	Backend Backend
}

// New returns an Analyzer rooted at rootDir using the given backend.
func New(rootDir string, backend Backend) *Analyzer {
	return &Analyzer{RootDir: rootDir, Backend: backend}
}

// GetCallSites searches for call sites of symbolName under a.RootDir.
// fileRelativeTo, when non-empty, causes returned paths to be relativized
// to it instead of left absolute.
func (a *Analyzer) GetCallSites(ctx context.Context, symbolName, fileRelativeTo string) ([]CallSite, error) {
	switch a.Backend {
	case BackendCscope:
		return a.callSitesFromCscope(ctx, symbolName, fileRelativeTo)
	case BackendGrep:
		return a.callSitesFromGrep(ctx, symbolName, fileRelativeTo)
	case BackendFindstr:
		return a.callSitesFromFindstr(ctx, symbolName, fileRelativeTo)
	default:
		return a.callSitesFromWalk(symbolName, fileRelativeTo)
	}
}

func tokenPattern(symbolName string) *regexp.Regexp {
	return regexp.MustCompile(cTokenPattern + regexp.QuoteMeta(symbolName) + cTokenPattern)
}

// callSitesFromWalk is the dependency-free default backend: it reads every
// recognized C/C++ file under RootDir and regex-matches each line.
func (a *Analyzer) callSitesFromWalk(symbolName, fileRelativeTo string) ([]CallSite, error) {
	pattern := tokenPattern(symbolName)
	var sites []CallSite

	err := filepath.Walk(a.RootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || !sourcetags.IsCFile(path) {
			return nil
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if pattern.MatchString(scanner.Text()) {
				relPath, rerr := relativize(path, fileRelativeTo)
				if rerr != nil {
					continue
				}
				sites = append(sites, CallSite{Path: relPath, LineNo: lineNo})
			}
		}
		return nil
	})
	if err != nil {
		return nil, rtserrors.Wrap(rtserrors.ErrSearchFailure, err)
	}
	return sites, nil
}

// callSitesFromGrep shells out to `grep -rn --binary-files=without-match
// --no-messages -F` over every C/C++ file extension.
func (a *Analyzer) callSitesFromGrep(ctx context.Context, symbolName, fileRelativeTo string) ([]CallSite, error) {
	grepPath, err := exec.LookPath("grep")
	if err != nil {
		return nil, nil
	}

	args := []string{"--recursive", "--with-filename", "--line-number",
		"--binary-files=without-match", "--no-messages", "--fixed-strings"}
	for ext := range sourcetags.CLikeExtensions {
		args = append(args, "--include=*"+ext)
	}
	args = append(args, symbolName, a.RootDir)

	timeoutCtx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()
	cmd := exec.CommandContext(timeoutCtx, grepPath, args...)
	out, err := cmd.Output()
	// grep exits 1 when there are no matches at all; that's not a failure.
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, rtserrors.Wrap(rtserrors.ErrSearchFailure, fmt.Errorf("grep failed: %w", err))
	}
	return parseGrepStyleOutput(symbolName, string(out), fileRelativeTo), nil
}

// callSitesFromFindstr shells out to the Windows findstr.exe tool. On a
// non-Windows host (or one without findstr available) this returns no
// results rather than erroring, matching the original's silent no-op when
// the platform-specific executable can't be found.
func (a *Analyzer) callSitesFromFindstr(ctx context.Context, symbolName, fileRelativeTo string) ([]CallSite, error) {
	findstrPath, err := exec.LookPath("findstr.exe")
	if err != nil {
		return nil, nil
	}

	var files []string
	err = filepath.Walk(a.RootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if sourcetags.IsCFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, rtserrors.Wrap(rtserrors.ErrSearchFailure, err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	listFile, err := os.CreateTemp("", "findstr-*.log")
	if err != nil {
		return nil, err
	}
	defer os.Remove(listFile.Name())
	if _, err := listFile.WriteString(strings.Join(files, "\n")); err != nil {
		listFile.Close()
		return nil, err
	}
	listFile.Close()

	timeoutCtx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()
	cmd := exec.CommandContext(timeoutCtx, findstrPath, "/f:"+listFile.Name(), "/p", "/n", "/l", symbolName)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, rtserrors.Wrap(rtserrors.ErrSearchFailure, fmt.Errorf("findstr failed: %w", err))
	}
	return parseGrepStyleOutput(symbolName, string(out), fileRelativeTo), nil
}

// callSitesFromCscope lists every C/C++ source file in RootDir in a
// cscope.files inside a temporary directory, then shells out there to
// cscope -c -L -3 <symbol> (find functions calling this symbol).
func (a *Analyzer) callSitesFromCscope(ctx context.Context, symbolName, fileRelativeTo string) ([]CallSite, error) {
	cscopePath, err := exec.LookPath("cscope")
	if err != nil {
		return nil, nil
	}

	var files []string
	err = filepath.Walk(a.RootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if sourcetags.IsCFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, rtserrors.Wrap(rtserrors.ErrSearchFailure, err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "cscope-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	filesList := filepath.Join(dir, "cscope.files")
	if err := os.WriteFile(filesList, []byte(strings.Join(files, "\n")), 0o644); err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, cscopeTimeout)
	defer cancel()
	cmd := exec.CommandContext(timeoutCtx, cscopePath, "-c", "-L", "-3", symbolName)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, rtserrors.Wrap(rtserrors.ErrSearchFailure, fmt.Errorf("cscope failed: %w", err))
	}

	var sites []CallSite
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		lineNo, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		relPath, err := relativize(fields[0], fileRelativeTo)
		if err != nil {
			continue
		}
		sites = append(sites, CallSite{Path: relPath, LineNo: lineNo, Name: fields[1]})
	}
	return sites, nil
}

// parseGrepStyleOutput parses "<path>:<line>:<match>" output shared by the
// grep and findstr backends, discarding any line whose match doesn't
// actually contain symbolName token-bounded (both tools can match inside a
// longer identifier when --fixed-strings/-l literal matching is used).
func parseGrepStyleOutput(symbolName, output, fileRelativeTo string) []CallSite {
	pattern := tokenPattern(symbolName)
	var sites []CallSite
	for _, line := range strings.Split(output, "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			continue
		}
		lineNo, err := strconv.Atoi(parts[1])
		if err != nil || lineNo <= 0 {
			continue
		}
		if !pattern.MatchString(" " + parts[2] + " ") {
			continue
		}
		relPath, err := relativize(parts[0], fileRelativeTo)
		if err != nil {
			continue
		}
		sites = append(sites, CallSite{Path: relPath, LineNo: lineNo})
	}
	return sites
}

func relativize(path, fileRelativeTo string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if fileRelativeTo == "" {
		return abs, nil
	}
	root, err := filepath.Abs(fileRelativeTo)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
