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

package sourcetags

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/binaryrts/internal/rtserrors"
)

// ExtractorTimeout bounds every ctags subprocess invocation, per the
// 10-minute external-tool timeout required across the codebase.
const ExtractorTimeout = 10 * time.Minute

// autoRegisterServiceMacro works around one project's unconventional use of
// a service-registration macro that otherwise confuses ctags' C++ parser.
const autoRegisterServiceMacro = `AUTO_REGISTER_SERVICE(...)=namespace{void AUTO_REGISTER_SERVICE(__VA_ARGS__){}}`

// CtagsExtractor is the default C3 backend: it shells out to a ctags binary
// per file and parses its JSON-lines output into FunctionDefinition,
// TypeDefinition, and NonFunctionalEntityDefinition records.
type CtagsExtractor struct {
	// ExecutablePath overrides the default ctags lookup (PATH search for
	// "ctags"). Mainly useful for tests and bundled binaries.
	ExecutablePath string

	mu    sync.Mutex
	cache map[string]string
}

// NewCtagsExtractor returns a CtagsExtractor that resolves "ctags" from
// PATH, matching the original's default behavior outside of Windows-bundled
// setups.
func NewCtagsExtractor() *CtagsExtractor {
	return &CtagsExtractor{cache: make(map[string]string)}
}

func (c *CtagsExtractor) executable() string {
	if c.ExecutablePath != "" {
		return c.ExecutablePath
	}
	return "ctags"
}

// runCtags invokes ctags against file, caching raw output per file path
// since both Functions and NonFunctionalEntities parse the same tag stream.
func (c *CtagsExtractor) runCtags(ctx context.Context, file string, includePrototypes bool) (string, error) {
	c.mu.Lock()
	if out, ok := c.cache[file]; ok {
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	if _, err := os.Stat(file); err != nil {
		return "", rtserrors.Wrap(rtserrors.ErrExtractorFailure, err)
	}

	args := []string{
		`--fields-all=*`,
		`--fields-c++=-{macrodef}`,
		`--fields-c=-{macrodef}`,
		`--fields=-Prtl`,
		"-D", autoRegisterServiceMacro,
	}
	if includePrototypes {
		args = append(args, "--kinds-c=+p", "--kinds-c++=+p")
	}
	args = append(args, "--output-format=json", "--language-force=c++", file)

	timeoutCtx, cancel := context.WithTimeout(ctx, ExtractorTimeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, c.executable(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if timeoutCtx.Err() != nil {
			return "", rtserrors.Wrap(rtserrors.ErrExtractorFailure, fmt.Errorf("ctags timed out after %s: %w", ExtractorTimeout, timeoutCtx.Err()))
		}
		return "", rtserrors.Wrap(rtserrors.ErrExtractorFailure, fmt.Errorf("ctags failed: %w: %s", err, stderr.String()))
	}

	out := stdout.String()
	c.mu.Lock()
	c.cache[file] = out
	c.mu.Unlock()
	return out, nil
}

// ctagsLine mirrors CTagsJsonOutputLine's JSON field set.
type ctagsLine struct {
	Type           string `json:"_type"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	Line           int    `json:"line"`
	Kind           string `json:"kind"`
	End            *int   `json:"end,omitempty"`
	Access         string `json:"access,omitempty"`
	Scope          string `json:"scope,omitempty"`
	Signature      string `json:"signature,omitempty"`
	ScopeKind      string `json:"scopeKind,omitempty"`
	Properties     string `json:"properties,omitempty"`
	Extras         string `json:"extras,omitempty"`
	Template       string `json:"template,omitempty"`
	Inherits       string `json:"inherits,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

func (l ctagsLine) isConstExpr() bool {
	return strings.Contains(l.Properties, "constexpr") || strings.Contains(l.Properties, "consteval")
}

func splitScope(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Split(scope, "::")
}

func normalizeAnon(fragments []string) string {
	out := make([]string, len(fragments))
	for i, f := range fragments {
		if strings.Contains(f, "__anon") {
			out[i] = "anon"
		} else {
			out[i] = f
		}
	}
	return strings.Join(out, "::")
}

// toTypeDef mirrors CTagsJsonOutputLine.to_type_def.
func (l ctagsLine) toTypeDef(file string) *TypeDefinition {
	if l.Kind != "class" && l.Kind != "struct" {
		return nil
	}
	if l.End == nil {
		return nil
	}
	if l.Template == "" && l.Specialization == "" {
		return nil
	}
	fullName := l.Name + l.Template + l.Specialization
	var namespace *string
	if fragments := splitScope(l.Scope); len(fragments) > 0 {
		ns := normalizeAnon(fragments)
		namespace = &ns
	}
	return &TypeDefinition{
		File:      file,
		Name:      l.Name,
		FullName:  fullName,
		StartLine: l.Line,
		EndLine:   *l.End,
		Namespace: namespace,
	}
}

// toFuncDef mirrors CTagsJsonOutputLine.to_func_def.
func (l ctagsLine) toFuncDef(file string) *FunctionDefinition {
	if l.Kind != "function" && l.Kind != "prototype" {
		return nil
	}

	signature := l.Name
	if strings.HasPrefix(signature, "__anon") {
		signature = "lambda"
		if l.ScopeKind == "function" {
			return nil
		}
	}
	if l.Kind == "prototype" {
		signature = PrototypePrefix + signature
	}
	signature += l.Template
	signature += l.Specialization
	if l.Signature != "" {
		signature += ExtractRawSignature(l.Signature)
	}

	var namespace, className *string
	fragments := splitScope(l.Scope)
	if l.ScopeKind == "class" || l.ScopeKind == "struct" {
		if len(fragments) > 0 {
			cls := fragments[len(fragments)-1]
			className = &cls
			fragments = fragments[:len(fragments)-1]
		}
	}
	if len(fragments) > 0 {
		ns := normalizeAnon(fragments)
		namespace = &ns
	}

	var properties *string
	if l.Properties != "" {
		p := l.Properties
		properties = &p
	}

	end := l.Line
	if l.End != nil {
		end = *l.End
	}

	return &FunctionDefinition{
		File:       file,
		Signature:  signature,
		StartLine:  l.Line,
		EndLine:    end,
		Namespace:  namespace,
		ClassName:  className,
		Properties: properties,
	}
}

// Functions implements Extractor.
func (c *CtagsExtractor) Functions(ctx context.Context, file string, includePrototypes bool) ([]FunctionDefinition, error) {
	output, err := c.runCtags(ctx, file, includePrototypes)
	if err != nil {
		return nil, err
	}

	var functions []FunctionDefinition
	typeDefs := make(map[string][]TypeDefinition)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var raw ctagsLine
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		absFile := file
		if p, err := filepath.Abs(file); err == nil {
			absFile = p
		}
		if t := raw.toTypeDef(absFile); t != nil {
			typeDefs[t.Name] = append(typeDefs[t.Name], *t)
			continue
		}
		if f := raw.toFuncDef(absFile); f != nil {
			functions = append(functions, *f)
		}
	}

	for i := range functions {
		fn := &functions[i]
		if fn.ClassName == nil {
			continue
		}
		for _, td := range typeDefs[*fn.ClassName] {
			if td.StartLine <= fn.StartLine && fn.StartLine <= td.EndLine {
				full := td.FullName
				fn.ClassName = &full
				break
			}
		}
	}

	return functions, nil
}

// NonFunctionalEntities implements Extractor.
func (c *CtagsExtractor) NonFunctionalEntities(ctx context.Context, file string) ([]NonFunctionalEntityDefinition, error) {
	output, err := c.runCtags(ctx, file, false)
	if err != nil {
		return nil, err
	}

	var entities []NonFunctionalEntityDefinition
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var raw ctagsLine
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		isNonFunctional := raw.Kind == "macro" || raw.Kind == "member" ||
			raw.Kind == "variable" || raw.Kind == "enumerator" ||
			raw.Kind == "externvar" || (raw.Kind == "function" && raw.isConstExpr())
		if !isNonFunctional {
			continue
		}
		props := raw.Kind + raw.Properties
		end := raw.Line
		if raw.End != nil {
			end = *raw.End
		}
		absFile := file
		if p, err := filepath.Abs(file); err == nil {
			absFile = p
		}
		entities = append(entities, NonFunctionalEntityDefinition{
			File:       absFile,
			Name:       raw.Name,
			StartLine:  raw.Line,
			EndLine:    end,
			Properties: &props,
		})
	}
	return entities, nil
}

// availableCtagsPaths lists per-platform candidate ctags locations,
// mirroring the original's Windows-bundled vs. /usr/local/bin default split.
// executable does not consult it: without ExecutablePath it runs "ctags"
// from PATH.
func availableCtagsPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{"ctags.exe", "ctags"}
	}
	return []string{"/usr/local/bin/ctags", "ctags"}
}
