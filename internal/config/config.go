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

// Package config loads the optional YAML configuration file that backs
// `select cpp --config <file>`: a named list of RTS configurations to run in
// one invocation in place of the eight built-in --evaluation presets.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// RTSConfiguration names one selection strategy to run. Field names mirror
// the original's RTSConfiguration dataclass.
type RTSConfiguration struct {
	Name                        string `yaml:"name"`
	FileLevel                   bool   `yaml:"file_level"`
	ScopeAnalysis               bool   `yaml:"scope_analysis"`
	OverloadAnalysis            bool   `yaml:"overload_analysis"`
	VirtualAnalysis             bool   `yaml:"virtual_analysis"`
	NonFunctionalAnalysis       bool   `yaml:"non_functional_analysis"`
	NonFunctionalRetestAll      bool   `yaml:"non_functional_retest_all"`
	NonFunctionalAnalysisDepth  int    `yaml:"non_functional_analysis_depth"`
}

// Config is the top-level document loaded from --config.
type Config struct {
	RTSConfigurations []RTSConfiguration `yaml:"rts_configurations"`
}

// Load reads and parses a YAML configuration file. An empty path yields a
// zero-value Config rather than an error, since --config is optional.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// getEnv reads an environment variable, falling back to def when unset or
// empty, mirroring the teacher's getEnv helper in cmd/cie/config.go.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// NonFunctionalAnalysisDepthDefault matches the depth the CLI defaults
// --non-functional-depth to when a user passes --non-functional without an
// explicit depth.
const NonFunctionalAnalysisDepthDefault = 2

// EnvRepoRoot reads BINARYRTS_REPO_ROOT, defaulting to "." when it is unset,
// following the getEnv idiom above. The --repo flags do not fall back to it.
func EnvRepoRoot() string {
	return getEnv("BINARYRTS_REPO_ROOT", ".")
}
