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

package selector

import (
	"bufio"
	"os"
	"strings"
)

// MergeExcludes implements `utils merge`: folding one or more excluded.txt
// files into a single exclude set, then letting included.txt files punch
// holes back into it. A bare "*" entry in an include file resets the
// exclude set to empty and stops processing that file immediately, since it
// means "retest everything" and no later exclusion can override that.
func MergeExcludes(excludeFiles, includeFiles []string) (map[string]struct{}, error) {
	finalExcludes := make(map[string]struct{})

	for _, file := range excludeFiles {
		ids, err := readLines(file)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			finalExcludes[id] = struct{}{}
		}
	}

	for _, file := range includeFiles {
		ids, err := readLines(file)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if id == "*" {
				finalExcludes = make(map[string]struct{})
				break
			}
			delete(finalExcludes, id)
		}
	}

	return finalExcludes, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
