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

package funcindex

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// csvNone is the sentinel written for a nil optional field, matching the
// original's "None" literal.
const csvNone = "None"

// WriteCSV persists the index as one row per function, ordered by id:
// id;file;signature;start;end;properties;namespace;class
func (idx *Index) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, fn := range idx.byID {
		row := []string{
			strconv.FormatUint(uint64(fn.ID), 10),
			fn.File,
			fn.Signature,
			strconv.Itoa(fn.Start),
			strconv.Itoa(fn.End),
			optOrNone(fn.Properties),
			optOrNone(fn.Namespace),
			optOrNone(fn.ClassName),
		}
		if _, err := w.WriteString(strings.Join(row, CSVSep) + "\n"); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadCSV loads a Function Index previously written by WriteCSV. The
// resulting Index has no RepoRoot and no Extractor; it is read-only (calls
// to AddFunctions on it will fail on any file already present, and cannot
// succeed against fresh files since there is no extractor configured).
func ReadCSV(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx := &Index{
		table:    make(map[string][]*CoveredFunction),
		sigCache: make(map[string][]*CoveredFunction),
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, CSVSep)
		if len(fields) != 8 {
			return nil, fmt.Errorf("funcindex csv line %d: expected 8 fields, got %d", lineNo, len(fields))
		}
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("funcindex csv line %d: bad id: %w", lineNo, err)
		}
		start, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("funcindex csv line %d: bad start: %w", lineNo, err)
		}
		end, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("funcindex csv line %d: bad end: %w", lineNo, err)
		}
		fn := &CoveredFunction{
			ID:         uint32(id),
			File:       fields[1],
			Signature:  fields[2],
			Start:      start,
			End:        end,
			Properties: noneOrOpt(fields[5]),
			Namespace:  noneOrOpt(fields[6]),
			ClassName:  noneOrOpt(fields[7]),
		}
		idx.byID = append(idx.byID, fn)
		idx.table[fn.File] = append(idx.table[fn.File], fn)
		idx.sigCache[fn.Signature] = append(idx.sigCache[fn.Signature], fn)
		if id+1 > uint64(idx.maxID) {
			idx.maxID = uint32(id + 1)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return idx, nil
}

func optOrNone(s *string) string {
	if s == nil {
		return csvNone
	}
	return *s
}

func noneOrOpt(s string) *string {
	if s == csvNone {
		return nil
	}
	v := s
	return &v
}
