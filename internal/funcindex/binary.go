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
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Binary serialization uses a self-describing, schema-checked record
// format rather than a generic object-graph encoder: a fixed magic and
// schema version guard against loading a file from an incompatible build,
// and every record is length-prefixed so a truncated file fails fast
// instead of silently reconstructing a partial object.
const (
	binaryMagic   uint32 = 0x46494458 // "FIDX"
	binarySchemaV uint16 = 1
)

// WriteBinary persists the index in the schema-checked binary form.
func (idx *Index) WriteBinary(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.BigEndian, binaryMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, binarySchemaV); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(idx.byID))); err != nil {
		return err
	}
	for _, fn := range idx.byID {
		if err := writeFunctionRecord(w, fn); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadBinary loads an index previously written by WriteBinary. Like
// ReadCSV, the result has no RepoRoot or Extractor bound.
func ReadBinary(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("read function index header: %w", err)
	}
	if magic != binaryMagic {
		return nil, fmt.Errorf("not a function index binary file (bad magic)")
	}
	var schema uint16
	if err := binary.Read(r, binary.BigEndian, &schema); err != nil {
		return nil, fmt.Errorf("read function index schema version: %w", err)
	}
	if schema != binarySchemaV {
		return nil, fmt.Errorf("unsupported function index schema version %d (expected %d)", schema, binarySchemaV)
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("read function index record count: %w", err)
	}

	idx := &Index{
		table:    make(map[string][]*CoveredFunction),
		sigCache: make(map[string][]*CoveredFunction),
	}
	for i := uint32(0); i < count; i++ {
		fn, err := readFunctionRecord(r)
		if err != nil {
			return nil, fmt.Errorf("read function index record %d: %w", i, err)
		}
		idx.byID = append(idx.byID, fn)
		idx.table[fn.File] = append(idx.table[fn.File], fn)
		idx.sigCache[fn.Signature] = append(idx.sigCache[fn.Signature], fn)
		if fn.ID+1 > idx.maxID {
			idx.maxID = fn.ID + 1
		}
	}
	return idx, nil
}

func writeFunctionRecord(w io.Writer, fn *CoveredFunction) error {
	if err := binary.Write(w, binary.BigEndian, fn.ID); err != nil {
		return err
	}
	if err := writeString(w, fn.File); err != nil {
		return err
	}
	if err := writeString(w, fn.Signature); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, int32(fn.Start)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, int32(fn.End)); err != nil {
		return err
	}
	if err := writeOptString(w, fn.Properties); err != nil {
		return err
	}
	if err := writeOptString(w, fn.Namespace); err != nil {
		return err
	}
	return writeOptString(w, fn.ClassName)
}

func readFunctionRecord(r io.Reader) (*CoveredFunction, error) {
	fn := &CoveredFunction{}
	if err := binary.Read(r, binary.BigEndian, &fn.ID); err != nil {
		return nil, err
	}
	var err error
	if fn.File, err = readString(r); err != nil {
		return nil, err
	}
	if fn.Signature, err = readString(r); err != nil {
		return nil, err
	}
	var start, end int32
	if err := binary.Read(r, binary.BigEndian, &start); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &end); err != nil {
		return nil, err
	}
	fn.Start, fn.End = int(start), int(end)
	if fn.Properties, err = readOptString(r); err != nil {
		return nil, err
	}
	if fn.Namespace, err = readOptString(r); err != nil {
		return nil, err
	}
	if fn.ClassName, err = readOptString(r); err != nil {
		return nil, err
	}
	return fn, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// writeOptString encodes a nil *string as a single 0x00 presence byte, and
// a present value (including an empty string) as 0x01 followed by the
// length-prefixed bytes.
func writeOptString(w io.Writer, s *string) error {
	if s == nil {
		_, err := w.Write([]byte{0})
		return err
	}
	if _, err := w.Write([]byte{1}); err != nil {
		return err
	}
	return writeString(w, *s)
}

func readOptString(r io.Reader) (*string, error) {
	var present [1]byte
	if _, err := io.ReadFull(r, present[:]); err != nil {
		return nil, err
	}
	if present[0] == 0 {
		return nil, nil
	}
	s, err := readString(r)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
