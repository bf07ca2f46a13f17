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

// Package tmpmaterialize provides scoped acquisition wrappers for the
// temporary files this codebase creates when materializing a file's content
// at a given VCS revision. File and Dir guarantee deletion on every exit
// path, including
// panics, adapted from the embedded-backend open/close-with-cleanup shape
// the teacher uses for its local database handle.
package tmpmaterialize

import (
	"os"
	"path/filepath"
)

// File materializes content into a new temporary file with the given
// suffix, invokes fn with its path, and removes the file unconditionally
// afterwards, even if fn panics.
func File(suffix string, content []byte, fn func(path string) error) (err error) {
	f, err := os.CreateTemp("", "binaryrts-*"+suffix)
	if err != nil {
		return err
	}
	path := f.Name()
	defer func() {
		_ = os.Remove(path)
	}()

	if _, werr := f.Write(content); werr != nil {
		_ = f.Close()
		return werr
	}
	if cerr := f.Close(); cerr != nil {
		return cerr
	}

	return fn(path)
}

// Dir creates a temporary directory, invokes fn with its path, and removes
// the directory (recursively) unconditionally afterwards.
func Dir(prefix string, fn func(dir string) error) (err error) {
	dir, err := os.MkdirTemp("", prefix+"-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()
	return fn(dir)
}

// WriteFileList writes one path per line into a new file inside dir and
// returns the new file's path. The cscope backend in internal/xref writes
// its cscope.files list itself and does not call it.
func WriteFileList(dir, name string, paths []string) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	for _, p := range paths {
		if _, err := f.WriteString(p + "\n"); err != nil {
			return "", err
		}
	}
	return path, nil
}
