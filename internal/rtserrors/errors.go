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

// Package rtserrors declares the sentinel error taxonomy used across the
// selection pipeline so callers can classify failures with errors.Is instead
// of string matching.
package rtserrors

import "errors"

var (
	// ErrParseFailure marks a per-record coverage parsing failure. Logged and
	// skipped by the caller; never propagates past the file being parsed.
	ErrParseFailure = errors.New("parse failure")

	// ErrUncoveredLine marks a covered line that falls outside every function
	// of an already-loaded file.
	ErrUncoveredLine = errors.New("uncovered line")

	// ErrExtractorFailure marks a tag-extractor subprocess timeout or
	// non-zero exit.
	ErrExtractorFailure = errors.New("extractor failure")

	// ErrSearchFailure marks a cross-reference searcher subprocess timeout or
	// non-zero exit.
	ErrSearchFailure = errors.New("search failure")

	// ErrVcsFailure marks any content_at or diff failure from the VCS
	// changelist provider.
	ErrVcsFailure = errors.New("vcs failure")

	// ErrSelectionFailure marks any uncaught error during selection; callers
	// must fall back to retest-all when they see this.
	ErrSelectionFailure = errors.New("selection failure")

	// ErrConfigError marks a fatal CLI-boundary configuration problem
	// (unknown file format, missing required flag, unreadable binary file).
	ErrConfigError = errors.New("config error")
)

// Wrap attaches one of the sentinel errors above to a cause while preserving
// errors.Is/errors.Unwrap compatibility.
func Wrap(sentinel error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return &wrapped{sentinel: sentinel, cause: cause}
}

type wrapped struct {
	sentinel error
	cause    error
}

func (w *wrapped) Error() string {
	return w.sentinel.Error() + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() []error {
	return []error{w.sentinel, w.cause}
}
