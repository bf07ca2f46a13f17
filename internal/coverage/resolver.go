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
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/kraklabs/binaryrts/internal/rtserrors"
)

// ResolverTimeout bounds the external symbol-resolver subprocess call, per
// the 10-minute external-tool timeout shared across every subprocess
// invocation in this codebase.
const ResolverTimeout = 10 * time.Minute

// SymbolResolver is a thin wrapper around an external binary that maps raw
// basic-block offsets to file:line:symbol records. Its internals are
// out of scope (an external collaborator); this type only owns the CLI
// contract for invoking it.
type SymbolResolver struct {
	Root               string
	Extension          string
	FileRegex          string
	ExecutablePath     string
}

// Resolve invokes the resolver binary against a directory of raw dumps,
// returning its stdout; on failure the resolver's stderr is included in the
// returned error.
func (s *SymbolResolver) Resolve(ctx context.Context, dumpDir string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, ResolverTimeout)
	defer cancel()

	args := []string{
		"-debug",
		"-root", s.Root,
		"-ext", s.Extension,
		"-regex", s.FileRegex,
		dumpDir,
	}
	cmd := exec.CommandContext(timeoutCtx, s.ExecutablePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if timeoutCtx.Err() != nil {
			return nil, rtserrors.Wrap(rtserrors.ErrExtractorFailure, fmt.Errorf("symbol resolver timed out after %s", ResolverTimeout))
		}
		return nil, rtserrors.Wrap(rtserrors.ErrExtractorFailure, fmt.Errorf("symbol resolver failed: %w: %s", err, stderr.String()))
	}
	return stdout.Bytes(), nil
}
