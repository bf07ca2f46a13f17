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

// Package ui provides color-aware terminal output for the binaryrts
// CLI: headers, labels, counts, and warnings that degrade cleanly to plain
// text when colors are disabled, NO_COLOR is set, or stdout isn't a TTY.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
	warningColor = color.New(color.FgYellow, color.Bold)
	countColor   = color.New(color.FgGreen)
	enabled      = true
)

// InitColors enables or disables colored output. It is called once from
// main() after global flags are parsed, mirroring the teacher CLI's
// ui.InitColors(noColor) call.
func InitColors(noColor bool) {
	enabled = !noColor && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())
	color.NoColor = !enabled
}

// Header prints a bold cyan section header.
func Header(text string) {
	fmt.Println(headerColor.Sprint(text))
}

// SubHeader prints a bold sub-section header.
func SubHeader(text string) {
	fmt.Println(labelColor.Sprint(text))
}

// Label formats a bold label for use inline with Printf.
func Label(text string) string {
	return labelColor.Sprint(text)
}

// DimText formats de-emphasized text such as file paths.
func DimText(text string) string {
	return dimColor.Sprint(text)
}

// CountText formats an integer count in green.
func CountText(n int) string {
	return countColor.Sprintf("%d", n)
}

// Warning prints a yellow warning line to stderr.
func Warning(text string) {
	fmt.Fprintln(os.Stderr, warningColor.Sprint(text))
}

// Warningf formats and prints a yellow warning line to stderr.
func Warningf(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, warningColor.Sprintf(format, args...))
}

// Info prints an informational line to stderr.
func Info(text string) {
	fmt.Fprintln(os.Stderr, text)
}

// Infof formats and prints an informational line to stderr.
func Infof(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}
