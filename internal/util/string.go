// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "strings"

// TruncateRunes shortens s to at most maxRunes runes, replacing the tail
// with "..." when it had to cut. Multi-byte characters are never split.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// SingleLine collapses every run of whitespace, newlines included, into a
// single space so that multi-line text fits one terminal row.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
