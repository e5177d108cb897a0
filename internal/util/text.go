// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "unicode/utf8"

// TruncateRunes shortens s to at most max runes, ending with "..." when
// something was cut and there is room for it. Multi-byte characters are
// never split.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max
	if max > 3 {
		keep = max - 3
	}
	n := 0
	for i := range s {
		if n == keep {
			if max > 3 {
				return s[:i] + "..."
			}
			return s[:i]
		}
		n++
	}
	return s
}
