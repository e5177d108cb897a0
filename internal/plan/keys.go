// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint returns the cache key for a request: a SHA-256 over the
// normalized query, the profile and the sorted registered skill names.
// Queries differing only in case or whitespace share a fingerprint.
func Fingerprint(query, profile string, skillNames []string) string {
	names := append([]string(nil), skillNames...)
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(normalizeQuery(query)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(profile)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(names, ",")))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
