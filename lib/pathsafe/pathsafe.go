// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package pathsafe reduces an archive-relative path to one that is safe
// to join under an extraction root: no absolute roots, volume names, or
// ".." traversal components survive.
package pathsafe

import (
	"path/filepath"
	"strings"
)

// Sanitize keeps only the "normal" components of dirty — the ones that
// neither name a root/volume nor traverse upward — and rejoins them
// into a clean, relative path.
//
// An empty or all-traversal input sanitizes to "".
func Sanitize(dirty string) string {
	dirty = strings.ReplaceAll(dirty, `\`, "/")
	parts := strings.Split(dirty, "/")
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".", "..":
			continue
		default:
			if isVolumeName(part) {
				continue
			}
			kept = append(kept, part)
		}
	}
	return filepath.Join(kept...)
}

// isVolumeName reports whether part looks like a Windows drive letter
// component such as "C:", which filepath.Join on a POSIX host would
// otherwise happily keep as a literal directory name.
func isVolumeName(part string) bool {
	return len(part) == 2 && part[1] == ':' &&
		((part[0] >= 'a' && part[0] <= 'z') || (part[0] >= 'A' && part[0] <= 'Z'))
}
