// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive implements relpack's relational archive format: a
// SQLite-backed store of an item forest (files, directories, symlinks)
// whose content lives in Zstandard-compressed bundles shared across
// files, with byte-range mappings tying the two together.
//
// [Pack] and [PackParallel] build a new archive from a filesystem tree.
// [Extract] and [ExtractPath] materialize an archive's contents back
// onto a filesystem. [List] and [Walk] read an archive's tree without
// touching its content bundles. [Verify] re-reads every bundle to
// confirm it decompresses to its recorded length.
//
// Every exported function returns an *[Error] carrying a [Kind], so
// callers can branch on failure category with [KindOf] or the
// Is*-prefixed helpers instead of matching on error strings.
package archive
