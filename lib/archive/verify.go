// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"fmt"

	"github.com/opencontainers/go-digest"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func errDuplicateSiblingName(parent int64, name string) error {
	return fmt.Errorf("duplicate sibling name %q under parent %d", name, parent)
}

func errParentCycle(item int64) error {
	return fmt.Errorf("item %d's parent chain cycles without reaching the root", item)
}

func errDanglingParent(item int64) error {
	return fmt.Errorf("parent id %d has no corresponding item row", item)
}

func errTilingGap(item, want, got int64) error {
	return fmt.Errorf("item %d's byte ranges are not gapless: expected itempos %d, got %d", item, want, got)
}

func errBundleCoverage(content, end, bundleLen int64) error {
	return fmt.Errorf("content %d's itemcontent ranges reach byte %d, beyond its %d-byte decompressed length", content, end, bundleLen)
}

// BundleReport describes one content bundle's verification result.
type BundleReport struct {
	ContentID         int64
	CompressedBytes   int64
	DecompressedBytes int64
	Digest            digest.Digest
}

// VerifyReport summarizes a full archive verification pass.
type VerifyReport struct {
	Bundles    []BundleReport
	ItemCount  int64
	TotalBytes int64
}

// Verify checks an archive's structural invariants — the item forest
// is well-formed (no parent cycles, no duplicate sibling names), every
// item's byte ranges tile its content gaplessly from zero, and every
// itemcontent range fits within its bundle's decompressed length — and
// decompresses every content bundle to confirm it decodes cleanly,
// computing a content digest for each bundle so two archives built from
// the same input tree can be compared without a byte-for-byte diff of
// the underlying database file (whose page layout and bundle ordering
// are not guaranteed to match). This is a supplemental integrity check
// built on the same bundle-by-bundle read path extraction uses; it is
// not required before extraction can proceed.
func Verify(ctx context.Context, store *Store) (VerifyReport, error) {
	conn, err := store.Take(ctx)
	if err != nil {
		return VerifyReport{}, err
	}
	defer store.Put(conn)

	if err := checkTreeWellFormed(ctx, conn); err != nil {
		return VerifyReport{}, err
	}

	var report VerifyReport
	bundleLengths := make(map[int64]int64)

	err = sqlitex.Execute(conn, "SELECT id FROM content ORDER BY id;", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if err := ctx.Err(); err != nil {
				return newErr(Aborted, "verify", err)
			}
			contentID := stmt.ColumnInt64(0)
			compressed, err := readBlobAll(conn, contentID)
			if err != nil {
				return err
			}
			expected, err := maxContentRange(conn, contentID)
			if err != nil {
				return err
			}
			plaintext, err := Decompress(compressed, int(expected))
			if err != nil {
				return err
			}
			bundleLengths[contentID] = int64(len(plaintext))
			report.Bundles = append(report.Bundles, BundleReport{
				ContentID:         contentID,
				CompressedBytes:   int64(len(compressed)),
				DecompressedBytes: int64(len(plaintext)),
				Digest:            digest.FromBytes(plaintext),
			})
			report.TotalBytes += int64(len(plaintext))
			return nil
		},
	})
	if err != nil {
		return VerifyReport{}, err
	}

	if err := checkChunkTiling(conn, bundleLengths); err != nil {
		return VerifyReport{}, err
	}

	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM item WHERE kind != 1;", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			report.ItemCount = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return VerifyReport{}, newErr(StoreError, "verify", err)
	}

	return report, nil
}

// checkTreeWellFormed rejects an item forest with a duplicate (parent,
// name) pair among siblings or a parent chain that cycles instead of
// terminating at the root sentinel (parent = 0).
func checkTreeWellFormed(ctx context.Context, conn *sqlite.Conn) error {
	parents := make(map[int64]int64)
	siblings := make(map[int64]map[string]bool)
	var ids []int64

	err := sqlitex.Execute(conn, "SELECT id, parent, name FROM item;", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id := stmt.ColumnInt64(0)
			parent := stmt.ColumnInt64(1)
			name := stmt.ColumnText(2)

			bucket := siblings[parent]
			if bucket == nil {
				bucket = make(map[string]bool)
				siblings[parent] = bucket
			}
			if bucket[name] {
				return newErr(InvariantViolation, "verify", errDuplicateSiblingName(parent, name))
			}
			bucket[name] = true

			parents[id] = parent
			ids = append(ids, id)
			return nil
		},
	})
	if err != nil {
		return err
	}

	limit := int64(len(ids)) + 1
	for _, start := range ids {
		if err := ctx.Err(); err != nil {
			return newErr(Aborted, "verify", err)
		}
		id := start
		for steps := int64(0); id != 0; steps++ {
			if steps > limit {
				return newErr(InvariantViolation, "verify", errParentCycle(start))
			}
			next, ok := parents[id]
			if !ok {
				return newErr(InvariantViolation, "verify", errDanglingParent(id))
			}
			id = next
		}
	}
	return nil
}

// checkChunkTiling rejects an item whose itemcontent rows, ordered by
// itempos, leave a gap or overlap instead of tiling its byte range
// gaplessly from zero, and an itemcontent row whose contentpos+size
// exceeds its bundle's decompressed length.
func checkChunkTiling(conn *sqlite.Conn, bundleLengths map[int64]int64) error {
	type row struct {
		item, itempos, content, contentpos, size int64
	}
	var rows []row
	err := sqlitex.Execute(conn,
		"SELECT item, itempos, content, contentpos, size FROM itemcontent ORDER BY item, itempos;",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rows = append(rows, row{
					item:       stmt.ColumnInt64(0),
					itempos:    stmt.ColumnInt64(1),
					content:    stmt.ColumnInt64(2),
					contentpos: stmt.ColumnInt64(3),
					size:       stmt.ColumnInt64(4),
				})
				return nil
			},
		})
	if err != nil {
		return newErr(StoreError, "verify", err)
	}

	prevItem := int64(-1)
	var expect int64
	for _, r := range rows {
		if r.item != prevItem {
			prevItem = r.item
			expect = 0
		}
		if r.itempos != expect {
			return newErr(InvariantViolation, "verify", errTilingGap(r.item, expect, r.itempos))
		}
		expect += r.size

		if bundleLen, ok := bundleLengths[r.content]; ok && r.contentpos+r.size > bundleLen {
			return newErr(CorruptBundle, "verify", errBundleCoverage(r.content, r.contentpos+r.size, bundleLen))
		}
	}
	return nil
}
