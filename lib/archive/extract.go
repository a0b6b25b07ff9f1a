// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-git/go-billy/v5"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/relpack/relpack/lib/pathsafe"
)

var (
	errEmptyPath          = errors.New("path sanitizes to empty, refusing to extract")
	errSymlinkOverrun     = errors.New("symlink target mapping exceeds recorded link length")
	errBundleRangeOverrun = errors.New("itemcontent range exceeds decompressed bundle length")
)

func errIncompleteCoverage(path string, written, want int64) error {
	return fmt.Errorf("%s: wrote %d of %d expected bytes", path, written, want)
}

// planRow is one itemcontent mapping joined against its item's
// materialized path, in the order the extract pipeline must visit
// bundles: grouped by content id so each bundle is decompressed
// exactly once.
type planRow struct {
	item       int64
	kind       ItemKind
	path       string
	itempos    int64
	content    int64
	contentpos int64
	size       int64
}

const planQuery = `
WITH RECURSIVE walked(id, parent, kind, path) AS (
	SELECT id, parent, kind, name || CASE WHEN kind = 1 THEN '/' ELSE '' END
	FROM item
	WHERE parent = 0
	UNION ALL
	SELECT item.id, item.parent, item.kind,
		walked.path || item.name || CASE WHEN item.kind = 1 THEN '/' ELSE '' END
	FROM item
	JOIN walked ON walked.kind = 1 AND item.parent = walked.id
)
SELECT itemcontent.item, walked.kind, walked.path,
	itemcontent.itempos, itemcontent.content, itemcontent.contentpos, itemcontent.size
FROM itemcontent
JOIN walked ON walked.id = itemcontent.item
WHERE walked.kind IN (0, 2)
ORDER BY itemcontent.content, itemcontent.contentpos
`

// ExtractOptions configures [Extract] and [ExtractPath].
type ExtractOptions struct {
	// Only, when non-empty, restricts extraction to items whose id is a
	// key of the map (used by ExtractPath to scope a resolved subtree).
	Only map[int64]bool

	Progress func(Progress)
}

// Extract materializes every file, directory, and symlink in the
// archive under root, a billy filesystem rooted at the destination
// directory. It returns the number of files and symlinks written.
func Extract(ctx context.Context, store *Store, root billy.Filesystem, opts ExtractOptions) (int64, error) {
	conn, err := store.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer store.Put(conn)

	tree, err := Walk(conn)
	if err != nil {
		return 0, err
	}

	if err := materializeDirectories(root, tree, opts.Only); err != nil {
		return 0, err
	}

	sizes, err := totalSizes(conn)
	if err != nil {
		return 0, err
	}

	sinks := make(map[int64]*extractSink)
	cache := &bundleCache{content: -1}

	var count int64
	byPath := pathsByID(tree)

	err = sqlitex.Execute(conn, planQuery, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if err := ctx.Err(); err != nil {
				return newErr(Aborted, "extract", err)
			}
			row := planRow{
				item:       stmt.ColumnInt64(0),
				kind:       ItemKind(stmt.ColumnInt64(1)),
				path:       stmt.ColumnText(2),
				itempos:    stmt.ColumnInt64(3),
				content:    stmt.ColumnInt64(4),
				contentpos: stmt.ColumnInt64(5),
				size:       stmt.ColumnInt64(6),
			}
			if opts.Only != nil && !opts.Only[row.item] {
				return nil
			}

			sink := sinks[row.item]
			if sink == nil {
				path, ok := byPath[row.item]
				if !ok {
					path = row.path
				}
				sink, err = newExtractSink(root, row.kind, path, sizes[row.item])
				if err != nil {
					return err
				}
				sinks[row.item] = sink
				count++
			}
			return applyPlanRow(conn, cache, sink, row)
		},
	})
	if err != nil {
		closeSinks(sinks)
		return 0, err
	}

	if err := finishSinks(root, sinks); err != nil {
		return 0, err
	}
	if opts.Progress != nil {
		opts.Progress(Progress{Items: count})
	}
	return count, nil
}

// ExtractPath resolves relpath against the archive and extracts only
// the matching item (a single file, symlink, or directory subtree).
func ExtractPath(ctx context.Context, store *Store, root billy.Filesystem, relpath string, opts ExtractOptions) (int64, error) {
	conn, err := store.Take(ctx)
	if err != nil {
		return 0, err
	}
	matches, err := Resolve(conn, relpath)
	store.Put(conn)
	if err != nil {
		return 0, err
	}

	only := make(map[int64]bool, len(matches))
	for _, m := range matches {
		only[m.ID] = true
	}
	opts.Only = only
	return Extract(ctx, store, root, opts)
}

func parentDir(clean string) string {
	idx := lastSlash(clean)
	if idx < 0 {
		return ""
	}
	return clean[:idx]
}

func pathsByID(tree []Entry) map[int64]string {
	m := make(map[int64]string, len(tree))
	for _, e := range tree {
		m[e.ID] = e.Path
	}
	return m
}

// maxContentRange returns the highest byte offset any itemcontent row
// claims within bundle contentID, i.e. the bundle's expected
// decompressed length. It returns -1 if the bundle has no itemcontent
// rows, telling [Decompress] to skip the length check.
func maxContentRange(conn *sqlite.Conn, contentID int64) (int64, error) {
	max := int64(-1)
	err := sqlitex.Execute(conn, "SELECT MAX(contentpos + size) FROM itemcontent WHERE content = ?;", &sqlitex.ExecOptions{
		Args: []any{contentID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if stmt.ColumnType(0) != sqlite.TypeNull {
				max = stmt.ColumnInt64(0)
			}
			return nil
		},
	})
	if err != nil {
		return -1, newErr(StoreError, "extract", err)
	}
	return max, nil
}

func totalSizes(conn *sqlite.Conn) (map[int64]int64, error) {
	sizes := make(map[int64]int64)
	err := sqlitex.Execute(conn, "SELECT item, SUM(size) FROM itemcontent GROUP BY item;", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			sizes[stmt.ColumnInt64(0)] = stmt.ColumnInt64(1)
			return nil
		},
	})
	if err != nil {
		return nil, newErr(StoreError, "extract", err)
	}
	return sizes, nil
}

// materializeDirectories creates every directory in the tree before any
// file is written into it, in path-length order so parents always
// precede children.
func materializeDirectories(root billy.Filesystem, tree []Entry, only map[int64]bool) error {
	var dirs []Entry
	for _, e := range tree {
		if e.Kind != KindDirectory {
			continue
		}
		if only != nil && !only[e.ID] {
			continue
		}
		dirs = append(dirs, e)
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i].Path) < len(dirs[j].Path) })

	for _, d := range dirs {
		clean := pathsafe.Sanitize(d.Path)
		if clean == "" {
			continue
		}
		if err := root.MkdirAll(clean, 0o755); err != nil {
			return newErr(IOError, "create directory", err)
		}
	}
	return nil
}

// extractSink receives the decoded bytes of one item, either an open
// output file positioned by WriteAt or an in-memory buffer for a
// symlink target awaiting Symlink at the end of the pass.
type extractSink struct {
	kind    ItemKind
	path    string
	file    billy.File
	buffer  []byte
	size    int64
	written int64
}

func newExtractSink(root billy.Filesystem, kind ItemKind, path string, size int64) (*extractSink, error) {
	clean := pathsafe.Sanitize(path)
	if clean == "" {
		return nil, newErr(UnsupportedFeature, "extract", errEmptyPath)
	}

	if dir := parentDir(clean); dir != "" {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return nil, newErr(IOError, "create directory", err)
		}
	}

	if kind == KindSymlink {
		return &extractSink{kind: kind, path: clean, buffer: make([]byte, size), size: size}, nil
	}

	f, err := root.OpenFile(clean, os.O_WRONLY|os.O_CREATE|extraOpenFlags(), 0o644)
	if err != nil {
		return nil, newErr(IOError, "create file", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, newErr(IOError, "create file", err)
	}
	return &extractSink{kind: kind, path: clean, file: f, size: size}, nil
}

func applyPlanRow(conn *sqlite.Conn, cache *bundleCache, sink *extractSink, row planRow) error {
	chunk, err := cache.slice(conn, row.content, row.contentpos, row.size)
	if err != nil {
		return err
	}

	if sink.kind == KindSymlink {
		if row.itempos+row.size > int64(len(sink.buffer)) {
			return newErr(CorruptBundle, "extract", errSymlinkOverrun)
		}
		copy(sink.buffer[row.itempos:row.itempos+row.size], chunk)
		sink.written += row.size
		return nil
	}

	if _, err := sink.file.Seek(row.itempos, io.SeekStart); err != nil {
		return newErr(IOError, "write file", err)
	}
	if _, err := sink.file.Write(chunk); err != nil {
		return newErr(IOError, "write file", err)
	}
	sink.written += row.size
	return nil
}

func closeSinks(sinks map[int64]*extractSink) {
	for _, s := range sinks {
		if s.file != nil {
			s.file.Close()
		}
	}
}

func finishSinks(root billy.Filesystem, sinks map[int64]*extractSink) error {
	symFS, _ := root.(billy.Symlink)
	for _, s := range sinks {
		if s.written != s.size {
			if s.file != nil {
				s.file.Close()
			}
			return newErr(IncompleteFile, "extract", errIncompleteCoverage(s.path, s.written, s.size))
		}
		if s.file != nil {
			if err := s.file.Close(); err != nil {
				return newErr(IOError, "close file", err)
			}
			continue
		}
		if symFS == nil {
			return newErr(UnsupportedFeature, "extract", errNoSymlinkSupport)
		}
		if err := root.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return newErr(IOError, "remove existing path", err)
		}
		if err := symFS.Symlink(string(s.buffer), s.path); err != nil {
			return newErr(IOError, "create symlink", err)
		}
	}
	return nil
}

// bundleCache remembers the most recently decompressed bundle, since
// the plan query guarantees all rows for a given bundle arrive
// consecutively — so each bundle is read from the store and
// decompressed exactly once no matter how many items it spans.
type bundleCache struct {
	content   int64
	plaintext []byte
}

func (c *bundleCache) slice(conn *sqlite.Conn, contentID, offset, size int64) ([]byte, error) {
	if contentID != c.content {
		compressed, err := readBlobAll(conn, contentID)
		if err != nil {
			return nil, err
		}
		expected, err := maxContentRange(conn, contentID)
		if err != nil {
			return nil, err
		}
		plaintext, err := Decompress(compressed, int(expected))
		if err != nil {
			return nil, err
		}
		c.content = contentID
		c.plaintext = plaintext
	}
	if offset < 0 || offset+size > int64(len(c.plaintext)) {
		return nil, newErr(CorruptBundle, "extract", errBundleRangeOverrun)
	}
	return c.plaintext[offset : offset+size], nil
}
