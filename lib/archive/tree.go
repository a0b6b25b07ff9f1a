// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func errNoSuchPath(relpath string) error {
	return fmt.Errorf("no item matches path %q", relpath)
}

// Entry is one materialized row of the archive's tree: an item's id,
// kind, and its full slash-separated path from the root. Directory
// paths carry a trailing slash.
type Entry struct {
	ID     int64
	Parent int64
	Kind   ItemKind
	Path   string
	Level  int64
}

// pathQuery is the recursive CTE that walks the item forest from the
// root sentinel (parent = 0) down, concatenating each directory's name
// onto its ancestors' accumulated path. Directories gain a trailing
// slash so that a path prefix match can tell "foo" the file apart from
// "foo/" the directory. level counts steps from the root so callers can
// recover the forest's breadth-first order.
const pathQuery = `
WITH RECURSIVE walked(id, parent, kind, path, level) AS (
	SELECT id, parent, kind, name || CASE WHEN kind = 1 THEN '/' ELSE '' END, 0
	FROM item
	WHERE parent = 0
	UNION ALL
	SELECT item.id, item.parent, item.kind,
		walked.path || item.name || CASE WHEN item.kind = 1 THEN '/' ELSE '' END,
		walked.level + 1
	FROM item
	JOIN walked ON walked.kind = 1 AND item.parent = walked.id
)
SELECT id, parent, kind, path, level FROM walked
`

// Walk materializes every item's full path in breadth-first-ish order
// as produced by the recursive CTE (parents before their descendants,
// siblings interleaved by id order within each level).
func Walk(conn *sqlite.Conn) ([]Entry, error) {
	var entries []Entry
	err := sqlitex.Execute(conn, pathQuery, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entries = append(entries, Entry{
				ID:     stmt.ColumnInt64(0),
				Parent: stmt.ColumnInt64(1),
				Kind:   ItemKind(stmt.ColumnInt64(2)),
				Path:   stmt.ColumnText(3),
				Level:  stmt.ColumnInt64(4),
			})
			return nil
		},
	})
	if err != nil {
		return nil, newErr(StoreError, "walk", err)
	}
	return entries, nil
}

// Resolve finds every item whose materialized path equals relpath, or
// — when relpath names a directory — whose path lies under it, so that
// extracting a single argument can name either one file or an entire
// subtree.
func Resolve(conn *sqlite.Conn, relpath string) ([]Entry, error) {
	relpath = strings.TrimSuffix(relpath, "/")

	all, err := Walk(conn)
	if err != nil {
		return nil, err
	}

	var matches []Entry
	for _, e := range all {
		p := strings.TrimSuffix(e.Path, "/")
		if p == relpath || strings.HasPrefix(p, relpath+"/") {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return nil, newErr(NotFound, "resolve", errNoSuchPath(relpath))
	}
	return matches, nil
}
