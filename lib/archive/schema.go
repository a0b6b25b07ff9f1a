// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var errNotAnArchive = errors.New("not a relpack archive: missing item/content/itemcontent tables")

func errUnexpectedVersion(got int64) error {
	return fmt.Errorf("unsupported schema version %d, want %d", got, schemaVersion)
}

// ItemKind tags an item row as a directory, a regular file, or a symlink.
type ItemKind int64

const (
	KindFile      ItemKind = 0
	KindDirectory ItemKind = 1
	KindSymlink   ItemKind = 2
)

func (k ItemKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// schemaVersion is stamped into pragma user_version on creation and
// checked on open. Bumping it is a breaking format change.
const schemaVersion = 1

// createSchema is the DDL script run against a freshly opened archive.
// The three tables and their relationships mirror the relational model
// used throughout this package: item forms a forest via parent, content
// holds compressed bundles, and itemcontent maps byte ranges of an item
// onto byte ranges of a content bundle.
// Every statement is IF NOT EXISTS: [Open]'s CreateDirect mode
// wires initSchema as each pooled connection's OnConnect callback, and
// a multi-connection pool runs it once per connection against the same
// file.
const createSchema = `
CREATE TABLE IF NOT EXISTS item (
	id     INTEGER PRIMARY KEY,
	parent INTEGER NOT NULL,
	kind   INTEGER NOT NULL,
	name   TEXT NOT NULL CHECK (name != '' AND name NOT LIKE '%/%')
);

CREATE TABLE IF NOT EXISTS content (
	id    INTEGER PRIMARY KEY,
	value BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS itemcontent (
	id         INTEGER PRIMARY KEY,
	item       INTEGER NOT NULL REFERENCES item(id),
	itempos    INTEGER NOT NULL,
	content    INTEGER NOT NULL REFERENCES content(id),
	contentpos INTEGER NOT NULL,
	size       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS item_parent_idx ON item(parent);
CREATE INDEX IF NOT EXISTS itemcontent_item_idx ON itemcontent(item);
CREATE INDEX IF NOT EXISTS itemcontent_content_idx ON itemcontent(content, contentpos);
`

func initSchema(conn *sqlite.Conn) error {
	if err := sqlitex.ExecuteScript(conn, createSchema, nil); err != nil {
		return newErr(StoreError, "create schema", err)
	}
	if err := sqlitex.ExecuteTransient(conn,
		fmt.Sprintf("PRAGMA user_version = %d;", schemaVersion), nil); err != nil {
		return newErr(StoreError, "stamp schema version", err)
	}
	return nil
}

// checkSchema verifies that conn is connected to a relpack archive of a
// version this package understands, checking for the item/content/
// itemcontent tables directly rather than trusting the file extension.
func checkSchema(conn *sqlite.Conn) error {
	var version int64
	err := sqlitex.ExecuteTransient(conn, "PRAGMA user_version;", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			version = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return newErr(SchemaMismatch, "check schema", err)
	}
	if version != schemaVersion {
		return newErr(SchemaMismatch, "check schema",
			errUnexpectedVersion(version))
	}

	var tableCount int64
	err = sqlitex.ExecuteTransient(conn,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('item', 'content', 'itemcontent');",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tableCount = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return newErr(SchemaMismatch, "check schema", err)
	}
	if tableCount != 3 {
		return newErr(SchemaMismatch, "check schema", errNotAnArchive)
	}
	return nil
}
