// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"io"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func errShortWrite(wrote, want int) error {
	return fmt.Errorf("wrote %d of %d bytes", wrote, want)
}

func errInvalidName(name string) error {
	return fmt.Errorf("item name %q is empty or contains a path separator", name)
}

// insertItem inserts a new item row and returns its id. name must be a
// single path component: non-empty and free of "/", since it is
// concatenated directly into materialized paths by [Walk]. It also
// refuses a name already used by a sibling under the same parent.
func insertItem(conn *sqlite.Conn, parent int64, kind ItemKind, name string) (int64, error) {
	if name == "" || strings.Contains(name, "/") {
		return 0, newErr(IOError, "insert item", errInvalidName(name))
	}
	var duplicate bool
	err := sqlitex.Execute(conn, "SELECT 1 FROM item WHERE parent = ? AND name = ? LIMIT 1;",
		&sqlitex.ExecOptions{
			Args: []any{parent, name},
			ResultFunc: func(*sqlite.Stmt) error {
				duplicate = true
				return nil
			},
		})
	if err != nil {
		return 0, newErr(StoreError, "insert item", err)
	}
	if duplicate {
		return 0, newErr(StoreError, "insert item", errDuplicateSiblingName(parent, name))
	}
	err = sqlitex.Execute(conn, "INSERT INTO item (parent, kind, name) VALUES (?, ?, ?);",
		&sqlitex.ExecOptions{Args: []any{parent, int64(kind), name}})
	if err != nil {
		return 0, newErr(StoreError, "insert item", err)
	}
	return conn.LastInsertRowID(), nil
}

// allocateContent reserves a zero-filled blob of size compressedLen in
// the content table and returns its row id. The caller fills the blob
// with [writeBlob].
func allocateContent(conn *sqlite.Conn, compressedLen int) (int64, error) {
	stmt, err := conn.Prepare("INSERT INTO content (value) VALUES (?);")
	if err != nil {
		return 0, newErr(StoreError, "allocate content", err)
	}
	stmt.BindZeroBlob(1, int64(compressedLen))
	if _, err := stmt.Step(); err != nil {
		return 0, newErr(StoreError, "allocate content", err)
	}
	if err := stmt.Reset(); err != nil {
		return 0, newErr(StoreError, "allocate content", err)
	}
	return conn.LastInsertRowID(), nil
}

// writeBlob writes data into the content row identified by contentID,
// starting at offset, using incremental blob I/O so the compressed
// bundle is never materialized twice (once in the Go heap, once again
// as a bound parameter copy).
func writeBlob(conn *sqlite.Conn, contentID int64, offset int64, data []byte) error {
	blob, err := conn.OpenBlob("main", "content", "value", contentID, true)
	if err != nil {
		return newErr(StoreError, "write blob", err)
	}
	defer blob.Close()

	if _, err := blob.Seek(offset, 0); err != nil {
		return newErr(StoreError, "write blob", err)
	}
	n, err := blob.Write(data)
	if err != nil {
		return newErr(StoreError, "write blob", err)
	}
	if n != len(data) {
		return newErr(IncompleteFile, "write blob", errShortWrite(n, len(data)))
	}
	return nil
}

// readBlobAll reads the entire content row identified by contentID.
func readBlobAll(conn *sqlite.Conn, contentID int64) ([]byte, error) {
	blob, err := conn.OpenBlob("main", "content", "value", contentID, false)
	if err != nil {
		return nil, newErr(StoreError, "read blob", err)
	}
	defer blob.Close()

	buf := make([]byte, blob.Size())
	if _, err := io.ReadFull(blob, buf); err != nil {
		return nil, newErr(StoreError, "read blob", err)
	}
	return buf, nil
}

// insertItemContent records that bytes [itempos, itempos+size) of item
// live at bytes [contentpos, contentpos+size) of the content bundle.
func insertItemContent(conn *sqlite.Conn, item, itempos, content, contentpos, size int64) error {
	err := sqlitex.Execute(conn,
		"INSERT INTO itemcontent (item, itempos, content, contentpos, size) VALUES (?, ?, ?, ?, ?);",
		&sqlitex.ExecOptions{Args: []any{item, itempos, content, contentpos, size}})
	if err != nil {
		return newErr(StoreError, "insert itemcontent", err)
	}
	return nil
}
