// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/relpack/relpack/lib/sqlitepool"
)

var errUnknownMode = errors.New("archive: unknown open mode")

// Mode selects how [Open] establishes the connection to an archive.
type Mode int

const (
	// CreateInMemory builds a brand new archive entirely in memory. The
	// schema is created immediately; nothing touches disk until
	// [Store.Finish] backs the in-memory database up to the destination
	// path. A pack run that fails before calling Finish leaves no trace
	// on disk, which is what makes the all-or-nothing write guarantee
	// straightforward to uphold.
	CreateInMemory Mode = iota

	// CreateDirect creates a brand new archive file directly on disk and
	// opens it with a multi-connection pool. This is required whenever
	// more than one connection needs to see the archive while it is
	// being built, which is the case for the parallel bundle pipeline:
	// each worker owns a private connection to the same file.
	CreateDirect

	// OpenExisting opens an archive file that already exists, verifying
	// its schema before returning.
	OpenExisting
)

// Options configures [Open]. The zero value is valid; every field has a
// sensible default.
type Options struct {
	// Workers bounds the size of the underlying connection pool. For
	// CreateInMemory it is ignored (a single in-memory connection is
	// always used, since separate connections to ":memory:" do not
	// share a database). For CreateDirect and OpenExisting it defaults
	// to 4.
	Workers int

	// Logger receives pool lifecycle messages. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// Store is a handle to a relpack archive's relational store. It wraps a
// connection pool sized and configured for either the write path (pack)
// or the read path (extract, list).
type Store struct {
	pool       *sqlitepool.Pool
	mode       Mode
	path       string
	memoryConn bool
}

// Open establishes a Store against path according to mode. Callers
// always pair Open with a deferred Close; CreateInMemory callers also
// call [Store.Finish] on success to materialize the archive on disk.
func Open(path string, mode Mode, opts Options) (*Store, error) {
	switch mode {
	case CreateInMemory:
		pool, err := sqlitepool.Open(sqlitepool.Config{
			Path:     ":memory:",
			PoolSize: 1,
			Logger:   opts.Logger,
			OnConnect: func(conn *sqlite.Conn) error {
				return initSchema(conn)
			},
		})
		if err != nil {
			return nil, newErr(StoreError, "open", err)
		}
		return &Store{pool: pool, mode: mode, path: path, memoryConn: true}, nil

	case CreateDirect:
		workers := opts.Workers
		if workers <= 0 {
			workers = 4
		}
		if _, err := os.Stat(path); err == nil {
			return nil, newErr(StoreError, "open", os.ErrExist)
		}
		pool, err := sqlitepool.Open(sqlitepool.Config{
			Path:     path,
			PoolSize: workers,
			Logger:   opts.Logger,
			OnConnect: func(conn *sqlite.Conn) error {
				return initSchema(conn)
			},
		})
		if err != nil {
			return nil, newErr(StoreError, "open", err)
		}
		return &Store{pool: pool, mode: mode, path: path}, nil

	case OpenExisting:
		workers := opts.Workers
		if workers <= 0 {
			workers = 4
		}
		var schemaErr error
		pool, err := sqlitepool.Open(sqlitepool.Config{
			Path:     path,
			PoolSize: workers,
			Logger:   opts.Logger,
			OnConnect: func(conn *sqlite.Conn) error {
				if err := checkSchema(conn); err != nil {
					schemaErr = err
					return err
				}
				return nil
			},
		})
		if err != nil {
			if schemaErr != nil {
				return nil, schemaErr
			}
			return nil, newErr(StoreError, "open", err)
		}
		// Pool connections run OnConnect on first Take, so take one now
		// to check the schema before returning.
		conn, err := pool.Take(context.Background())
		if err != nil {
			pool.Close()
			if schemaErr != nil {
				return nil, schemaErr
			}
			return nil, newErr(StoreError, "open", err)
		}
		pool.Put(conn)
		return &Store{pool: pool, mode: mode, path: path}, nil

	default:
		return nil, newErr(StoreError, "open", errUnknownMode)
	}
}

// Take borrows a connection from the store's pool.
func (s *Store) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, newErr(StoreError, "take connection", err)
	}
	return conn, nil
}

// Put returns a connection to the store's pool.
func (s *Store) Put(conn *sqlite.Conn) {
	s.pool.Put(conn)
}

// Finish materializes a CreateInMemory store onto disk using SQLite's
// online backup API. It is a no-op for CreateDirect and OpenExisting
// stores, whose contents are already on disk.
func (s *Store) Finish(ctx context.Context) error {
	if s.mode != CreateInMemory {
		return nil
	}

	src, err := s.Take(ctx)
	if err != nil {
		return err
	}
	defer s.Put(src)

	dst, err := sqlite.OpenConn(s.path, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return newErr(IOError, "finish", err)
	}
	defer dst.Close()

	backup, err := sqlite.NewBackup(dst, "main", src, "main")
	if err != nil {
		return newErr(StoreError, "finish", err)
	}
	defer backup.Close()

	for {
		done, err := backup.Step(-1)
		if err != nil {
			return newErr(StoreError, "finish", err)
		}
		if done {
			break
		}
	}
	return nil
}

// Close releases the store's connection pool. It does not write a
// CreateInMemory store to disk — call [Store.Finish] first.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return newErr(StoreError, "close", err)
	}
	return nil
}

// WithTxn runs fn inside an immediate transaction on conn, committing on
// success and rolling back if fn returns an error.
func WithTxn(conn *sqlite.Conn, fn func() error) (err error) {
	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return newErr(StoreError, "begin transaction", err)
	}
	defer endFn(&err)

	if err = fn(); err != nil {
		return err
	}
	return nil
}
