// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"zombiezen.com/go/sqlite"

	"github.com/relpack/relpack/lib/pathsafe"
)

var errNoSymlinkSupport = errors.New("filesystem does not support reading symlinks")

// DefaultBundleSize is the target size, in decompressed bytes, of a
// content bundle before it is flushed and compressed.
const DefaultBundleSize int64 = 16 << 20

// PackOptions configures [Pack].
type PackOptions struct {
	// BundleSize is the target decompressed size of a content bundle.
	// Zero selects [DefaultBundleSize].
	BundleSize int64

	// Progress, if non-nil, is called after each regular file is added;
	// directories and symlinks do not report progress.
	Progress func(Progress)
}

// Progress reports pack/extract advancement for CLI display.
type Progress struct {
	Items int64
	Bytes int64
}

// pendingMapping is one file's byte range waiting to be recorded as an
// itemcontent row once its bundle is flushed.
type pendingMapping struct {
	item       int64
	itempos    int64
	contentpos int64
	size       int64
}

// bundleBuilder accumulates file content into a decompressed staging
// buffer, flushing it to a compressed content row once full.
type bundleBuilder struct {
	conn       *sqlite.Conn
	bundleSize int64
	staging    []byte
	pending    []pendingMapping
}

func newBundleBuilder(conn *sqlite.Conn, bundleSize int64) *bundleBuilder {
	if bundleSize <= 0 {
		bundleSize = DefaultBundleSize
	}
	return &bundleBuilder{
		conn:       conn,
		bundleSize: bundleSize,
		staging:    make([]byte, 0, bundleSize),
	}
}

// addFile tiles size bytes read from r into the bundle, flushing and
// starting a fresh bundle whenever the current one fills up. A
// zero-length file still records one zero-size mapping, so that an
// empty file is distinguishable at extract time from a file that was
// never packed.
func (b *bundleBuilder) addFile(itemID int64, r io.Reader, size int64) error {
	if size == 0 {
		b.pending = append(b.pending, pendingMapping{
			item: itemID, itempos: 0, contentpos: int64(len(b.staging)), size: 0,
		})
		return nil
	}

	var itempos int64
	remaining := size
	for remaining > 0 {
		capacity := b.bundleSize - int64(len(b.staging))
		if capacity <= 0 {
			if err := b.flush(); err != nil {
				return err
			}
			capacity = b.bundleSize
		}

		chunk := remaining
		if chunk > capacity {
			chunk = capacity
		}

		buf := make([]byte, chunk)
		if _, err := io.ReadFull(r, buf); err != nil {
			return newErr(IOError, "read file", err)
		}

		contentpos := int64(len(b.staging))
		b.staging = append(b.staging, buf...)
		b.pending = append(b.pending, pendingMapping{
			item: itemID, itempos: itempos, contentpos: contentpos, size: chunk,
		})

		itempos += chunk
		remaining -= chunk
	}
	return nil
}

// flush compresses the staging buffer, inserts it as a content row,
// and records every pending item's byte range against that row. It is
// a no-op when no mapping is pending; a bundle holding only zero-length
// files has an empty staging buffer and is still written.
func (b *bundleBuilder) flush() error {
	if len(b.pending) == 0 {
		return nil
	}

	compressed := Compress(b.staging)
	contentID, err := allocateContent(b.conn, len(compressed))
	if err != nil {
		return err
	}
	if err := writeBlob(b.conn, contentID, 0, compressed); err != nil {
		return err
	}
	for _, p := range b.pending {
		if err := insertItemContent(b.conn, p.item, p.itempos, contentID, p.contentpos, p.size); err != nil {
			return err
		}
	}

	b.staging = b.staging[:0]
	b.pending = b.pending[:0]
	return nil
}

// stackFrame is a directory waiting to be listed, paired with the item
// id already inserted for it. An explicit stack keeps arbitrarily deep
// trees off the goroutine stack.
type stackFrame struct {
	parentID int64
	path     string
}

// Pack adds every root named in inputs to the archive backed by store,
// returning the number of files and symlinks added. Directories among
// inputs are walked recursively; their contents become children of a
// new directory item. Plain files and symlinks among inputs become
// direct children of the root sentinel.
func Pack(ctx context.Context, store *Store, fs billy.Filesystem, inputs []string, opts PackOptions) (int64, error) {
	conn, err := store.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer store.Put(conn)

	var fileCount int64
	builder := newBundleBuilder(conn, opts.BundleSize)

	err = WithTxn(conn, func() error {
		for _, input := range inputs {
			if err := ctx.Err(); err != nil {
				return newErr(Aborted, "pack", err)
			}
			n, err := addRoot(conn, fs, builder, input, opts.Progress)
			if err != nil {
				return err
			}
			fileCount += n
		}
		return builder.flush()
	})
	if err != nil {
		return 0, err
	}
	return fileCount, nil
}

func addRoot(conn *sqlite.Conn, fs billy.Filesystem, builder *bundleBuilder, input string, progress func(Progress)) (int64, error) {
	info, err := fs.Lstat(input)
	if err != nil {
		return 0, newErr(IOError, "stat", err)
	}
	name := baseName(input)

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		if err := addSymlink(conn, fs, builder, 0, name, input); err != nil {
			return 0, err
		}
		return 1, nil

	case info.IsDir():
		dirID, err := insertItem(conn, 0, KindDirectory, name)
		if err != nil {
			return 0, err
		}
		return walkDir(conn, fs, builder, dirID, input, progress)

	default:
		if err := addFile(conn, fs, builder, 0, name, input, info.Size()); err != nil {
			return 0, err
		}
		if progress != nil {
			progress(Progress{Items: 1, Bytes: info.Size()})
		}
		return 1, nil
	}
}

func walkDir(conn *sqlite.Conn, fs billy.Filesystem, builder *bundleBuilder, rootID int64, rootPath string, progress func(Progress)) (int64, error) {
	var fileCount int64
	stack := []stackFrame{{parentID: rootID, path: rootPath}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := fs.ReadDir(frame.path)
		if err != nil {
			return fileCount, newErr(IOError, "read directory", err)
		}

		for _, entry := range entries {
			childPath := fs.Join(frame.path, entry.Name())

			switch {
			case entry.Mode()&os.ModeSymlink != 0:
				if err := addSymlink(conn, fs, builder, frame.parentID, entry.Name(), childPath); err != nil {
					return fileCount, err
				}
				fileCount++

			case entry.IsDir():
				childID, err := insertItem(conn, frame.parentID, KindDirectory, entry.Name())
				if err != nil {
					return fileCount, err
				}
				stack = append(stack, stackFrame{parentID: childID, path: childPath})

			default:
				if err := addFile(conn, fs, builder, frame.parentID, entry.Name(), childPath, entry.Size()); err != nil {
					return fileCount, err
				}
				fileCount++
				if progress != nil {
					progress(Progress{Items: 1, Bytes: entry.Size()})
				}
			}
		}
	}
	return fileCount, nil
}

func addFile(conn *sqlite.Conn, fs billy.Filesystem, builder *bundleBuilder, parent int64, name, path string, size int64) error {
	itemID, err := insertItem(conn, parent, KindFile, name)
	if err != nil {
		return err
	}
	f, err := fs.Open(path)
	if err != nil {
		return newErr(IOError, "open file", err)
	}
	defer f.Close()

	return builder.addFile(itemID, f, size)
}

// addSymlink stores a symlink's target text using the same content/
// itemcontent machinery as a regular file, so that it is decompressed
// and extracted by the same bundle pass; only the item kind tells
// extraction to call Symlink instead of writing bytes to a file.
func addSymlink(conn *sqlite.Conn, fs billy.Filesystem, builder *bundleBuilder, parent int64, name, path string) error {
	symFS, ok := fs.(billy.Symlink)
	if !ok {
		return newErr(UnsupportedFeature, "read symlink", errNoSymlinkSupport)
	}
	target, err := symFS.Readlink(path)
	if err != nil {
		return newErr(IOError, "read symlink", err)
	}

	itemID, err := insertItem(conn, parent, KindSymlink, name)
	if err != nil {
		return err
	}

	targetBytes := []byte(target)
	return builder.addFile(itemID, bytes.NewReader(targetBytes), int64(len(targetBytes)))
}

func baseName(p string) string {
	clean := pathsafe.Sanitize(p)
	if clean == "" {
		return p
	}
	idx := lastSlash(clean)
	if idx < 0 {
		return clean
	}
	return clean[idx+1:]
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
