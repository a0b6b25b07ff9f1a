// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"os"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"
	"zombiezen.com/go/sqlite"
)

// flushJob is one completed bundle handed off from the traversal
// goroutine to a compression worker. staging and pending are owned by
// the job once sent; the traversal goroutine allocates a fresh buffer
// for the next bundle rather than reusing this one.
type flushJob struct {
	staging []byte
	pending []pendingMapping
}

// parallelBundleBuilder is the concurrent counterpart of bundleBuilder:
// tiling logic is identical, but a full bundle is handed to a channel
// instead of compressed and written inline. The store must be opened in
// CreateDirect mode so that worker connections and the traversal
// connection share the same on-disk file, per the parallel pipeline's
// resource model.
type parallelBundleBuilder struct {
	bundleSize int64
	staging    []byte
	pending    []pendingMapping
	jobs       chan<- flushJob
}

func newParallelBundleBuilder(bundleSize int64, jobs chan<- flushJob) *parallelBundleBuilder {
	if bundleSize <= 0 {
		bundleSize = DefaultBundleSize
	}
	return &parallelBundleBuilder{
		bundleSize: bundleSize,
		staging:    make([]byte, 0, bundleSize),
		jobs:       jobs,
	}
}

func (b *parallelBundleBuilder) addFile(ctx context.Context, itemID int64, r readerFunc, size int64) error {
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
			if err := b.submit(ctx); err != nil {
				return err
			}
			capacity = b.bundleSize
		}

		chunk := remaining
		if chunk > capacity {
			chunk = capacity
		}

		buf := make([]byte, chunk)
		if err := r(buf); err != nil {
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

// submit hands the current bundle to a flush worker. It selects on
// ctx.Done() alongside the channel send so that a worker's earlier
// failure (which cancels ctx via errgroup) cannot deadlock the
// traversal goroutine against a full, undrained jobs channel.
func (b *parallelBundleBuilder) submit(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	select {
	case b.jobs <- flushJob{staging: b.staging, pending: b.pending}:
	case <-ctx.Done():
		return newErr(Aborted, "pack", ctx.Err())
	}
	b.staging = make([]byte, 0, b.bundleSize)
	b.pending = nil
	return nil
}

// readerFunc fills buf completely or returns an error, matching
// io.ReadFull's contract without importing io into the hot path twice.
type readerFunc func(buf []byte) error

// PackParallel is the concurrent variant of [Pack]. store must have
// been opened with [CreateDirect] and a pool large enough to give every
// worker, plus the traversal goroutine, its own connection.
func PackParallel(ctx context.Context, store *Store, fs billy.Filesystem, inputs []string, opts PackOptions, workers int) (int64, error) {
	if workers <= 0 {
		workers = 4
	}

	jobs := make(chan flushJob, workers*2)
	group, groupCtx := errgroup.WithContext(ctx)

	for i := 0; i < workers; i++ {
		group.Go(func() error {
			return runFlushWorker(groupCtx, store, jobs)
		})
	}

	var fileCount int64
	traversalErr := func() error {
		conn, err := store.Take(ctx)
		if err != nil {
			return err
		}
		defer store.Put(conn)

		builder := newParallelBundleBuilder(opts.BundleSize, jobs)
		for _, input := range inputs {
			if err := groupCtx.Err(); err != nil {
				return newErr(Aborted, "pack", err)
			}
			n, err := addRootParallel(groupCtx, conn, fs, builder, input, opts.Progress)
			if err != nil {
				return err
			}
			fileCount += n
		}
		return builder.submit(groupCtx)
	}()

	close(jobs)
	groupErr := group.Wait()

	if traversalErr != nil {
		return 0, traversalErr
	}
	if groupErr != nil {
		return 0, groupErr
	}
	return fileCount, nil
}

func runFlushWorker(ctx context.Context, store *Store, jobs <-chan flushJob) error {
	for job := range jobs {
		if err := ctx.Err(); err != nil {
			return newErr(Aborted, "pack", err)
		}

		conn, err := store.Take(ctx)
		if err != nil {
			return err
		}

		err = WithTxn(conn, func() error {
			compressed := Compress(job.staging)
			contentID, err := allocateContent(conn, len(compressed))
			if err != nil {
				return err
			}
			if err := writeBlob(conn, contentID, 0, compressed); err != nil {
				return err
			}
			for _, p := range job.pending {
				if err := insertItemContent(conn, p.item, p.itempos, contentID, p.contentpos, p.size); err != nil {
					return err
				}
			}
			return nil
		})
		store.Put(conn)
		if err != nil {
			return err
		}
	}
	return nil
}

func addRootParallel(ctx context.Context, conn *sqlite.Conn, fs billy.Filesystem, builder *parallelBundleBuilder, input string, progress func(Progress)) (int64, error) {
	info, err := fs.Lstat(input)
	if err != nil {
		return 0, newErr(IOError, "stat", err)
	}
	name := baseName(input)

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		if err := addSymlinkParallel(ctx, conn, fs, builder, 0, name, input); err != nil {
			return 0, err
		}
		return 1, nil

	case info.IsDir():
		dirID, err := insertItem(conn, 0, KindDirectory, name)
		if err != nil {
			return 0, err
		}
		return walkDirParallel(ctx, conn, fs, builder, dirID, input, progress)

	default:
		if err := addFileParallel(ctx, conn, fs, builder, 0, name, input, info.Size()); err != nil {
			return 0, err
		}
		if progress != nil {
			progress(Progress{Items: 1, Bytes: info.Size()})
		}
		return 1, nil
	}
}

func walkDirParallel(ctx context.Context, conn *sqlite.Conn, fs billy.Filesystem, builder *parallelBundleBuilder, rootID int64, rootPath string, progress func(Progress)) (int64, error) {
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
				if err := addSymlinkParallel(ctx, conn, fs, builder, frame.parentID, entry.Name(), childPath); err != nil {
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
				if err := addFileParallel(ctx, conn, fs, builder, frame.parentID, entry.Name(), childPath, entry.Size()); err != nil {
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

func addFileParallel(ctx context.Context, conn *sqlite.Conn, fs billy.Filesystem, builder *parallelBundleBuilder, parent int64, name, path string, size int64) error {
	itemID, err := insertItem(conn, parent, KindFile, name)
	if err != nil {
		return err
	}
	f, err := fs.Open(path)
	if err != nil {
		return newErr(IOError, "open file", err)
	}
	defer f.Close()

	return builder.addFile(ctx, itemID, readFullFunc(f), size)
}

func addSymlinkParallel(ctx context.Context, conn *sqlite.Conn, fs billy.Filesystem, builder *parallelBundleBuilder, parent int64, name, path string) error {
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

	remaining := []byte(target)
	return builder.addFile(ctx, itemID, func(buf []byte) error {
		n := copy(buf, remaining)
		remaining = remaining[n:]
		return nil
	}, int64(len(remaining)))
}

// readFullFunc adapts an io.Reader into a readerFunc that fills buf
// completely, matching io.ReadFull's semantics.
func readFullFunc(r interface{ Read([]byte) (int, error) }) readerFunc {
	return func(buf []byte) error {
		for read := 0; read < len(buf); {
			n, err := r.Read(buf[read:])
			read += n
			if err != nil && read < len(buf) {
				return err
			}
		}
		return nil
	}
}
