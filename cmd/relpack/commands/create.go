// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/pflag"

	"github.com/relpack/relpack/cmd/relpack/cli"
	"github.com/relpack/relpack/lib/archive"
)

func createCommand() *cli.Command {
	var bundleSize string
	var workers int
	var verbose bool

	return &cli.Command{
		Name:    "create",
		Summary: "Build a new archive from files and directories",
		Usage:   "relpack create [flags] <archive> <input>...",
		Description: "create packs each <input> — a file, directory, or symlink — into\n" +
			"a new archive at <archive>. Directories are walked recursively;\n" +
			"their contents become children of a new directory item. A \".db3\"\n" +
			"extension is appended to <archive> if it has none.",
		Examples: []cli.Example{
			{Description: "pack a project directory", Command: "relpack create project.db3 ./project"},
			{Description: "pack several top-level inputs", Command: "relpack create site.db3 index.html assets"},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
			fs.StringVar(&bundleSize, "bundle-size", "16MiB", "target decompressed size of a content bundle")
			fs.IntVar(&workers, "workers", 0, "parallel compression workers (0 = serial)")
			fs.BoolVarP(&verbose, "verbose", "v", false, "log periodic packing progress (items and bytes)")
			return fs
		},
		Run: func(args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("create requires an archive path and at least one input")
			}
			archivePath, inputs := resolveArchivePath(args[0]), args[1:]

			size, err := humanize.ParseBytes(bundleSize)
			if err != nil {
				return fmt.Errorf("--bundle-size %q: %w", bundleSize, err)
			}

			logger := newLogger(verbose)
			return runCreate(archivePath, inputs, int64(size), workers, logger)
		},
	}
}

func runCreate(archivePath string, inputs []string, bundleSize int64, workers int, logger *slog.Logger) error {
	ctx := context.Background()

	absInputs := make([]string, len(inputs))
	for i, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", input, err)
		}
		absInputs[i] = abs
	}
	source := osfs.New("/")

	mode := archive.CreateInMemory
	opts := archive.Options{Logger: logger}
	if workers > 0 {
		mode = archive.CreateDirect
		opts.Workers = workers + 1
	}

	store, err := archive.Open(archivePath, mode, opts)
	if err != nil {
		return fmt.Errorf("opening %s: %w", archivePath, err)
	}

	tracker := archive.NewTracker(progressInterval(), func(items, bytes int64) {
		logger.Info("packing", "items", items, "bytes", humanize.Bytes(uint64(bytes)))
	})
	progress := tracker.Callback()
	if !verboseProgress(logger) {
		progress = nil
	}

	packOpts := archive.PackOptions{BundleSize: bundleSize, Progress: progress}

	var count int64
	if workers > 0 {
		count, err = archive.PackParallel(ctx, store, source, absInputs, packOpts, workers)
	} else {
		count, err = archive.Pack(ctx, store, source, absInputs, packOpts)
	}
	if err != nil {
		store.Close()
		if mode == archive.CreateDirect {
			os.Remove(archivePath)
		}
		return fmt.Errorf("packing: %w", err)
	}

	if err := store.Finish(ctx); err != nil {
		store.Close()
		return fmt.Errorf("writing %s: %w", archivePath, err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", archivePath, err)
	}

	fmt.Printf("Added %d files to %s\n", count, archivePath)
	return nil
}

func resolveArchivePath(path string) string {
	if filepath.Ext(path) == "" {
		return path + ".db3"
	}
	return path
}

