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

func extractCommand() *cli.Command {
	var dest string
	var verbose bool

	return &cli.Command{
		Name:    "extract",
		Summary: "Unpack an archive, or a single path within it",
		Usage:   "relpack extract [flags] <archive> [path]",
		Description: "extract materializes <archive> into the destination directory. If\n" +
			"[path] is given, only the file, symlink, or directory subtree at\n" +
			"that path is extracted; ancestor directories are still created so\n" +
			"the path resolves correctly in the destination.",
		Examples: []cli.Example{
			{Description: "extract an entire archive", Command: "relpack extract project.db3"},
			{Description: "extract one file into the current directory", Command: "relpack extract project.db3 src/main.go"},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("extract", pflag.ContinueOnError)
			fs.StringVarP(&dest, "dest", "d", ".", "destination directory")
			fs.BoolVarP(&verbose, "verbose", "v", false, "log the extracted item count when done")
			return fs
		},
		Run: func(args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("extract requires an archive path and an optional path within it")
			}
			archivePath := args[0]
			var relpath string
			if len(args) == 2 {
				relpath = args[1]
			}

			logger := newLogger(verbose)
			return runExtract(archivePath, relpath, dest, logger)
		},
	}
}

func runExtract(archivePath, relpath, dest string, logger *slog.Logger) error {
	ctx := context.Background()

	store, err := archive.Open(archivePath, archive.OpenExisting, archive.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("opening %s: %w", archivePath, err)
	}
	defer store.Close()

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dest, err)
	}
	if err := os.MkdirAll(absDest, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", absDest, err)
	}
	root := osfs.New(absDest)

	tracker := archive.NewTracker(progressInterval(), func(items, bytes int64) {
		logger.Info("extracting", "items", items, "bytes", humanize.Bytes(uint64(bytes)))
	})
	progress := tracker.Callback()
	if !verboseProgress(logger) {
		progress = nil
	}
	opts := archive.ExtractOptions{Progress: progress}

	var count int64
	if relpath != "" {
		count, err = archive.ExtractPath(ctx, store, root, relpath, opts)
	} else {
		count, err = archive.Extract(ctx, store, root, opts)
	}
	if err != nil {
		return fmt.Errorf("extracting: %w", err)
	}

	fmt.Printf("Extracted %d files from %s\n", count, archivePath)
	return nil
}
