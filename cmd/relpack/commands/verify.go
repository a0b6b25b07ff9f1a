// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/relpack/relpack/cmd/relpack/cli"
	"github.com/relpack/relpack/lib/archive"
)

func verifyCommand() *cli.Command {
	var verbose bool

	return &cli.Command{
		Name:    "verify",
		Summary: "Decompress every content bundle and report its digest",
		Usage:   "relpack verify [flags] <archive>",
		Description: "verify re-reads and decompresses every content bundle in <archive>,\n" +
			"confirming each one decodes cleanly, and prints a summary of the\n" +
			"item count and total decompressed size. This is a supplemental\n" +
			"integrity check, not a requirement for extraction.",
		Examples: []cli.Example{
			{Description: "verify an archive decodes cleanly", Command: "relpack verify project.db3"},
			{Description: "print every bundle's digest", Command: "relpack verify --verbose project.db3"},
		},
		Flags: func() *pflag.FlagSet {
			fs := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			fs.BoolVarP(&verbose, "verbose", "v", false, "print a line per bundle with its digest")
			return fs
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("verify requires exactly one archive path")
			}
			return runVerify(args[0], verbose)
		},
	}
}

func runVerify(archivePath string, verbose bool) error {
	ctx := context.Background()

	store, err := archive.Open(archivePath, archive.OpenExisting, archive.Options{})
	if err != nil {
		return fmt.Errorf("opening %s: %w", archivePath, err)
	}
	defer store.Close()

	report, err := archive.Verify(ctx, store)
	if err != nil {
		return fmt.Errorf("verifying %s: %w", archivePath, err)
	}

	if verbose {
		for _, b := range report.Bundles {
			fmt.Printf("bundle %d: %s -> %s  %s\n",
				b.ContentID,
				humanize.Bytes(uint64(b.CompressedBytes)),
				humanize.Bytes(uint64(b.DecompressedBytes)),
				b.Digest)
		}
	}

	fmt.Printf("%d items, %d bundles, %s total\n", report.ItemCount, len(report.Bundles), humanize.Bytes(uint64(report.TotalBytes)))
	return nil
}
