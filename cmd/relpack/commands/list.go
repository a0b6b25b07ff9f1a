// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/relpack/relpack/cmd/relpack/cli"
	"github.com/relpack/relpack/lib/archive"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Summary: "List the paths stored in an archive",
		Usage:   "relpack list <archive>",
		Description: "list prints every file, directory, and symlink path stored in\n" +
			"<archive>, one per line, in breadth-first order (parents before\n" +
			"their children).",
		Examples: []cli.Example{
			{Description: "list an archive's contents", Command: "relpack list project.db3"},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("list requires exactly one archive path")
			}
			return runList(args[0])
		},
	}
}

func runList(archivePath string) error {
	ctx := context.Background()

	store, err := archive.Open(archivePath, archive.OpenExisting, archive.Options{})
	if err != nil {
		return fmt.Errorf("opening %s: %w", archivePath, err)
	}
	defer store.Close()

	paths, err := archive.List(ctx, store)
	if err != nil {
		return fmt.Errorf("listing %s: %w", archivePath, err)
	}

	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}
