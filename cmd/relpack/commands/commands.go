// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles relpack's command tree: create, list,
// extract, and verify.
package commands

import (
	"github.com/relpack/relpack/cmd/relpack/cli"
)

// Root returns the top-level relpack command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "relpack",
		Summary: "Pack and unpack relational archives",
		Description: "relpack stores a filesystem tree in a single SQLite-backed\n" +
			"archive file, with file content compressed into shared Zstandard\n" +
			"bundles for fast random-access extraction.",
		Subcommands: []*cli.Command{
			createCommand(),
			listCommand(),
			extractCommand(),
			verifyCommand(),
		},
	}
}
