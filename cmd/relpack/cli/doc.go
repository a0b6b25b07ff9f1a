// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the relpack
// binary.
//
// The central type is [Command], which represents a named subcommand
// with optional nested [Command.Subcommands], a [pflag.FlagSet]
// factory, and a Run function. Commands are assembled into a tree in
// cmd/relpack/commands (its Root function), and cmd/relpack/main.go
// dispatches that tree via [Command.Execute], which
// handles flag parsing, subcommand routing, and structured help output
// with examples.
package cli
