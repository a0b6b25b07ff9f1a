// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"log/slog"
	"os"
	"time"

	"golang.org/x/term"
)

// newLogger builds the structured logger shared by every subcommand.
// --verbose raises the level from Warn to Info.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// verboseProgress reports whether logger is configured to emit Info
// level messages, used to skip building progress strings when they
// would be discarded anyway.
func verboseProgress(logger *slog.Logger) bool {
	return logger.Enabled(context.Background(), slog.LevelInfo)
}

// progressInterval picks how often the progress tracker flushes. A
// redirected stderr (log file, CI) gets a slower cadence since nobody
// is watching it scroll by in real time.
func progressInterval() time.Duration {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return 500 * time.Millisecond
	}
	return 5 * time.Second
}
