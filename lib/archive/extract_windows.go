// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package archive

// extraOpenFlags returns no extra flags on Windows: os.OpenFile has no
// portable O_NOFOLLOW equivalent there, and Windows symlinks already
// require elevated privileges to create, which bounds the risk this
// guards against on Unix.
func extraOpenFlags() int {
	return 0
}
