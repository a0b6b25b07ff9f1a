// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package archive

import "golang.org/x/sys/unix"

// extraOpenFlags adds O_NOFOLLOW to the flags used when creating an
// extracted file, so that a path which somehow still resolves through
// a symlink at open time is rejected rather than silently followed.
func extraOpenFlags() int {
	return unix.O_NOFOLLOW
}
