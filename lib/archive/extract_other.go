// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix && !windows

package archive

func extraOpenFlags() int {
	return 0
}
