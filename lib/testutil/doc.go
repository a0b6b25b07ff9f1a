// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for relpack packages.
//
// [RequireReceive] encapsulates the timeout safety valve pattern
// (select with time.After fallback) so that individual tests do not
// need direct time.After calls. Tests exercising the parallel pack
// pipeline use it to bound how long they wait on a result channel.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, used to give archives packed concurrently within one
// test distinct names.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
