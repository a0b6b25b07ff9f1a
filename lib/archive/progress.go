// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"sync/atomic"
	"time"
)

// Tracker accumulates item and byte counts reported through a
// [Progress] callback and throttles how often a caller-supplied sink is
// invoked, so a pack or extract over many small files does not flood a
// non-interactive log stream with one line per file.
type Tracker struct {
	items    atomic.Int64
	bytes    atomic.Int64
	interval time.Duration
	sink     func(items, bytes int64)
	last     atomic.Int64 // unix nanoseconds of the last emitted update
}

// NewTracker returns a Tracker that calls sink at most once per
// interval. A zero interval emits on every call.
func NewTracker(interval time.Duration, sink func(items, bytes int64)) *Tracker {
	return &Tracker{interval: interval, sink: sink}
}

// Callback returns a function suitable for [PackOptions.Progress] or
// [ExtractOptions.Progress].
func (t *Tracker) Callback() func(Progress) {
	return func(p Progress) {
		items := t.items.Add(p.Items)
		bytes := t.bytes.Add(p.Bytes)
		if t.sink == nil {
			return
		}
		now := time.Now().UnixNano()
		if t.interval > 0 && now-t.last.Load() < int64(t.interval) {
			return
		}
		t.last.Store(now)
		t.sink(items, bytes)
	}
}

// Totals returns the accumulated item and byte counts.
func (t *Tracker) Totals() (items, bytes int64) {
	return t.items.Load(), t.bytes.Load()
}
