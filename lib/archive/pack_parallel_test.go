// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/relpack/relpack/lib/testutil"
)

// TestPackParallelConcurrentArchives packs several independent archives
// at once, each through its own worker pool, to make sure the
// traversal/flush-worker split in PackParallel does not share state
// across Store instances. Each packing run reports back over a channel
// so the test can bound how long it waits on the slowest one.
func TestPackParallelConcurrentArchives(t *testing.T) {
	ctx := context.Background()
	const runs = 3

	type result struct {
		name  string
		count int64
		err   error
	}
	done := make(chan result, runs)

	for i := 0; i < runs; i++ {
		name := testutil.UniqueID("archive")
		go func(name string) {
			source := memfs.New()
			writeFile(t, source, "a.txt", []byte("contents of "+name))
			writeFile(t, source, "dir/b.txt", []byte("more contents"))

			path := filepath.Join(t.TempDir(), name+".db3")
			store, err := Open(path, CreateDirect, Options{Workers: 3})
			if err != nil {
				done <- result{name: name, err: err}
				return
			}
			defer store.Close()

			count, err := PackParallel(ctx, store, source, []string{"a.txt", "dir"}, PackOptions{BundleSize: 32}, 2)
			done <- result{name: name, count: count, err: err}
		}(name)
	}

	seen := make(map[string]bool, runs)
	for i := 0; i < runs; i++ {
		r := testutil.RequireReceive(t, done, 10*time.Second, "waiting for parallel pack run")
		if r.err != nil {
			t.Fatalf("PackParallel(%s): %v", r.name, r.err)
		}
		if r.count != 2 {
			t.Errorf("PackParallel(%s) count = %d, want 2", r.name, r.count)
		}
		seen[r.name] = true
	}
	if len(seen) != runs {
		names := make([]string, 0, len(seen))
		for n := range seen {
			names = append(names, n)
		}
		sort.Strings(names)
		t.Fatalf("expected %d distinct archive names, got %v", runs, names)
	}
}
