// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"sort"
	"strings"
)

// List returns every file, directory, and symlink's materialized path in
// breadth-first order, for the `list` command's output: items are
// ordered by their level in the item forest, then by id within a level,
// matching the order [Walk]'s recursive CTE discovers them. Directory
// paths lose the trailing slash [Walk] uses internally to distinguish
// them from same-named files during path construction.
func List(ctx context.Context, store *Store) ([]string, error) {
	conn, err := store.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Put(conn)

	entries, err := Walk(conn)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Level != entries[j].Level {
			return entries[i].Level < entries[j].Level
		}
		return entries[i].ID < entries[j].ID
	})

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		path := e.Path
		if e.Kind == KindDirectory {
			path = strings.TrimSuffix(path, "/")
		}
		paths = append(paths, path)
	}
	return paths, nil
}
