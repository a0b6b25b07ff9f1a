// Copyright 2026 The relpack Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"zombiezen.com/go/sqlite/sqlitex"
)

func writeFile(t *testing.T, fs billy.Filesystem, path string, contents []byte) {
	t.Helper()
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("MkdirAll %s: %v", dir, err)
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("Create %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.Write(contents); err != nil {
		t.Fatalf("Write %s: %v", path, err)
	}
}

func buildFixtureTree(t *testing.T) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	writeFile(t, fs, "readme.txt", []byte("hello, relpack"))
	writeFile(t, fs, "empty.txt", nil)
	writeFile(t, fs, "docs/guide.md", []byte("# guide\n\nsome content"))
	writeFile(t, fs, "docs/nested/notes.txt", []byte("deeply nested"))
	if err := fs.MkdirAll("docs/empty-subdir", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if sym, ok := fs.(billy.Symlink); ok {
		if err := sym.Symlink("readme.txt", "link-to-readme.txt"); err != nil {
			t.Fatalf("Symlink: %v", err)
		}
	}
	return fs
}

func openTempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.db3")
	store, err := Open(path, CreateInMemory, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store, path
}

func TestPackExtractRoundTrip(t *testing.T) {
	ctx := context.Background()
	source := buildFixtureTree(t)
	store, dbPath := openTempStore(t)

	count, err := Pack(ctx, store, source, []string{"readme.txt", "empty.txt", "docs", "link-to-readme.txt"}, PackOptions{})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if count != 5 {
		t.Errorf("Pack count = %d, want 5", count)
	}
	if err := store.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader, err := Open(dbPath, OpenExisting, Options{})
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	defer reader.Close()

	paths, err := List(ctx, reader)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(paths)
	want := []string{
		"docs",
		"docs/empty-subdir",
		"docs/guide.md",
		"docs/nested",
		"docs/nested/notes.txt",
		"empty.txt",
		"link-to-readme.txt",
		"readme.txt",
	}
	if len(paths) != len(want) {
		t.Fatalf("List() = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, paths[i], want[i])
		}
	}

	dest := memfs.New()
	extracted, err := Extract(ctx, reader, dest, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if extracted != 5 {
		t.Errorf("Extract count = %d, want 5", extracted)
	}

	assertFileContents(t, dest, "readme.txt", "hello, relpack")
	assertFileContents(t, dest, "empty.txt", "")
	assertFileContents(t, dest, "docs/guide.md", "# guide\n\nsome content")
	assertFileContents(t, dest, "docs/nested/notes.txt", "deeply nested")

	if sym, ok := dest.(billy.Symlink); ok {
		target, err := sym.Readlink("link-to-readme.txt")
		if err != nil {
			t.Fatalf("Readlink: %v", err)
		}
		if target != "readme.txt" {
			t.Errorf("Readlink = %q, want %q", target, "readme.txt")
		}
	}

	if _, err := dest.Stat("docs/empty-subdir"); err != nil {
		t.Errorf("expected empty directory to exist: %v", err)
	}

	extracted, err = Extract(ctx, reader, dest, ExtractOptions{})
	if err != nil {
		t.Fatalf("second Extract: %v", err)
	}
	if extracted != 5 {
		t.Errorf("second Extract count = %d, want 5", extracted)
	}
	if sym, ok := dest.(billy.Symlink); ok {
		target, err := sym.Readlink("link-to-readme.txt")
		if err != nil {
			t.Fatalf("Readlink after second extract: %v", err)
		}
		if target != "readme.txt" {
			t.Errorf("Readlink after second extract = %q, want %q", target, "readme.txt")
		}
	}
}

func TestPackExtractOversizeFileSpansBundles(t *testing.T) {
	ctx := context.Background()
	source := memfs.New()
	big := make([]byte, 300)
	for i := range big {
		big[i] = byte(i)
	}
	writeFile(t, source, "big.bin", big)

	store, dbPath := openTempStore(t)
	_, err := Pack(ctx, store, source, []string{"big.bin"}, PackOptions{BundleSize: 64})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if err := store.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	store.Close()

	reader, err := Open(dbPath, OpenExisting, Options{})
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	defer reader.Close()

	dest := memfs.New()
	if _, err := Extract(ctx, reader, dest, ExtractOptions{}); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	f, err := dest.Open("big.bin")
	if err != nil {
		t.Fatalf("Open big.bin: %v", err)
	}
	defer f.Close()
	got := make([]byte, len(big))
	if _, err := readFull(f, got); err != nil {
		t.Fatalf("read big.bin: %v", err)
	}
	for i := range big {
		if got[i] != big[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], big[i])
		}
	}
}

func TestExtractPathDirectorySubtree(t *testing.T) {
	ctx := context.Background()
	source := buildFixtureTree(t)
	store, dbPath := openTempStore(t)

	if _, err := Pack(ctx, store, source, []string{"readme.txt", "docs"}, PackOptions{}); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if err := store.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	store.Close()

	reader, err := Open(dbPath, OpenExisting, Options{})
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	defer reader.Close()

	dest := memfs.New()
	n, err := ExtractPath(ctx, reader, dest, "docs/nested", ExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractPath: %v", err)
	}
	if n != 1 {
		t.Errorf("ExtractPath count = %d, want 1", n)
	}
	assertFileContents(t, dest, "docs/nested/notes.txt", "deeply nested")

	if _, err := dest.Stat("readme.txt"); err == nil {
		t.Error("expected readme.txt not to have been extracted")
	}
}

func TestVerifyReportsAllBundles(t *testing.T) {
	ctx := context.Background()
	source := buildFixtureTree(t)
	store, dbPath := openTempStore(t)

	if _, err := Pack(ctx, store, source, []string{"readme.txt", "docs"}, PackOptions{}); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if err := store.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	store.Close()

	reader, err := Open(dbPath, OpenExisting, Options{})
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	defer reader.Close()

	report, err := Verify(ctx, reader)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(report.Bundles) == 0 {
		t.Error("expected at least one bundle in the report")
	}
	for _, b := range report.Bundles {
		if b.Digest == "" {
			t.Errorf("bundle %d has empty digest", b.ContentID)
		}
	}
}

// TestPackAllEmptyFilesPersistContentRow packs a directory whose only
// inputs are zero-length files, so the bundle's staging buffer stays
// empty across the whole pack even though its pending mapping list is
// not. flush must still persist a content row for that case, or
// extraction finds no itemcontent rows and produces no files at all.
func TestPackAllEmptyFilesPersistContentRow(t *testing.T) {
	ctx := context.Background()
	source := memfs.New()
	writeFile(t, source, "a.txt", nil)
	writeFile(t, source, "b.txt", nil)

	store, dbPath := openTempStore(t)
	count, err := Pack(ctx, store, source, []string{"a.txt", "b.txt"}, PackOptions{})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if count != 2 {
		t.Errorf("Pack count = %d, want 2", count)
	}
	if err := store.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	store.Close()

	reader, err := Open(dbPath, OpenExisting, Options{})
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	defer reader.Close()

	dest := memfs.New()
	extracted, err := Extract(ctx, reader, dest, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if extracted != 2 {
		t.Errorf("Extract count = %d, want 2", extracted)
	}
	assertFileContents(t, dest, "a.txt", "")
	assertFileContents(t, dest, "b.txt", "")
}

// TestPackParallelAllEmptyFilesPersistContentRow is the parallel-pack
// counterpart of TestPackAllEmptyFilesPersistContentRow, exercising
// parallelBundleBuilder.submit's equivalent pending-list gate.
func TestPackParallelAllEmptyFilesPersistContentRow(t *testing.T) {
	ctx := context.Background()
	source := memfs.New()
	writeFile(t, source, "a.txt", nil)
	writeFile(t, source, "b.txt", nil)

	path := filepath.Join(t.TempDir(), "empty.db3")
	store, err := Open(path, CreateDirect, Options{Workers: 3})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	count, err := PackParallel(ctx, store, source, []string{"a.txt", "b.txt"}, PackOptions{}, 2)
	if err != nil {
		t.Fatalf("PackParallel: %v", err)
	}
	if count != 2 {
		t.Errorf("PackParallel count = %d, want 2", count)
	}
	store.Close()

	reader, err := Open(path, OpenExisting, Options{})
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	defer reader.Close()

	dest := memfs.New()
	extracted, err := Extract(ctx, reader, dest, ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if extracted != 2 {
		t.Errorf("Extract count = %d, want 2", extracted)
	}
	assertFileContents(t, dest, "a.txt", "")
	assertFileContents(t, dest, "b.txt", "")
}

func TestVerifyDetectsDuplicateSiblingName(t *testing.T) {
	ctx := context.Background()
	source := memfs.New()
	writeFile(t, source, "a.txt", []byte("hello"))

	store, dbPath := openTempStore(t)
	if _, err := Pack(ctx, store, source, []string{"a.txt"}, PackOptions{}); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if err := store.Finish(ctx); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	store.Close()

	reader, err := Open(dbPath, OpenExisting, Options{})
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	defer reader.Close()

	conn, err := reader.Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	// Insert a second sibling under the same parent with the same name,
	// bypassing insertItem's own guard to simulate a corrupted archive.
	if err := sqlitex.Execute(conn, "INSERT INTO item (parent, kind, name) VALUES (0, 0, 'a.txt');", nil); err != nil {
		t.Fatalf("inserting duplicate sibling: %v", err)
	}
	reader.Put(conn)

	_, err = Verify(ctx, reader)
	if KindOf(err) != InvariantViolation {
		t.Fatalf("Verify error kind = %v, want InvariantViolation", KindOf(err))
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-an-archive.db3")
	if err := os.WriteFile(path, []byte("not a sqlite database"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Open(path, OpenExisting, Options{})
	if err == nil {
		t.Fatal("expected an error opening a non-archive file")
	}
}

func assertFileContents(t *testing.T, fs billy.Filesystem, path, want string) {
	t.Helper()
	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("Open %s: %v", path, err)
	}
	defer f.Close()
	got := make([]byte, len(want))
	if len(want) > 0 {
		if _, err := readFull(f, got); err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
	}
	if string(got) != want {
		t.Errorf("%s contents = %q, want %q", path, got, want)
	}
}

func readFull(r billy.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
