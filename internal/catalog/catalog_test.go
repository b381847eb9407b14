package catalog

import (
	"context"
	"errors"
	"testing"
)

func TestAddRootUniqueness(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.AddRoot(ctx, "local", "music", "/a"); err != nil {
		t.Fatalf("first add_root failed: %v", err)
	}

	err = store.AddRoot(ctx, "local", "music", "/a")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second add_root: want ErrConflict, got %v", err)
	}

	roots, err := store.ListRoots(ctx, "local")
	if err != nil {
		t.Fatalf("list_roots: %v", err)
	}
	if len(roots) != 1 {
		t.Fatalf("list_roots: want 1 root, got %d", len(roots))
	}
	if roots[0].Name != "music" {
		t.Fatalf("list_roots: want name %q, got %q", "music", roots[0].Name)
	}
}

func TestRemoveRootIdempotent(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.RemoveRoot(ctx, "local", "doesnotexist"); err != nil {
		t.Fatalf("remove_root on missing root should be a no-op, got: %v", err)
	}

	if err := store.AddRoot(ctx, "local", "music", "/a"); err != nil {
		t.Fatalf("add_root: %v", err)
	}
	if err := store.RemoveRoot(ctx, "local", "music"); err != nil {
		t.Fatalf("remove_root: %v", err)
	}
	if err := store.RemoveRoot(ctx, "local", "music"); err != nil {
		t.Fatalf("second remove_root should still be a no-op, got: %v", err)
	}

	roots, err := store.ListRoots(ctx, "local")
	if err != nil {
		t.Fatalf("list_roots: %v", err)
	}
	if len(roots) != 0 {
		t.Fatalf("list_roots: want 0 roots after removal, got %d", len(roots))
	}
}

func TestInsertFilesAtomic(t *testing.T) {
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.AddRoot(ctx, "local", "music", "/a"); err != nil {
		t.Fatalf("add_root: %v", err)
	}

	files := []File{
		{NodeID: "local", RootName: "music", RelPath: "a.flac", HashKind: SHA256, Hash: []byte{1}, LocalPath: "/a/a.flac"},
		{NodeID: "local", RootName: "music", RelPath: "b.flac", HashKind: SHA256, Hash: []byte{2}, LocalPath: "/a/b.flac"},
	}
	if err := store.InsertFiles(ctx, files); err != nil {
		t.Fatalf("insert_files: %v", err)
	}

	count, err := store.CountFiles(ctx, "local", "music")
	if err != nil {
		t.Fatalf("count_files: %v", err)
	}
	if count != 2 {
		t.Fatalf("count_files: want 2, got %d", count)
	}
}
