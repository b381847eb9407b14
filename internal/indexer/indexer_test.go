package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazelmeow/musicopy/internal/catalog"
	"github.com/hazelmeow/musicopy/internal/transcodepool"
)

func newTestStore(t *testing.T) *catalog.SQLiteStore {
	t.Helper()
	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestPool(t *testing.T) *transcodepool.Pool {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	pool, err := transcodepool.New(ctx, t.TempDir(), transcodepool.NewStatusCache(), 1)
	if err != nil {
		t.Fatalf("transcodepool.New: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestScanFindsSupportedFiles(t *testing.T) {
	store := newTestStore(t)
	pool := newTestPool(t)
	ix := New("node1", store, pool)

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("fake mp3 data"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not audio"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "sub", "track.flac"), []byte("fake flac data"), 0o644)

	ctx := context.Background()
	if err := ix.AddRoot(ctx, "root1", dir); err != nil {
		t.Fatalf("AddRoot: %v", err)
	}

	result, err := ix.Rescan(ctx)
	if err != nil {
		t.Fatalf("Rescan: %v", err)
	}
	if result.FilesIndexed != 2 {
		t.Fatalf("FilesIndexed: want 2, got %d", result.FilesIndexed)
	}

	count, err := store.CountFiles(ctx, "node1", "root1")
	if err != nil {
		t.Fatalf("CountFiles: %v", err)
	}
	if count != 2 {
		t.Fatalf("CountFiles: want 2, got %d", count)
	}
}

func TestRescanCoalescesConcurrentCalls(t *testing.T) {
	store := newTestStore(t)
	pool := newTestPool(t)
	ix := New("node1", store, pool)

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "song.wav"), []byte("fake wav data"), 0o644)

	ctx := context.Background()
	if err := ix.AddRoot(ctx, "root1", dir); err != nil {
		t.Fatalf("AddRoot: %v", err)
	}

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := ix.Rescan(ctx)
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Rescan: %v", err)
		}
	}
}
