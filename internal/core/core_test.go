package core

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hazelmeow/musicopy/internal/config"
)

// testConfig builds an in-memory, loopback Config for a single-node test
// instance; each call gets its own identity file and transcode directory so
// parallel tests don't collide.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		InMemory:         true,
		TranscodesDir:    filepath.Join(dir, "transcodes"),
		TranscodeWorkers: 1,
		ListenAddr:       "127.0.0.1:0",
		IdentityPath:     filepath.Join(dir, "identity.key"),
	}
}

// collectingSink records every snapshot pushed to it.
type collectingSink struct {
	mu        sync.Mutex
	snapshots []Model
}

func (s *collectingSink) OnModel(m Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, m)
}

func (s *collectingSink) last() (Model, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return Model{}, false
	}
	return s.snapshots[len(s.snapshots)-1], true
}

func newTestCore(t *testing.T) (*Core, *collectingSink) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sink := &collectingSink{}
	c, err := NewCore(ctx, testConfig(t), sink)
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		c.Shutdown(shutdownCtx)
	})
	return c, sink
}

func TestNewCoreAssignsNodeIDAndListens(t *testing.T) {
	c, _ := newTestCore(t)

	if c.NodeID() == "" {
		t.Fatal("expected a non-empty node id")
	}
	if c.ListenAddr() == "" {
		t.Fatal("expected the overlay endpoint to report a bound address")
	}
}

func TestAddRootAppearsInModel(t *testing.T) {
	c, _ := newTestCore(t)

	libDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(libDir, "track.mp3"), []byte("not really audio"), 0o644); err != nil {
		t.Fatalf("seed library file: %v", err)
	}

	if err := c.AddRoot(context.Background(), "music", libDir); err != nil {
		t.Fatalf("AddRoot: %v", err)
	}

	// AddRoot kicks off an async rescan; run one synchronously too so the
	// assertion below doesn't race the background goroutine.
	if _, err := c.RescanLibrary(context.Background()); err != nil {
		t.Fatalf("RescanLibrary: %v", err)
	}

	model := c.Model()
	if len(model.Roots) != 1 {
		t.Fatalf("expected 1 root in model, got %d: %+v", len(model.Roots), model.Roots)
	}
	if model.Roots[0].Name != "music" {
		t.Fatalf("expected root named %q, got %q", "music", model.Roots[0].Name)
	}
	if model.Roots[0].FileCount != 1 {
		t.Fatalf("expected 1 catalogued file, got %d", model.Roots[0].FileCount)
	}
}

func TestRemoveRootClearsModel(t *testing.T) {
	c, _ := newTestCore(t)

	libDir := t.TempDir()
	if err := c.AddRoot(context.Background(), "music", libDir); err != nil {
		t.Fatalf("AddRoot: %v", err)
	}
	if err := c.RemoveRoot(context.Background(), "music"); err != nil {
		t.Fatalf("RemoveRoot: %v", err)
	}

	model := c.Model()
	if len(model.Roots) != 0 {
		t.Fatalf("expected no roots after RemoveRoot, got %+v", model.Roots)
	}
}

func TestResetDatabaseClearsRoots(t *testing.T) {
	c, _ := newTestCore(t)

	if err := c.AddRoot(context.Background(), "music", t.TempDir()); err != nil {
		t.Fatalf("AddRoot: %v", err)
	}
	if err := c.ResetDatabase(context.Background()); err != nil {
		t.Fatalf("ResetDatabase: %v", err)
	}

	model := c.Model()
	if len(model.Roots) != 0 {
		t.Fatalf("expected no roots after ResetDatabase, got %+v", model.Roots)
	}
}

func TestDownloadAllRejectsUnknownPeer(t *testing.T) {
	c, _ := newTestCore(t)

	zeroNodeID := "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	err := c.DownloadAll(context.Background(), zeroNodeID, t.TempDir())
	if err == nil {
		t.Fatal("expected an error for a peer that was never connected")
	}
}

func TestModelLoopPushesSnapshots(t *testing.T) {
	_, sink := newTestCore(t)

	deadline := time.After(3 * time.Second)
	for {
		if _, ok := sink.last(); ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("expected at least one model snapshot from the ticker within 3s")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
