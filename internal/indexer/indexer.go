// Package indexer owns the library scan pipeline: walking each configured
// root for supported audio files, content-hashing them, inserting rows into
// the catalog, and submitting them to the transcode pool. Grounded on the
// teacher's internal/playlist/scanner.go (ScanMusicDirectory's filepath.Walk
// + non-fatal per-file error collection pattern), generalised from a single
// musicDir to the catalog's per-node root model.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hazelmeow/musicopy/internal/catalog"
	"github.com/hazelmeow/musicopy/internal/errs"
	"github.com/hazelmeow/musicopy/internal/transcodepool"
)

// Indexer walks a node's catalog roots, hashes discovered files, and inserts
// or updates their catalog rows and transcode pool entries. It never deletes
// catalog rows: files that disappeared from disk, or whose root was removed,
// keep their rows.
type Indexer struct {
	nodeID string
	store  catalog.Store
	pool   *transcodepool.Pool

	mu            sync.Mutex
	scanning      bool
	rescanPending bool
	waiters       []chan rescanOutcome
}

type rescanOutcome struct {
	result *ScanResult
	err    error
}

// New creates an Indexer for nodeID, backed by store and pool.
func New(nodeID string, store catalog.Store, pool *transcodepool.Pool) *Indexer {
	return &Indexer{nodeID: nodeID, store: store, pool: pool}
}

// AddRoot canonicalises path, inserts it into the catalog, and schedules a
// rescan, per spec.md §4.4's AddRoot command.
func (ix *Indexer) AddRoot(ctx context.Context, name, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errs.Wrap(errs.KindIO, fmt.Sprintf("indexer: resolve root path %q", path), err)
	}
	if _, err := os.Stat(abs); err != nil {
		return errs.Wrap(errs.KindIO, fmt.Sprintf("indexer: root path %q does not resolve", abs), err)
	}

	if err := ix.store.AddRoot(ctx, ix.nodeID, name, abs); err != nil {
		return err
	}

	go ix.Rescan(context.Background())
	return nil
}

// RemoveRoot deletes name from the catalog and schedules a rescan, per
// spec.md §4.4's RemoveRoot command.
func (ix *Indexer) RemoveRoot(ctx context.Context, name string) error {
	if err := ix.store.RemoveRoot(ctx, ix.nodeID, name); err != nil {
		return err
	}
	go ix.Rescan(context.Background())
	return nil
}

// ScanResult reports the outcome of one scan pass.
type ScanResult struct {
	FilesIndexed int
	Errors       map[string]error
}

// Rescan runs the scan algorithm, serialising overlapping requests per node
// with an is_scanning/rescan_pending flag pair (spec.md §9): a call that
// arrives while a scan is already running doesn't join that scan's stale
// result, it sets rescanPending and waits for the scan that runs *after*
// the in-flight one finishes, so a root added mid-scan is never silently
// skipped.
func (ix *Indexer) Rescan(ctx context.Context) (*ScanResult, error) {
	ix.mu.Lock()
	if ix.scanning {
		ix.rescanPending = true
		wait := make(chan rescanOutcome, 1)
		ix.waiters = append(ix.waiters, wait)
		ix.mu.Unlock()
		outcome := <-wait
		return outcome.result, outcome.err
	}
	ix.scanning = true
	ix.mu.Unlock()

	for {
		result, err := ix.scan(ctx)

		ix.mu.Lock()
		if !ix.rescanPending || err != nil {
			ix.scanning = false
			ix.rescanPending = false
			waiters := ix.waiters
			ix.waiters = nil
			ix.mu.Unlock()
			for _, w := range waiters {
				w <- rescanOutcome{result, err}
			}
			return result, err
		}
		ix.rescanPending = false
		ix.mu.Unlock()
	}
}

func (ix *Indexer) scan(ctx context.Context) (*ScanResult, error) {
	result := &ScanResult{Errors: make(map[string]error)}

	roots, err := ix.store.ListRoots(ctx, ix.nodeID)
	if err != nil {
		return nil, err
	}

	var rows []catalog.File
	for _, root := range roots {
		if _, err := os.Stat(root.Path); err != nil {
			result.Errors[root.Path] = err
			slog.Warn("indexer: root path does not exist, skipping", "root", root.Name, "path", root.Path, "error", err)
			continue
		}

		walkErr := filepath.Walk(root.Path, func(path string, fi os.FileInfo, walkErr error) error {
			if walkErr != nil {
				result.Errors[path] = walkErr
				slog.Warn("indexer: error accessing path during scan", "path", path, "error", walkErr)
				return nil
			}
			if fi.IsDir() {
				return nil
			}

			ext := strings.ToLower(filepath.Ext(path))
			if !supportedExtensions[ext] {
				return nil
			}

			relPath, err := filepath.Rel(root.Path, path)
			if err != nil {
				result.Errors[path] = err
				slog.Warn("indexer: failed to strip root prefix", "path", path, "error", err)
				return nil
			}

			hash, err := hashFile(path)
			if err != nil {
				result.Errors[path] = err
				slog.Warn("indexer: failed to hash file", "path", path, "error", err)
				return nil
			}

			rows = append(rows, catalog.File{
				NodeID:    ix.nodeID,
				RootName:  root.Name,
				RelPath:   relPath,
				HashKind:  catalog.SHA256,
				Hash:      hash,
				LocalPath: path,
			})
			return nil
		})
		if walkErr != nil {
			result.Errors[root.Path] = walkErr
		}
	}

	if len(rows) > 0 {
		if err := ix.store.InsertFiles(ctx, rows); err != nil {
			return nil, err
		}

		items := make([]transcodepool.Item, len(rows))
		for i, r := range rows {
			items[i] = transcodepool.Item{
				HashKind:  string(r.HashKind),
				Hash:      hex.EncodeToString(r.Hash),
				LocalPath: r.LocalPath,
			}
		}
		ix.pool.Add(items)
	}

	result.FilesIndexed = len(rows)
	slog.Info("indexer: scan complete", "node", ix.nodeID, "files", result.FilesIndexed, "errors", len(result.Errors))
	return result, nil
}

// supportedExtensions mirrors spec.md §4.4's extension set exactly.
var supportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".wav":  true,
	".aif":  true,
	".aiff": true,
}

// hashFile returns the raw SHA-256 digest of the file at path, grounded on
// the teacher's computeChecksum in internal/playlist/track.go (which
// hex-encodes for display; the catalog stores raw bytes instead, indexed
// directly for hash-based lookups).
func hashFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
