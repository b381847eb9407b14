package transcodepool

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hazelmeow/musicopy/internal/errs"
	"github.com/hazelmeow/musicopy/internal/transcoder"
	"github.com/hazelmeow/musicopy/internal/transcoder/estimate"
)

// DefaultWorkers is spec.md §4.3's "W ≈ 8; tunable".
const DefaultWorkers = 8

// command is sent over Pool's command channel, mirroring the Rust
// TranscodeCommand enum's Add, Remove and Prioritize variants; there is no
// garbage-collection command.
type command struct {
	kind       commandKind
	add        []Item
	remove     []Item
	prioritize []Item
}

type commandKind int

const (
	cmdAdd commandKind = iota
	cmdRemove
	cmdPrioritize
)

// Pool is a handle to the background transcode worker pool: a command
// channel, the shared status cache, and the in-progress region counter.
// Grounded on TranscodePool in the Rust original.
type Pool struct {
	transcodesDir string
	status        *StatusCache
	inProgress    *RegionCounter
	queue         *queue

	commands chan command

	wg sync.WaitGroup
}

// New creates a Pool, synchronously scanning transcodesDir to populate the
// status cache (spec.md §4.3 Startup — "the transcode status cache is
// guaranteed to be populated after this returns", matching invariant I4),
// then spawns numWorkers background workers and a command-dispatch
// goroutine.
func New(ctx context.Context, transcodesDir string, status *StatusCache, numWorkers int) (*Pool, error) {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}

	if err := os.MkdirAll(transcodesDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindIO, "transcodepool: create transcodes dir", err)
	}

	scanTranscodesDir(transcodesDir, status)

	p := &Pool{
		transcodesDir: transcodesDir,
		status:        status,
		inProgress:    &RegionCounter{},
		queue:         newQueue(),
		commands:      make(chan command, 64),
	}

	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	go p.dispatch(ctx)

	return p, nil
}

// scanTranscodesDir implements spec.md §4.3 Startup: .ogg entries are
// parsed as Ready, .tmp entries are removed unconditionally, and anything
// else is logged and skipped.
func scanTranscodesDir(dir string, status *StatusCache) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Error("transcodepool: failed to read transcodes dir", "dir", dir, "error", err)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)

		switch ext {
		case ".ogg":
			hashKind, hash, ok := parseStem(stem)
			if !ok {
				slog.Warn("transcodepool: failed to parse transcode file name", "name", name)
				continue
			}
			info, err := entry.Info()
			if err != nil {
				slog.Warn("transcodepool: failed to stat transcode file", "name", name, "error", err)
				continue
			}
			status.Insert(hashKind, hash, Status{
				Kind:      StatusReady,
				LocalPath: filepath.Join(dir, name),
				FileSize:  uint64(info.Size()),
			})
		case ".tmp":
			path := filepath.Join(dir, name)
			if err := os.Remove(path); err != nil {
				slog.Warn("transcodepool: failed to remove stale temp file", "path", path, "error", err)
			} else {
				slog.Info("transcodepool: removed stale temp file", "path", path)
			}
		default:
			slog.Warn("transcodepool: unexpected file in transcodes dir", "name", name)
		}
	}
}

// parseStem splits a "{hash_kind}-{hex(hash)}" filename stem.
func parseStem(stem string) (hashKind, hash string, ok bool) {
	idx := strings.Index(stem, "-")
	if idx < 0 {
		return "", "", false
	}
	hashKind = stem[:idx]
	hexHash := stem[idx+1:]
	if _, err := hex.DecodeString(hexHash); err != nil {
		return "", "", false
	}
	return hashKind, hexHash, true
}

// Add enqueues items for transcoding, per spec.md §4.3's Add command:
// within the batch, duplicates by (hash_kind, hash) are collapsed keeping
// the first, and any item whose status already exists (any variant) is
// skipped. Size estimation runs concurrently across the surviving items.
func (p *Pool) Add(items []Item) {
	p.commands <- command{kind: cmdAdd, add: items}
}

// Remove evicts queued items; Ready/Failed entries are left untouched, per
// spec.md §4.3's Remove command.
func (p *Pool) Remove(items []Item) {
	p.commands <- command{kind: cmdRemove, remove: items}
}

// Prioritize moves queued items to the front of the queue.
func (p *Pool) Prioritize(items []Item) {
	p.commands <- command{kind: cmdPrioritize, prioritize: items}
}

// Status returns the shared status cache (read-only views for the facade).
func (p *Pool) Status() *StatusCache { return p.status }

// InProgress returns the current number of actively-transcoding workers.
func (p *Pool) InProgress() int64 { return p.inProgress.Load() }

// Close stops accepting commands, closes the queue, and waits for every
// worker to exit. Workers keep taking queued items until the queue is empty;
// if the ctx passed to New has been cancelled, each worker instead exits
// after finishing its in-flight job.
func (p *Pool) Close() {
	close(p.commands)
	p.queue.Close()
	p.wg.Wait()
}

func (p *Pool) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-p.commands:
			if !ok {
				return
			}
			switch cmd.kind {
			case cmdAdd:
				p.handleAdd(cmd.add)
			case cmdRemove:
				p.handleRemove(cmd.remove)
			case cmdPrioritize:
				p.handlePrioritize(cmd.prioritize)
			}
		}
	}
}

func (p *Pool) handleAdd(items []Item) {
	seen := make(map[key]bool, len(items))
	var survivors []Item
	for _, it := range items {
		k := it.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, exists := p.status.Get(it.HashKind, it.Hash); exists {
			continue
		}
		survivors = append(survivors, it)
	}
	if len(survivors) == 0 {
		return
	}

	// Estimate sizes concurrently (spec.md: "Size estimation runs on a
	// blocking worker pool in parallel").
	estimates := make([]uint64, len(survivors))
	var wg sync.WaitGroup
	for i, it := range survivors {
		wg.Add(1)
		go func(i int, it Item) {
			defer wg.Done()
			size, err := estimate.Size(context.Background(), it.LocalPath)
			if err != nil {
				slog.Warn("transcodepool: failed to estimate size", "path", it.LocalPath, "error", err)
				return
			}
			estimates[i] = size
		}(i, it)
	}
	wg.Wait()

	for i, it := range survivors {
		p.status.Insert(it.HashKind, it.Hash, Status{
			Kind:          StatusQueued,
			EstimatedSize: estimates[i],
		})
	}
	p.queue.Extend(survivors)
}

func (p *Pool) handleRemove(items []Item) {
	keys := make(map[key]bool, len(items))
	for _, it := range items {
		p.status.RemoveQueued(it.HashKind, it.Hash)
		keys[it.key()] = true
	}
	p.queue.Remove(keys)
}

func (p *Pool) handlePrioritize(items []Item) {
	keys := make(map[key]bool, len(items))
	for _, it := range items {
		keys[it.key()] = true
	}
	p.queue.Prioritize(keys)
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		item, ok := p.queue.Wait()
		if !ok {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		leave := p.inProgress.Enter()
		p.runJob(item)
		leave()
	}
}

func (p *Pool) runJob(item Item) {
	tempPath := filepath.Join(p.transcodesDir, fmt.Sprintf("%s-%s.tmp", item.HashKind, item.Hash))

	slog.Info("transcodepool: transcoding", "path", item.LocalPath)
	fileSize, err := transcoder.Transcode(context.Background(), item.LocalPath, tempPath)
	if err != nil {
		slog.Error("transcodepool: transcode failed", "path", item.LocalPath, "error", err)
		os.Remove(tempPath)
		p.status.Insert(item.HashKind, item.Hash, Status{
			Kind:       StatusFailed,
			FailReason: err.Error(),
		})
		return
	}

	finalPath := strings.TrimSuffix(tempPath, ".tmp") + ".ogg"
	if err := os.Rename(tempPath, finalPath); err != nil {
		slog.Error("transcodepool: rename failed", "temp", tempPath, "final", finalPath, "error", err)
		p.status.Insert(item.HashKind, item.Hash, Status{
			Kind:       StatusFailed,
			FailReason: fmt.Sprintf("rename: %v", err),
		})
		return
	}

	slog.Info("transcodepool: finished", "path", item.LocalPath, "final", finalPath)
	p.status.Insert(item.HashKind, item.Hash, Status{
		Kind:      StatusReady,
		LocalPath: finalPath,
		FileSize:  uint64(fileSize),
	})
}
