// Package transcodepool manages the on-disk transcode cache: a fixed
// worker pool that converts library files to Ogg Opus in the background,
// a status cache tracking each file's progress, and a FIFO work queue.
// Grounded directly on
// original_source/crates/musicopy/src/library/transcode.rs's
// TranscodeStatusCache/TranscodeQueue/TranscodePool/TranscodeWorker, carried
// over to Go's idioms: sync.RWMutex+map in place of DashMap, sync.Mutex+
// sync.Cond in place of Mutex<VecDeque>+Condvar, and a buffered Go channel
// in place of tokio's mpsc for the command stream.
package transcodepool

import (
	"sync"
	"sync/atomic"
)

// Status is a tagged union over a file's transcode progress, mirroring the
// Rust TranscodeStatus enum's three variants exactly.
type Status struct {
	Kind StatusKind

	EstimatedSize uint64 // Kind == StatusQueued
	LocalPath     string // Kind == StatusReady
	FileSize      uint64 // Kind == StatusReady
	FailReason    string // Kind == StatusFailed
}

// StatusKind distinguishes the three Status variants.
type StatusKind int

const (
	StatusQueued StatusKind = iota
	StatusReady
	StatusFailed
)

// key identifies a file by its content hash, matching the Rust cache's
// (hash_kind, hash) composite key.
type key struct {
	hashKind string
	hash     string // hex-encoded, so it's comparable and usable as a map key
}

// StatusCache is a concurrent map of content hash to Status, with atomic
// counters per status kind (spec.md §4.3's "Counters (exposed as read-only
// atomic views)").
type StatusCache struct {
	mu    sync.RWMutex
	cache map[key]Status

	queuedCounter atomic.Int64
	readyCounter  atomic.Int64
	failedCounter atomic.Int64
}

// NewStatusCache creates an empty StatusCache.
func NewStatusCache() *StatusCache {
	return &StatusCache{cache: make(map[key]Status)}
}

// Get returns the status for (hashKind, hash) and whether it exists.
func (c *StatusCache) Get(hashKind, hash string) (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.cache[key{hashKind, hash}]
	return s, ok
}

// Insert replaces the status for (hashKind, hash), adjusting the per-kind
// counters for both the new and any previous status, matching the Rust
// cache's insert().
func (c *StatusCache) Insert(hashKind, hash string, status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{hashKind, hash}
	prev, hadPrev := c.cache[k]
	c.cache[k] = status

	c.bumpCounter(status.Kind, 1)
	if hadPrev {
		c.bumpCounter(prev.Kind, -1)
	}
}

// RemoveQueued deletes the entry for (hashKind, hash) only if its current
// status is Queued, matching the Rust cache's remove_queued().
func (c *StatusCache) RemoveQueued(hashKind, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{hashKind, hash}
	s, ok := c.cache[k]
	if !ok || s.Kind != StatusQueued {
		return
	}
	delete(c.cache, k)
	c.queuedCounter.Add(-1)
}

func (c *StatusCache) bumpCounter(kind StatusKind, delta int64) {
	switch kind {
	case StatusQueued:
		c.queuedCounter.Add(delta)
	case StatusReady:
		c.readyCounter.Add(delta)
	case StatusFailed:
		c.failedCounter.Add(delta)
	}
}

// Queued returns the current count of Queued entries.
func (c *StatusCache) Queued() int64 { return c.queuedCounter.Load() }

// Ready returns the current count of Ready entries.
func (c *StatusCache) Ready() int64 { return c.readyCounter.Load() }

// Failed returns the current count of Failed entries.
func (c *StatusCache) Failed() int64 { return c.failedCounter.Load() }

// SizeModel is the total cache size in bytes, tagged with whether it
// includes any estimated (not-yet-transcoded) contributions.
type SizeModel struct {
	Bytes     uint64
	Estimated bool
}

// Size sums estimated_size for Queued entries and file_size for Ready
// entries, tagging the result Estimated if any Queued entry contributed,
// per spec.md §4.3's "Total estimated+actual cache size".
func (c *StatusCache) Size() SizeModel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total uint64
	var estimated bool
	for _, s := range c.cache {
		switch s.Kind {
		case StatusQueued:
			total += s.EstimatedSize
			estimated = true
		case StatusReady:
			total += s.FileSize
		}
	}
	return SizeModel{Bytes: total, Estimated: estimated}
}
