package core

import "github.com/hazelmeow/musicopy/internal/peer"

// RootSummary is one library root in a model snapshot.
type RootSummary struct {
	Name      string
	Path      string
	FileCount uint64
}

// PeerSummary is one known peer in a model snapshot, split by role and
// state for the UI's pending/active lists (spec.md §3 "Model snapshot").
type PeerSummary struct {
	NodeID string
	Role   string
	State  string
}

// TranscodeCounts mirrors the status cache's per-kind counters.
type TranscodeCounts struct {
	Queued int64
	Ready  int64
	Failed int64
}

// Model is the read-only projection pushed to the UI: catalog roots, the
// peer set, transcode counts, and per-root file counts (spec.md §3).
type Model struct {
	NodeID     string
	Roots      []RootSummary
	Peers      []PeerSummary
	Transcodes TranscodeCounts
	SizeBytes  uint64
	SizeIsEstimate bool
}

// EventSink receives model snapshots. Injected at construction so the core
// never reaches for a process-wide sender (spec.md §9 "Global event
// senders").
type EventSink interface {
	OnModel(Model)
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(Model)

func (f EventSinkFunc) OnModel(m Model) { f(m) }

func roleString(r peer.Role) string {
	return r.String()
}
