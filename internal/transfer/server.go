package transfer

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/hazelmeow/musicopy/internal/catalog"
	"github.com/hazelmeow/musicopy/internal/transcodepool"
)

// DefaultFetchTimeout is the server-side wait T before a Fetch for a
// not-yet-Ready artefact gives up and replies NotReady, per spec.md §4.6.
const DefaultFetchTimeout = 5 * time.Second

const pollInterval = 100 * time.Millisecond

// Server answers a peer's ListCollection/Fetch/Bye requests against the
// local catalog and transcode pool. One Server instance is shared across
// every Active peer connection; each inbound stream is one request.
type Server struct {
	nodeID       string
	store        catalog.Store
	status       *transcodepool.StatusCache
	pool         *transcodepool.Pool
	fetchTimeout time.Duration
}

// NewServer builds a Server for the local node's own catalog and transcode
// pool state.
func NewServer(nodeID string, store catalog.Store, pool *transcodepool.Pool, status *transcodepool.StatusCache) *Server {
	return &Server{nodeID: nodeID, store: store, pool: pool, status: status, fetchTimeout: DefaultFetchTimeout}
}

// Serve accepts streams on an Active peer connection until conn closes or
// ctx is cancelled, handling one request per stream.
func (s *Server) Serve(ctx context.Context, conn *quic.Conn) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go s.handleStream(ctx, stream)
	}
}

func (s *Server) handleStream(ctx context.Context, stream Stream) {
	defer stream.Close()

	var req Request
	if err := readFrame(stream, &req); err != nil {
		slog.Warn("transfer: read request", "error", err)
		return
	}

	switch req.Type {
	case MsgListCollection:
		s.handleListCollection(ctx, stream)
	case MsgFetch:
		s.handleFetch(ctx, stream, req.Fetch)
	case MsgBye:
		// Nothing to do beyond closing the stream; the peer's connection
		// teardown is handled by internal/peer.
	default:
		slog.Warn("transfer: unknown request type", "type", req.Type)
	}
}

func (s *Server) handleListCollection(ctx context.Context, stream Stream) {
	files, err := s.store.ListFiles(ctx, s.nodeID)
	if err != nil {
		slog.Warn("transfer: list files", "error", err)
		writeFrame(stream, CollectionManifest{})
		return
	}

	entries := make([]ManifestEntry, 0, len(files))
	for _, f := range files {
		hashHex := hex.EncodeToString(f.Hash)
		st, ok := s.status.Get(string(f.HashKind), hashHex)
		if !ok {
			continue
		}
		switch st.Kind {
		case transcodepool.StatusReady:
			entries = append(entries, ManifestEntry{
				Name: f.RelPath, HashKind: string(f.HashKind), Hash: hashHex,
				TranscodedSize: st.FileSize,
			})
		case transcodepool.StatusQueued:
			entries = append(entries, ManifestEntry{
				Name: f.RelPath, HashKind: string(f.HashKind), Hash: hashHex,
				TranscodedSize: st.EstimatedSize,
			})
		}
	}

	if err := writeFrame(stream, CollectionManifest{Entries: entries}); err != nil {
		slog.Warn("transfer: write manifest", "error", err)
	}
}

func (s *Server) handleFetch(ctx context.Context, stream Stream, req FetchRequest) {
	st, ok := s.status.Get(req.HashKind, req.Hash)
	if !ok {
		writeFrame(stream, FetchResponse{Status: FetchNotFound})
		return
	}

	if st.Kind != transcodepool.StatusReady {
		s.pool.Prioritize([]transcodepool.Item{{HashKind: req.HashKind, Hash: req.Hash}})
		st, ok = s.waitForReady(ctx, req.HashKind, req.Hash)
		if !ok {
			writeFrame(stream, FetchResponse{Status: FetchNotReady, RetryAfterMs: pollInterval.Milliseconds() * 10})
			return
		}
	}

	f, err := os.Open(st.LocalPath)
	if err != nil {
		writeFrame(stream, FetchResponse{Status: FetchNotFound})
		return
	}
	defer f.Close()

	start := uint64(0)
	size := st.FileSize
	if req.Range != nil {
		start = req.Range.Start
		if req.Range.End > start {
			size = req.Range.End - start
		} else if st.FileSize > start {
			size = st.FileSize - start
		} else {
			size = 0
		}
		if _, err := f.Seek(int64(start), io.SeekStart); err != nil {
			writeFrame(stream, FetchResponse{Status: FetchNotFound})
			return
		}
	}

	if err := writeFrame(stream, FetchResponse{Status: FetchOK, Size: size}); err != nil {
		slog.Warn("transfer: write fetch header", "error", err)
		return
	}
	if _, err := io.CopyN(stream, f, int64(size)); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("transfer: stream artefact", "error", err)
	}
}

// waitForReady polls the status cache until the artefact becomes Ready or
// fetchTimeout elapses. A bounded poll (rather than a condition-variable
// wakeup) keeps the server decoupled from the pool's internal
// synchronisation primitives.
func (s *Server) waitForReady(ctx context.Context, hashKind, hash string) (transcodepool.Status, bool) {
	deadline := time.Now().Add(s.fetchTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if st, ok := s.status.Get(hashKind, hash); ok && st.Kind == transcodepool.StatusReady {
			return st, true
		}
		if time.Now().After(deadline) {
			return transcodepool.Status{}, false
		}
		select {
		case <-ctx.Done():
			return transcodepool.Status{}, false
		case <-ticker.C:
		}
	}
}
