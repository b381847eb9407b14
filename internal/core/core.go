// Package core is the thread-safe command surface and change-notification
// bus the UI (here, internal/api) is built against — spec.md §2's "Core
// facade". It exclusively owns the catalog, transcode pool, indexer, and
// peer transport; every other subsystem is reached only through narrow
// interfaces (catalog.Store, the peer.Manager/Endpoint pair,
// transfer.Server), never a back-reference into *Core, mirroring the
// teacher's service layer (internal/radio/service/radio.go's Broadcaster
// interface breaking the same kind of cycle) and spec.md §9's "cyclic
// relations" note.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazelmeow/musicopy/internal/catalog"
	"github.com/hazelmeow/musicopy/internal/config"
	"github.com/hazelmeow/musicopy/internal/errs"
	"github.com/hazelmeow/musicopy/internal/identity"
	"github.com/hazelmeow/musicopy/internal/indexer"
	"github.com/hazelmeow/musicopy/internal/peer"
	"github.com/hazelmeow/musicopy/internal/transcodepool"
	"github.com/hazelmeow/musicopy/internal/transfer"
)

// modelTickRate is the model snapshot producer's minimum frequency,
// spec.md §3: "Produced at ≥1 Hz or on change".
const modelTickRate = 1 * time.Second

// Core wires every subsystem together and exposes spec.md §6's command
// surface.
type Core struct {
	cfg      *config.Config
	identity *identity.Identity

	store  catalog.Store
	status *transcodepool.StatusCache
	pool   *transcodepool.Pool
	ix     *indexer.Indexer

	peers    *peer.Manager
	endpoint *peer.Endpoint
	transfer *transfer.Server

	sink EventSink

	bgCtx  context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCore constructs the facade and starts its background loops (the
// accept loop inside peer.Listen, the model-snapshot ticker). ctx bounds
// the lifetime of every background goroutine; call Shutdown to stop them.
func NewCore(ctx context.Context, cfg *config.Config, sink EventSink) (*Core, error) {
	id, err := identity.LoadOrGenerate(cfg.IdentityPath)
	if err != nil {
		return nil, fmt.Errorf("core: load identity: %w", err)
	}

	dbPath := cfg.DBPath
	if cfg.InMemory {
		dbPath = ":memory:"
	}
	store, err := catalog.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("core: open catalog: %w", err)
	}

	bgCtx, cancel := context.WithCancel(ctx)

	status := transcodepool.NewStatusCache()
	pool, err := transcodepool.New(bgCtx, cfg.TranscodesDir, status, cfg.TranscodeWorkers)
	if err != nil {
		cancel()
		store.Close()
		return nil, fmt.Errorf("core: start transcode pool: %w", err)
	}

	nodeID := id.NodeID().String()
	ix := indexer.New(nodeID, store, pool)
	transferSrv := transfer.NewServer(nodeID, store, pool, status)

	if sink == nil {
		sink = EventSinkFunc(func(Model) {})
	}

	c := &Core{
		cfg: cfg, identity: id,
		store: store, status: status, pool: pool, ix: ix,
		transfer: transferSrv, sink: sink,
		bgCtx: bgCtx, cancel: cancel,
	}

	c.peers = peer.NewManager(c.onPeerStateChange)

	endpoint, err := peer.Listen(bgCtx, id, cfg.ListenAddr, c.peers)
	if err != nil {
		cancel()
		pool.Close()
		store.Close()
		return nil, fmt.Errorf("core: start overlay endpoint: %w", err)
	}
	c.endpoint = endpoint

	c.wg.Add(1)
	go c.modelLoop(bgCtx)

	return c, nil
}

// onPeerStateChange is the peer.Manager's OnStateChange callback: when a
// peer becomes Active, this node starts answering its transfer protocol
// requests, and every transition pushes a fresh model snapshot.
func (c *Core) onPeerStateChange(id identity.NodeID, state peer.State) {
	if state.Kind == peer.StateActive {
		if conn := c.peers.Conn(id); conn != nil {
			go c.transfer.Serve(c.bgCtx, conn)
		}
	}
	c.pushModel()
}

func (c *Core) modelLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(modelTickRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pushModel()
		}
	}
}

func (c *Core) pushModel() {
	c.sink.OnModel(c.Model())
}

// --- Command surface (spec.md §6) ---

// AddRoot registers a new library root and triggers a rescan.
func (c *Core) AddRoot(ctx context.Context, name, path string) error {
	if err := c.ix.AddRoot(ctx, name, path); err != nil {
		return err
	}
	c.pushModel()
	return nil
}

// RemoveRoot deregisters a library root and triggers a rescan.
func (c *Core) RemoveRoot(ctx context.Context, name string) error {
	if err := c.ix.RemoveRoot(ctx, name); err != nil {
		return err
	}
	c.pushModel()
	return nil
}

// ResetDatabase drops and recreates the catalog tables, per spec.md §6.
func (c *Core) ResetDatabase(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		return err
	}
	c.pushModel()
	return nil
}

// RescanLibrary runs a library scan; if one is already in flight, it waits
// for the scan that runs after it and returns that scan's result.
func (c *Core) RescanLibrary(ctx context.Context) (*indexer.ScanResult, error) {
	result, err := c.ix.Rescan(ctx)
	c.pushModel()
	return result, err
}

// AcceptConnection promotes a Pending peer to Active on user consent.
func (c *Core) AcceptConnection(nodeIDHex string) error {
	id, err := identity.ParseNodeID(nodeIDHex)
	if err != nil {
		return err
	}
	if err := c.peers.Accept(id); err != nil {
		return err
	}
	c.pushModel()
	return nil
}

// Connect dials a known peer address asynchronously, per spec.md §6
// ("connect(node_id_hex) — async").
func (c *Core) Connect(ctx context.Context, nodeIDHex, addr string) error {
	id, err := identity.ParseNodeID(nodeIDHex)
	if err != nil {
		return err
	}
	go func() {
		if err := c.endpoint.Dial(c.bgCtx, addr, id); err != nil {
			slog.Warn("core: outbound connect failed", "node", nodeIDHex, "error", err)
		}
	}()
	return nil
}

// DownloadAll runs download_all against an Active peer, per spec.md §4.6.
func (c *Core) DownloadAll(ctx context.Context, nodeIDHex, destination string) error {
	id, err := identity.ParseNodeID(nodeIDHex)
	if err != nil {
		return err
	}
	conn := c.peers.Conn(id)
	if conn == nil {
		return errs.New(errs.KindAdmission, fmt.Sprintf("peer %s is not active", nodeIDHex))
	}
	return transfer.DownloadAll(ctx, conn, destination)
}

// Model builds a fresh read-only snapshot for the UI (spec.md §3).
func (c *Core) Model() Model {
	ctx := context.Background()

	nodeID := c.identity.NodeID().String()

	var roots []RootSummary
	if rs, err := c.store.ListRoots(ctx, nodeID); err == nil {
		for _, r := range rs {
			count, _ := c.store.CountFiles(ctx, nodeID, r.Name)
			roots = append(roots, RootSummary{Name: r.Name, Path: r.Path, FileCount: count})
		}
	}

	var peers []PeerSummary
	for id, st := range c.peers.List() {
		peers = append(peers, PeerSummary{NodeID: id.String(), Role: roleString(st.Role), State: st.Kind.String()})
	}

	size := c.status.Size()

	return Model{
		NodeID: nodeID,
		Roots:  roots,
		Peers:  peers,
		Transcodes: TranscodeCounts{
			Queued: c.status.Queued(),
			Ready:  c.status.Ready(),
			Failed: c.status.Failed(),
		},
		SizeBytes:      size.Bytes,
		SizeIsEstimate: size.Estimated,
	}
}

// NodeID returns this node's identity for display/connection purposes.
func (c *Core) NodeID() string {
	return c.identity.NodeID().String()
}

// ListenAddr returns the overlay endpoint's bound address.
func (c *Core) ListenAddr() string {
	return c.endpoint.Addr()
}

// Shutdown cancels every background goroutine, drains the transcode pool's
// workers, and closes the catalog and overlay endpoint. Bounded by ctx;
// spec.md §5: "shutdown waits for the current job per worker to complete,
// up to a bounded deadline".
func (c *Core) Shutdown(ctx context.Context) error {
	c.cancel()
	c.endpoint.Close()

	done := make(chan struct{})
	go func() {
		c.pool.Close()
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("core: shutdown deadline exceeded, exiting with workers still draining")
	}

	return c.store.Close()
}
