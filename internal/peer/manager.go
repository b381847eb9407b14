package peer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/hazelmeow/musicopy/internal/identity"
)

// Peer is one remote node's connection and admission state.
type Peer struct {
	ID    identity.NodeID
	State State

	conn   *quic.Conn
	closed chan struct{}
}

// OnStateChange is called whenever a peer's state transitions. Wired by the
// core facade into its model-snapshot producer; no process-wide statics
// (spec.md §9 "Global event senders").
type OnStateChange func(id identity.NodeID, state State)

// Manager owns every known peer's admission state machine and the inbound
// connection rate limiter. It never reaches back into the core facade: the
// facade holds a *Manager, not the reverse (spec.md §9).
type Manager struct {
	mu    sync.Mutex
	peers map[identity.NodeID]*Peer

	limiter  *connectRateLimiter
	onChange OnStateChange
}

// NewManager creates an empty peer table. onChange may be nil.
func NewManager(onChange OnStateChange) *Manager {
	if onChange == nil {
		onChange = func(identity.NodeID, State) {}
	}
	return &Manager{
		peers:    make(map[identity.NodeID]*Peer),
		limiter:  newConnectRateLimiter(5, 15*time.Minute),
		onChange: onChange,
	}
}

// allowInbound throttles by remote transport address before the node id is
// known (the handshake hasn't run yet); it is the first line of defence
// against connection-attempt floods from a single source.
func (m *Manager) allowInbound(remoteAddr string) bool {
	return m.limiter.allow(remoteAddr)
}

func (m *Manager) onInboundConnection(ctx context.Context, conn *quic.Conn, stream *quic.Stream, self *identity.Identity) {
	result, err := runHandshake(stream, self)
	if err != nil {
		slog.Warn("peer: inbound handshake failed", "remote", conn.RemoteAddr(), "error", err)
		conn.CloseWithError(1, "handshake failed")
		return
	}

	if !m.limiter.allow(result.PeerID.String()) {
		slog.Warn("peer: inbound pending churn throttled", "node", result.PeerID)
		conn.CloseWithError(2, "rate limited")
		return
	}

	m.register(result.PeerID, conn, RoleIncoming)
	m.runSession(ctx, result.PeerID, conn)
}

// onOutboundConnection drives the handshake for a connection this node
// dialed. A successful local dial implies consent, so the peer moves
// straight to Accepted(outgoing) once the handshake completes and proves
// the remote really is target.
func (m *Manager) onOutboundConnection(ctx context.Context, conn *quic.Conn, stream *quic.Stream, self *identity.Identity, target identity.NodeID) error {
	m.registerPending(target, conn, RoleOutgoing)

	result, err := runHandshake(stream, self)
	if err != nil {
		m.setState(target, State{Kind: StateRejected, Role: RoleOutgoing})
		conn.CloseWithError(1, "handshake failed")
		return fmt.Errorf("peer: outbound handshake: %w", err)
	}
	if result.PeerID != target {
		m.setState(target, State{Kind: StateRejected, Role: RoleOutgoing})
		conn.CloseWithError(3, "node id mismatch")
		return fmt.Errorf("peer: dialed %s but handshake proved %s", target, result.PeerID)
	}

	m.setState(target, State{Kind: StateAccepted, Role: RoleOutgoing})
	m.setState(target, State{Kind: StateActive, Role: RoleOutgoing})
	go m.runSession(ctx, target, conn)
	return nil
}

func (m *Manager) register(id identity.NodeID, conn *quic.Conn, role Role) {
	m.registerPending(id, conn, role)
}

func (m *Manager) registerPending(id identity.NodeID, conn *quic.Conn, role Role) {
	m.mu.Lock()
	m.peers[id] = &Peer{ID: id, State: State{Kind: StatePending, Role: role}, conn: conn, closed: make(chan struct{})}
	m.mu.Unlock()
	m.onChange(id, State{Kind: StatePending, Role: role})
}

// runSession blocks until the connection closes, then transitions the peer
// to Closed. For an inbound peer, Active is only reached once the user has
// accepted it (Accept) and the handshake above has already completed;
// spec.md §4.5's "application handshake" is this package's node-id proof,
// already done by the time runSession is entered for an inbound peer that
// has also been Accepted.
func (m *Manager) runSession(ctx context.Context, id identity.NodeID, conn *quic.Conn) {
	select {
	case <-conn.Context().Done():
	case <-ctx.Done():
		conn.CloseWithError(0, "shutdown")
	}
	m.setState(id, State{Kind: StateClosed})
}

func (m *Manager) setState(id identity.NodeID, next State) {
	m.mu.Lock()
	p, ok := m.peers[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	if !p.State.transition(next.Kind) && p.State.Kind != next.Kind {
		m.mu.Unlock()
		slog.Warn("peer: rejected illegal state transition", "node", id, "from", p.State, "to", next)
		return
	}
	p.State = next
	m.mu.Unlock()
	m.onChange(id, next)
}

// Accept promotes a Pending(incoming) peer to Accepted(incoming) on the
// user's explicit accept command, then straight to Active: for an inbound
// peer the node-id handshake already ran before the peer became visible as
// Pending, so there is nothing left to complete once the user consents.
func (m *Manager) Accept(id identity.NodeID) error {
	m.mu.Lock()
	p, ok := m.peers[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("peer: unknown node %s", id)
	}
	if p.State.Kind != StatePending {
		return fmt.Errorf("peer: %s is not pending (state %s)", id, p.State)
	}

	m.setState(id, State{Kind: StateAccepted, Role: p.State.Role})
	m.setState(id, State{Kind: StateActive, Role: p.State.Role})
	return nil
}

// Reject moves a Pending peer to the terminal Rejected state and closes its
// connection.
func (m *Manager) Reject(id identity.NodeID) error {
	m.mu.Lock()
	p, ok := m.peers[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("peer: unknown node %s", id)
	}
	m.setState(id, State{Kind: StateRejected, Role: p.State.Role})
	p.conn.CloseWithError(4, "rejected")
	return nil
}

// Disconnect closes an Active peer's connection, moving it to Closed.
func (m *Manager) Disconnect(id identity.NodeID) error {
	m.mu.Lock()
	p, ok := m.peers[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("peer: unknown node %s", id)
	}
	p.conn.CloseWithError(0, "user disconnect")
	m.setState(id, State{Kind: StateClosed})
	return nil
}

// Get returns the current state of a known peer.
func (m *Manager) Get(id identity.NodeID) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok {
		return State{}, false
	}
	return p.State, true
}

// Conn returns the live QUIC connection for an Active peer, for the
// transfer protocol to open streams over. Returns nil if the peer isn't
// Active.
func (m *Manager) Conn(id identity.NodeID) *quic.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peers[id]
	if !ok || !p.State.IsAdmitted() {
		return nil
	}
	return p.conn
}

// List returns a snapshot of every known peer's state, for the model
// snapshot producer (spec.md §3 "Model snapshot").
func (m *Manager) List() map[identity.NodeID]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[identity.NodeID]State, len(m.peers))
	for id, p := range m.peers {
		out[id] = p.State
	}
	return out
}
