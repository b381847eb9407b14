// Package peer owns the overlay QUIC endpoint, per-peer admission state
// machine, and inbound-connection throttling. Transport is
// github.com/quic-go/quic-go (negotiated ALPN "musicopy/1"); node identity
// and the self-signed certificate come from internal/identity. Grounded on
// the other_examples QUIC/WebTransport client transport for the
// listener/dialer + per-connection goroutine shape, and on the teacher's
// internal/auth.rateLimiter for inbound throttling (ratelimit.go).
package peer

import (
	"fmt"

	"github.com/hazelmeow/musicopy/internal/identity"
)

// Role records which side initiated a connection.
type Role int

const (
	RoleIncoming Role = iota
	RoleOutgoing
)

func (r Role) String() string {
	if r == RoleOutgoing {
		return "outgoing"
	}
	return "incoming"
}

// StateKind is the peer admission state, exactly as spec.md §4.5.
type StateKind int

const (
	StateUnknown StateKind = iota
	StatePending
	StateAccepted
	StateActive
	StateRejected
	StateClosed
)

func (k StateKind) String() string {
	switch k {
	case StateUnknown:
		return "unknown"
	case StatePending:
		return "pending"
	case StateAccepted:
		return "accepted"
	case StateActive:
		return "active"
	case StateRejected:
		return "rejected"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// State is a peer's admission state plus the role that produced it.
// Role is meaningful for Pending and Accepted; it is retained afterwards
// for display but no longer drives admission decisions.
type State struct {
	Kind StateKind
	Role Role
}

func (s State) String() string {
	if s.Kind == StatePending || s.Kind == StateAccepted {
		return fmt.Sprintf("%s(%s)", s.Kind, s.Role)
	}
	return s.Kind.String()
}

// transition reports whether moving from s to next is legal per spec.md
// §4.5's state diagram. Terminal states (Closed, Rejected) accept no
// further transitions.
func (s State) transition(next StateKind) bool {
	switch s.Kind {
	case StateUnknown:
		return next == StatePending
	case StatePending:
		return next == StateAccepted || next == StateRejected
	case StateAccepted:
		return next == StateActive || next == StateClosed
	case StateActive:
		return next == StateClosed
	default:
		return false
	}
}

// IsAdmitted reports whether traffic beyond the handshake may be served to
// a peer in this state. Only Active peers are admitted; spec.md §4.5:
// "no traffic is served to a Pending peer other than the handshake".
func (s State) IsAdmitted() bool {
	return s.Kind == StateActive
}

// ID identifies a peer by its long-term node id.
type ID = identity.NodeID
