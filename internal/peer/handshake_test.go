package peer

import (
	"net"
	"testing"

	"github.com/hazelmeow/musicopy/internal/identity"
)

func TestRunHandshakeMutualSuccess(t *testing.T) {
	a, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate a: %v", err)
	}
	b, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate b: %v", err)
	}

	connA, connB := net.Pipe()

	type result struct {
		res *handshakeResult
		err error
	}
	doneA := make(chan result, 1)
	doneB := make(chan result, 1)

	go func() {
		res, err := runHandshake(connA, a)
		doneA <- result{res, err}
	}()
	go func() {
		res, err := runHandshake(connB, b)
		doneB <- result{res, err}
	}()

	rA := <-doneA
	rB := <-doneB

	if rA.err != nil {
		t.Fatalf("side A handshake: %v", rA.err)
	}
	if rB.err != nil {
		t.Fatalf("side B handshake: %v", rB.err)
	}
	if rA.res.PeerID != b.NodeID() {
		t.Fatalf("side A: expected peer id %s, got %s", b.NodeID(), rA.res.PeerID)
	}
	if rB.res.PeerID != a.NodeID() {
		t.Fatalf("side B: expected peer id %s, got %s", a.NodeID(), rB.res.PeerID)
	}
}
