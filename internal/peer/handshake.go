package peer

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/gob"
	"fmt"

	"github.com/hazelmeow/musicopy/internal/identity"
)

// hello is the first handshake message each side sends: its claimed node id
// plus a fresh nonce the peer must sign to prove possession of the
// corresponding private key.
type hello struct {
	NodeID identity.NodeID
	Nonce  [32]byte
}

// proof carries the signature over the peer's nonce, completing mutual
// authentication. TLS on the QUIC connection already gives confidentiality
// and integrity; this exchange is what actually binds the connection to a
// node id, since the TLS certificate's key is HKDF-derived and can't be
// checked against a node id without the private key (identity.go).
type proof struct {
	Signature []byte
}

// handshakeResult is what a completed handshake yields.
type handshakeResult struct {
	PeerID identity.NodeID
}

// runHandshake performs the mutual node-id proof over stream, reading and
// writing framed gob messages. It returns once both sides have proven
// ownership of their claimed node id, or an error if verification fails.
func runHandshake(stream readWriter, self *identity.Identity) (*handshakeResult, error) {
	enc := gob.NewEncoder(stream)
	dec := gob.NewDecoder(bufio.NewReader(stream))

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("peer: handshake: generate nonce: %w", err)
	}

	writeErrCh := make(chan error, 1)
	go func() {
		writeErrCh <- enc.Encode(hello{NodeID: self.NodeID(), Nonce: nonce})
	}()

	var peerHello hello
	if err := dec.Decode(&peerHello); err != nil {
		return nil, fmt.Errorf("peer: handshake: read hello: %w", err)
	}
	if err := <-writeErrCh; err != nil {
		return nil, fmt.Errorf("peer: handshake: write hello: %w", err)
	}

	sig := ed25519.Sign(self.Private(), peerHello.Nonce[:])
	go func() {
		writeErrCh <- enc.Encode(proof{Signature: sig})
	}()

	var peerProof proof
	if err := dec.Decode(&peerProof); err != nil {
		return nil, fmt.Errorf("peer: handshake: read proof: %w", err)
	}
	if err := <-writeErrCh; err != nil {
		return nil, fmt.Errorf("peer: handshake: write proof: %w", err)
	}

	if !ed25519.Verify(ed25519.PublicKey(peerHello.NodeID[:]), nonce[:], peerProof.Signature) {
		return nil, fmt.Errorf("peer: handshake: signature verification failed for node %s", peerHello.NodeID)
	}

	return &handshakeResult{PeerID: peerHello.NodeID}, nil
}

// readWriter is the subset of *quic.Stream the handshake needs; narrowed
// for testability without a real QUIC connection.
type readWriter interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}
