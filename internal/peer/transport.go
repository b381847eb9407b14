package peer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	"github.com/quic-go/quic-go"

	"github.com/hazelmeow/musicopy/internal/identity"
)

// ALPN is the single overlay protocol identifier negotiated on connect, per
// spec.md §6 ("Single overlay protocol identifier (ALPN-style)").
const ALPN = "musicopy/1"

// Endpoint is the overlay QUIC listener/dialer pair, grounded on the
// other_examples QUIC/WebTransport client's Dialer+Listener split (dial
// timeout, per-connection context, per-connection goroutine).
type Endpoint struct {
	self     *identity.Identity
	listener *quic.Listener
	manager  *Manager
}

func tlsConfig(self *identity.Identity) (*tls.Config, error) {
	cert, err := self.TLSCertificate()
	if err != nil {
		return nil, fmt.Errorf("peer: derive tls certificate: %w", err)
	}
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: true, // node identity is proven by the application handshake, not the cert chain
	}, nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: 0,
		MaxIdleTimeout:  0,
	}
}

// Listen opens the overlay listener on listenAddr (e.g. ":4433") and starts
// accepting inbound connections in the background. mgr is told about every
// new Pending(incoming) peer as connections arrive.
func Listen(ctx context.Context, self *identity.Identity, listenAddr string, mgr *Manager) (*Endpoint, error) {
	tc, err := tlsConfig(self)
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(listenAddr, tc, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("peer: listen %q: %w", listenAddr, err)
	}

	ep := &Endpoint{self: self, listener: ln, manager: mgr}
	go ep.acceptLoop(ctx)
	return ep, nil
}

// Addr returns the address the endpoint is listening on.
func (ep *Endpoint) Addr() string {
	return ep.listener.Addr().String()
}

// Close stops accepting connections and releases the listener.
func (ep *Endpoint) Close() error {
	return ep.listener.Close()
}

func (ep *Endpoint) acceptLoop(ctx context.Context) {
	for {
		conn, err := ep.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("peer: accept failed", "error", err)
			continue
		}
		go ep.handleInbound(ctx, conn)
	}
}

func (ep *Endpoint) handleInbound(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()
	if !ep.manager.allowInbound(remote) {
		slog.Warn("peer: inbound connection throttled", "remote", remote)
		conn.CloseWithError(0, "rate limited")
		return
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		slog.Warn("peer: accept handshake stream failed", "remote", remote, "error", err)
		conn.CloseWithError(0, "handshake stream failed")
		return
	}

	ep.manager.onInboundConnection(ctx, conn, stream, ep.self)
}

// Dial opens an outgoing connection to a known peer address and drives the
// handshake for it, registering the peer as Pending(outgoing) and, once the
// handshake has proven the remote is target, Accepted(outgoing) then Active
// (an explicit local dial implies local consent, so no accept command is
// needed).
func (ep *Endpoint) Dial(ctx context.Context, addr string, target identity.NodeID) error {
	tc, err := tlsConfig(ep.self)
	if err != nil {
		return err
	}
	conn, err := quic.DialAddr(ctx, addr, tc, quicConfig())
	if err != nil {
		return fmt.Errorf("peer: dial %q: %w", addr, err)
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "handshake stream failed")
		return fmt.Errorf("peer: open handshake stream to %q: %w", addr, err)
	}

	return ep.manager.onOutboundConnection(ctx, conn, stream, ep.self, target)
}
