// Package identity manages the node's fixed-length public key, persisted as
// an Ed25519 keypair, and derives the self-signed TLS certificate the
// overlay QUIC listener authenticates connections with. golang.org/x/crypto
// is already a direct teacher dependency (used there for bcrypt); hkdf is
// the same module family, used here to turn the node's long-term Ed25519
// key into deterministic certificate key material without standing up a
// separate CA.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// NodeID is a node's public key, as used for addressing and persistence.
// The canonical textual form is lowercase hex (spec.md §3).
type NodeID [ed25519.PublicKeySize]byte

// String renders the node id as lowercase hex.
func (n NodeID) String() string {
	return hex.EncodeToString(n[:])
}

// ParseNodeID decodes a lowercase-hex node id.
func ParseNodeID(s string) (NodeID, error) {
	var n NodeID
	b, err := hex.DecodeString(s)
	if err != nil {
		return n, fmt.Errorf("identity: parse node id: %w", err)
	}
	if len(b) != len(n) {
		return n, fmt.Errorf("identity: parse node id: want %d bytes, got %d", len(n), len(b))
	}
	copy(n[:], b)
	return n, nil
}

// Identity is the local node's long-term keypair.
type Identity struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NodeID returns this identity's node id.
func (id *Identity) NodeID() NodeID {
	var n NodeID
	copy(n[:], id.Public)
	return n
}

// Private returns the identity's long-term private key, used to sign the
// peer handshake's nonce (internal/peer).
func (id *Identity) Private() ed25519.PrivateKey {
	return id.private
}

// Generate creates a fresh random identity.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate: %w", err)
	}
	return &Identity{Public: pub, private: priv}, nil
}

// LoadOrGenerate reads the identity persisted at path, generating and
// persisting a new one if it doesn't exist yet.
func LoadOrGenerate(path string) (*Identity, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("identity: %q has unexpected length %d", path, len(b))
		}
		priv := ed25519.PrivateKey(b)
		return &Identity{Public: priv.Public().(ed25519.PublicKey), private: priv}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: read %q: %w", path, err)
	}

	id, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("identity: mkdir for %q: %w", path, err)
	}
	if err := os.WriteFile(path, id.private, 0o600); err != nil {
		return nil, fmt.Errorf("identity: write %q: %w", path, err)
	}
	return id, nil
}

// TLSCertificate builds a self-signed TLS certificate whose key pair is
// derived deterministically from this identity's private key, suitable for
// use as the QUIC listener's server certificate. Every call yields the same
// certificate key; the serial number and the validity end date are fresh on
// each call, so the encoded certificate itself differs between calls.
func (id *Identity) TLSCertificate() (tls.Certificate, error) {
	seedReader := hkdf.New(sha3.New256, id.private.Seed(), nil, []byte("musicopy-tls-cert-v1"))

	certPriv, err := deriveCertKey(seedReader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("identity: derive cert key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("identity: serial: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: id.NodeID().String()},
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Now().AddDate(100, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IsCA:         true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, certPriv.Public(), certPriv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("identity: create certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyBytes, err := x509.MarshalPKCS8PrivateKey(certPriv)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("identity: marshal key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("identity: x509 key pair: %w", err)
	}
	return cert, nil
}

// deriveCertKey derives an Ed25519 signing key from an HKDF stream. Using
// Ed25519 for the certificate itself (rather than RSA) keeps certificate
// generation fast and dependency-free beyond crypto/ed25519 + x/crypto/hkdf.
func deriveCertKey(seed io.Reader) (ed25519.PrivateKey, error) {
	seedBytes := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(seed, seedBytes); err != nil {
		return nil, err
	}
	return ed25519.NewKeyFromSeed(seedBytes), nil
}
