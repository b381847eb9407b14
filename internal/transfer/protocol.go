// Package transfer implements the request/response protocol peers speak
// over the overlay QUIC connection once a peer is Active: ListCollection,
// Fetch (with resumable byte ranges), and Bye, per spec.md §4.6. Framing is
// deliberately simple: one QUIC stream per request, a single
// length-prefixed encoding/gob header message, followed — for Fetch — by a
// raw byte stream copied directly onto the wire. gob is stdlib rather than
// an ecosystem serialisation library because this wire format never leaves
// musicopy-to-musicopy traffic (see DESIGN.md).
package transfer

import "io"

// Stream is the subset of *quic.Stream (or *quic.SendStream/*quic.ReceiveStream
// pairs joined into one) this package needs: a bidirectional byte stream
// that can be half-closed for writes. Narrowing to an interface keeps
// server/client logic testable over net.Pipe without a live QUIC connection.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// MessageType tags the single request message a stream carries.
type MessageType uint8

const (
	MsgListCollection MessageType = iota
	MsgFetch
	MsgBye
)

// Request is the single envelope every request stream opens with.
type Request struct {
	Type  MessageType
	Fetch FetchRequest // only meaningful when Type == MsgFetch
}

// ByteRange resumes a partial download at Start (inclusive) through End
// (exclusive, 0 meaning "to the end of the artefact").
type ByteRange struct {
	Start uint64
	End   uint64
}

// FetchRequest names the artefact and optional resume range.
type FetchRequest struct {
	HashKind string
	Hash     string
	Range    *ByteRange
}

// ManifestEntry is one advertised collection member. TranscodedSize is the
// estimated size for a Queued artefact or the real size for a Ready one,
// per spec.md §4.6 ("Queued entries report transcoded_size = estimated").
type ManifestEntry struct {
	Name           string
	HashKind       string
	Hash           string
	TranscodedSize uint64
}

// CollectionManifest answers ListCollection.
type CollectionManifest struct {
	Entries []ManifestEntry
}

// FetchStatus tags a FetchResponse header.
type FetchStatus uint8

const (
	FetchOK FetchStatus = iota
	FetchNotReady
	FetchNotFound
)

// FetchResponse is the header sent before Fetch's byte stream (or in place
// of it, for NotReady/NotFound). When Status is FetchOK, exactly Size bytes
// of the artefact follow immediately on the stream, starting at the
// requested range's offset.
type FetchResponse struct {
	Status       FetchStatus
	Size         uint64
	RetryAfterMs int64
}
