package ogg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ErrNotOggOpus is returned when the stream doesn't start with a valid
// OpusHead page.
var ErrNotOggOpus = errors.New("ogg: not an Ogg Opus stream")

// Headers holds the parsed contents of the ID header and comment header
// pages, enough for round-trip verification (spec.md §8: "the emitted Ogg
// stream's first packet is OpusHead with pre_skip equal to the encoder's
// reported lookahead; the second packet is OpusTags beginning with magic
// OpusTags").
type Headers struct {
	Version      uint8
	ChannelCount uint8
	PreSkip      uint16
	InputRate    uint32
	CommentsRaw  []byte // raw OpusTags payload, including the "OpusTags" magic
}

// Packet is one decoded Opus audio packet read from an audio-data page.
type Packet struct {
	Data       []byte
	GranulePos uint64
	Last       bool // page carried the EndOfStream flag
}

// Reader reads the pages of an Ogg Opus stream written by Writer.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for page-at-a-time Ogg Opus reading.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadHeaders reads and validates the ID header and comment header pages.
// Must be called exactly once, before ReadPacket.
func (rd *Reader) ReadHeaders() (*Headers, error) {
	idPayload, _, _, err := rd.readPage()
	if err != nil {
		return nil, fmt.Errorf("ogg: read id header page: %w", err)
	}
	if len(idPayload) < 19 || string(idPayload[0:8]) != idPageSignature {
		return nil, ErrNotOggOpus
	}

	h := &Headers{
		Version:      idPayload[8],
		ChannelCount: idPayload[9],
		PreSkip:      leUint16(idPayload[10:12]),
		InputRate:    leUint32(idPayload[12:16]),
	}

	commentPayload, _, _, err := rd.readPage()
	if err != nil {
		return nil, fmt.Errorf("ogg: read comment header page: %w", err)
	}
	if len(commentPayload) < 8 || string(commentPayload[0:8]) != commentPageSignature {
		return nil, fmt.Errorf("ogg: comment page missing OpusTags magic")
	}
	h.CommentsRaw = commentPayload

	return h, nil
}

// ReadPacket reads the next audio-data page as a single packet. Returns
// io.EOF when the stream is exhausted.
func (rd *Reader) ReadPacket() (*Packet, error) {
	payload, granule, headerType, err := rd.readPage()
	if err != nil {
		return nil, err
	}
	return &Packet{
		Data:       payload,
		GranulePos: granule,
		Last:       headerType&pageHeaderTypeEnd != 0,
	}, nil
}

// readPage reads one full Ogg page (header, segment table, and payload,
// re-assembling segments into a single packet — musicopy never splits a
// packet across pages, so one page is always exactly one packet).
func (rd *Reader) readPage() (payload []byte, granule uint64, headerType uint8, err error) {
	var header [pageHeaderSize]byte
	if _, err = io.ReadFull(rd.r, header[:]); err != nil {
		return nil, 0, 0, err
	}
	if string(header[0:4]) != pageHeaderSignature {
		return nil, 0, 0, fmt.Errorf("ogg: bad capture pattern %q", header[0:4])
	}

	headerType = header[5]
	granule = leUint64(header[6:14])
	nSegments := int(header[26])

	segTable := make([]byte, nSegments)
	if _, err = io.ReadFull(rd.r, segTable); err != nil {
		return nil, 0, 0, err
	}

	total := 0
	for _, s := range segTable {
		total += int(s)
	}

	payload = make([]byte, total)
	if _, err = io.ReadFull(rd.r, payload); err != nil {
		return nil, 0, 0, err
	}

	return payload, granule, headerType, nil
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
