// Package ogg implements the minimal Ogg container writer and reader
// musicopy's transcoder needs to produce and round-trip-verify Ogg Opus
// streams. The writer is modeled directly on the Pion-derived OggWriter
// found in the retrieved corpus (opusrt.OggWriter: CRC table, page/segment
// framing, granule positions, OpusHead/OpusTags) generalised to musicopy's
// exact header contents (spec.md §4.2 step 7).
package ogg

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	pageHeaderTypeContinuation = 0x00
	pageHeaderTypeBeginning    = 0x02
	pageHeaderTypeEnd          = 0x04
	idPageSignature            = "OpusHead"
	commentPageSignature       = "OpusTags"
	pageHeaderSignature        = "OggS"
	pageHeaderSize             = 27
	vendorString               = "musicopy"
)

// Writer writes a single logical Ogg Opus stream: one ID header page, one
// comment header page, then a sequence of audio-data pages (one packet per
// page, matching the teacher-adjacent OggWriter this is grounded on).
type Writer struct {
	out           io.Writer
	serial        uint32
	pageIndex     uint32
	channelCount  uint8
	preSkip       uint16
	inputRate     uint32
	checksumTable *[256]uint32
}

// NewWriter creates a Writer and immediately writes the ID header and
// comment header pages.
//
// preSkip is the encoder's reported lookahead in 48kHz frames. inputRate is
// written to OpusHead's input-sample-rate field; internal/transcoder always
// passes 48000, the rate the encoder runs at, whatever the source rate was.
// comments is the ordered list of "KEY=value" user comment strings,
// already filtered and formatted by the caller (internal/transcoder/tags).
func NewWriter(out io.Writer, serial uint32, channelCount int, preSkip uint16, inputRate uint32, comments []string) (*Writer, error) {
	w := &Writer{
		out:           out,
		serial:        serial,
		channelCount:  uint8(channelCount),
		preSkip:       preSkip,
		inputRate:     inputRate,
		checksumTable: generateChecksumTable(),
	}

	if err := w.writeIDHeader(); err != nil {
		return nil, fmt.Errorf("ogg: write id header: %w", err)
	}
	if err := w.writeCommentHeader(comments); err != nil {
		return nil, fmt.Errorf("ogg: write comment header: %w", err)
	}
	return w, nil
}

func (w *Writer) writeIDHeader() error {
	payload := make([]byte, 19)
	copy(payload[0:], idPageSignature)
	payload[8] = 1 // version
	payload[9] = w.channelCount
	binary.LittleEndian.PutUint16(payload[10:], w.preSkip)
	binary.LittleEndian.PutUint32(payload[12:], w.inputRate)
	binary.LittleEndian.PutUint16(payload[16:], 0) // output gain
	payload[18] = 0                                // channel mapping family 0

	page := w.createPage(payload, pageHeaderTypeBeginning, 0)
	w.pageIndex++
	_, err := w.out.Write(page)
	return err
}

func (w *Writer) writeCommentHeader(comments []string) error {
	buf := make([]byte, 0, 64)
	buf = append(buf, commentPageSignature...)
	buf = appendUint32LE(buf, uint32(len(vendorString)))
	buf = append(buf, vendorString...)
	buf = appendUint32LE(buf, uint32(len(comments)))
	for _, c := range comments {
		buf = appendUint32LE(buf, uint32(len(c)))
		buf = append(buf, c...)
	}

	page := w.createPage(buf, pageHeaderTypeContinuation, 0)
	w.pageIndex++
	_, err := w.out.Write(page)
	return err
}

// WriteAudioPacket writes one Opus audio packet as its own Ogg page.
// granulePos is the cumulative output-frame count per spec.md step 7d.
// If last is true the page is flagged EndOfStream.
func (w *Writer) WriteAudioPacket(packet []byte, granulePos uint64, last bool) error {
	headerType := uint8(pageHeaderTypeContinuation)
	if last {
		headerType = pageHeaderTypeEnd
	}
	page := w.createPage(packet, headerType, granulePos)
	w.pageIndex++
	_, err := w.out.Write(page)
	return err
}

func (w *Writer) createPage(payload []byte, headerType uint8, granulePos uint64) []byte {
	nSegments := (len(payload) / 255) + 1
	page := make([]byte, pageHeaderSize+len(payload)+nSegments)

	copy(page[0:], pageHeaderSignature)
	page[4] = 0 // version
	page[5] = headerType
	binary.LittleEndian.PutUint64(page[6:], granulePos)
	binary.LittleEndian.PutUint32(page[14:], w.serial)
	binary.LittleEndian.PutUint32(page[18:], w.pageIndex)
	page[26] = uint8(nSegments)

	for i := 0; i < nSegments-1; i++ {
		page[pageHeaderSize+i] = 255
	}
	page[pageHeaderSize+nSegments-1] = uint8(len(payload) % 255)

	copy(page[pageHeaderSize+nSegments:], payload)

	var checksum uint32
	for _, b := range page {
		checksum = (checksum << 8) ^ w.checksumTable[byte(checksum>>24)^b]
	}
	binary.LittleEndian.PutUint32(page[22:], checksum)

	return page
}

func appendUint32LE(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// EncodePictureComment builds the METADATA_BLOCK_PICTURE user comment value
// per spec.md step 7c: a FLAC PICTURE block (big-endian lengths, picture
// type 3 "front cover", zero depth/index count) wrapped in base64, returned
// as the full "METADATA_BLOCK_PICTURE=<base64>" comment string.
func EncodePictureComment(mimeType string, jpegBytes []byte) string {
	var block []byte
	block = appendUint32BE(block, 3) // picture type: front cover
	block = appendUint32BE(block, uint32(len(mimeType)))
	block = append(block, mimeType...)
	block = appendUint32BE(block, 0) // description length
	block = appendUint32BE(block, 500)
	block = appendUint32BE(block, 500)
	block = appendUint32BE(block, 0) // color depth
	block = appendUint32BE(block, 0) // index count (0 for non-indexed formats)
	block = appendUint32BE(block, uint32(len(jpegBytes)))
	block = append(block, jpegBytes...)

	return "METADATA_BLOCK_PICTURE=" + base64.StdEncoding.EncodeToString(block)
}

func appendUint32BE(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func generateChecksumTable() *[256]uint32 {
	var table [256]uint32
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return &table
}
