// Package opusenc wraps github.com/thesyncim/gopus's pure-Go Opus encoder
// with the fixed 20ms-frame, 128kbit/s, interleave-aware chunking and
// granule-position bookkeeping spec.md §4.2 step 7d requires. The codec
// itself is never reimplemented here — only the framing musicopy needs
// around it.
package opusenc

import (
	"github.com/thesyncim/gopus"

	"github.com/hazelmeow/musicopy/internal/errs"
)

// TargetBitrate is the fixed output bitrate spec.md §4.2 mandates.
const TargetBitrate = 128000

// FrameSamples is 20ms of audio at the fixed 48kHz output rate.
const FrameSamples = 960

// Encoder chunks an interleaved f32 PCM buffer into 20ms frames and
// encodes each with gopus, tracking the cumulative output-frame count for
// Ogg granule positions.
type Encoder struct {
	enc      *gopus.Encoder
	channels int
}

// New creates an Encoder for the given channel count at the fixed 48kHz
// output rate, tuned for music (ApplicationAudio) at TargetBitrate.
func New(channels int) (*Encoder, error) {
	enc, err := gopus.NewEncoder(48000, channels, gopus.ApplicationAudio)
	if err != nil {
		return nil, errs.Wrap(errs.KindTranscode, "opusenc: create encoder", err)
	}
	if err := enc.SetBitrate(TargetBitrate); err != nil {
		return nil, errs.Wrap(errs.KindTranscode, "opusenc: set bitrate", err)
	}
	enc.SetVBR(false)
	return &Encoder{enc: enc, channels: channels}, nil
}

// Lookahead returns the encoder's algorithmic delay in 48kHz frames (spec.md
// §4.2 step 3's L).
func (e *Encoder) Lookahead() int {
	return e.enc.Lookahead()
}

// Packet is one encoded Opus packet ready to be written as an Ogg page.
type Packet struct {
	Data       []byte
	GranulePos uint64
	Last       bool
}

// EncodeAll chunks interleaved into FrameSamples*channels sample frames and
// encodes each chunk. The trailing partial chunk, if any, is zero-padded
// before encoding; per spec.md §4.2 step 7d, if the final full chunk
// exactly consumes the input no padding packet is emitted, and the last
// packet emitted carries EndStream with a granule position equal to
// totalInputFrames (for end-trimming by the decoder).
func (e *Encoder) EncodeAll(interleaved []float32, totalInputFrames int) ([]Packet, error) {
	frameLen := FrameSamples * e.channels
	var packets []Packet

	cumulative := uint64(0)
	for offset := 0; offset < len(interleaved); offset += frameLen {
		end := offset + frameLen
		var chunk []float32
		isPartial := end > len(interleaved)
		if isPartial {
			chunk = make([]float32, frameLen)
			copy(chunk, interleaved[offset:])
		} else {
			chunk = interleaved[offset:end]
		}

		data, err := e.enc.EncodeFloat32(chunk)
		if err != nil {
			return nil, errs.Wrap(errs.KindTranscode, "opusenc: encode frame", err)
		}

		cumulative += FrameSamples
		last := end >= len(interleaved)

		granule := cumulative
		if last {
			granule = uint64(totalInputFrames)
		}

		packets = append(packets, Packet{
			Data:       data,
			GranulePos: granule,
			Last:       last,
		})
	}

	return packets, nil
}
