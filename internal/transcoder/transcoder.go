// Package transcoder implements musicopy's pure transcode function: any
// supported input audio file to a 128kbit/s single-stream Ogg Opus file at
// 48kHz, per spec.md §4.2. It composes the decode, resample, opusenc, tags,
// and ogg subpackages; none of those packages know about each other.
package transcoder

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/hazelmeow/musicopy/internal/transcoder/decode"
	"github.com/hazelmeow/musicopy/internal/transcoder/ogg"
	"github.com/hazelmeow/musicopy/internal/transcoder/opusenc"
	"github.com/hazelmeow/musicopy/internal/transcoder/resample"
	"github.com/hazelmeow/musicopy/internal/transcoder/tags"
)

// Stage identifies which phase of the pipeline a transcode failed in,
// matching spec.md §4.2's failure taxonomy exactly.
type Stage string

const (
	StageProbe    Stage = "probe"
	StageDecode   Stage = "decode"
	StageResample Stage = "resample"
	StageEncode   Stage = "encode"
	StageWrite    Stage = "write"
	StageMetadata Stage = "metadata"
)

// Error reports which pipeline stage failed and why.
type Error struct {
	Stage Stage
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcode: %s: %v", e.Stage, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// outputRate is the fixed target sample rate spec.md §4.2 mandates.
const outputRate = 48000

// Transcode reads inputPath, produces a single-stream Ogg Opus file at
// outputPath, and returns the final file size in bytes.
func Transcode(ctx context.Context, inputPath, outputPath string) (int64, error) {
	track, err := decode.Decode(ctx, inputPath)
	if err != nil {
		return 0, &Error{Stage: StageDecode, Cause: err}
	}

	enc, err := opusenc.New(len(track.Channels))
	if err != nil {
		return 0, &Error{Stage: StageEncode, Cause: err}
	}
	lookahead := enc.Lookahead()

	channels, err := prepareChannels(track, lookahead)
	if err != nil {
		return 0, &Error{Stage: StageResample, Cause: err}
	}

	interleaved := interleave(channels)

	comments, err := tags.Extract(inputPath)
	if err != nil {
		return 0, &Error{Stage: StageMetadata, Cause: err}
	}

	packets, err := enc.EncodeAll(interleaved, len(channels[0]))
	if err != nil {
		return 0, &Error{Stage: StageEncode, Cause: err}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return 0, &Error{Stage: StageWrite, Cause: err}
	}
	defer out.Close()

	writer, err := ogg.NewWriter(out, newSerial(), len(channels), uint16(lookahead), outputRate, comments)
	if err != nil {
		return 0, &Error{Stage: StageWrite, Cause: err}
	}
	for _, p := range packets {
		if err := writer.WriteAudioPacket(p.Data, p.GranulePos, p.Last); err != nil {
			return 0, &Error{Stage: StageWrite, Cause: err}
		}
	}

	if err := out.Sync(); err != nil {
		return 0, &Error{Stage: StageWrite, Cause: err}
	}

	info, err := out.Stat()
	if err != nil {
		return 0, &Error{Stage: StageWrite, Cause: err}
	}
	return info.Size(), nil
}

// prepareChannels resamples track to outputRate if needed and prepends
// lookahead zero-frames per channel, per spec.md §4.2 steps 4-5.
func prepareChannels(track *decode.Track, lookahead int) ([][]float32, error) {
	if track.SampleRate == outputRate {
		return padHead(track.Channels, lookahead), nil
	}

	// Resample to ⌊N·48000/r⌋ frames, where N is the source frame count,
	// then prepend the L lookahead zero-frames so the total matches
	// spec.md's ⌊N·48000/r⌋ + L.
	outLen := track.NumFrames * outputRate / track.SampleRate
	resampled := resample.Frames(track.Channels, track.SampleRate, outputRate, outLen)
	return padHead(resampled, lookahead), nil
}

// padHead prepends lookahead zero-frames to each channel.
func padHead(channels [][]float32, lookahead int) [][]float32 {
	out := make([][]float32, len(channels))
	for i, ch := range channels {
		padded := make([]float32, lookahead+len(ch))
		copy(padded[lookahead:], ch)
		out[i] = padded
	}
	return out
}

// interleave combines planar channels into a single interleaved buffer
// (stereo) or returns the lone channel unchanged (mono), per spec.md §4.2
// step 6.
func interleave(channels [][]float32) []float32 {
	if len(channels) == 1 {
		return channels[0]
	}

	numFrames := len(channels[0])
	out := make([]float32, numFrames*len(channels))
	for i := 0; i < numFrames; i++ {
		for c, ch := range channels {
			out[i*len(channels)+c] = ch[i]
		}
	}
	return out
}

var serialCounter uint32 = 1

// newSerial returns a process-unique Ogg stream serial number. musicopy
// writes one file per transcode invocation, so a simple incrementing
// counter (rather than a random serial) is sufficient and deterministic
// for tests; transcodepool runs numWorkers of these concurrently, so the
// increment itself must be atomic.
func newSerial() uint32 {
	return atomic.AddUint32(&serialCounter, 1)
}
