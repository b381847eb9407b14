// Package decode reads an input audio file's default track into planar
// float32 samples, one slice per channel, per spec.md §4.2 steps 1-2. WAV
// and AIFF are parsed directly from their RIFF/AIFF chunk headers via
// encoding/binary; every other supported extension (mp3, flac, ogg, m4a) is
// decoded by shelling out to ffmpeg in raw float PCM mode, adapting the
// teacher's internal/ffmpeg.Encoder.Stream subprocess-pipe pattern into a
// decoder rather than an encoder.
package decode

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/hazelmeow/musicopy/internal/errs"
)

// Track is a fully decoded audio track: planar float32 samples (one slice
// per channel), the source sample rate, and channel count.
type Track struct {
	Channels   [][]float32
	SampleRate int
	NumFrames  int
}

// SupportedExtensions is the set of file extensions musicopy's indexer and
// transcoder accept (spec.md §4.4).
var SupportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".wav":  true,
	".aif":  true,
	".aiff": true,
}

// Decode probes inputPath by extension and decodes its default audio track.
// Only mono and stereo are supported; anything else fails with errs.KindTranscode.
func Decode(ctx context.Context, inputPath string) (*Track, error) {
	ext := strings.ToLower(filepath.Ext(inputPath))

	var track *Track
	var err error
	switch ext {
	case ".wav":
		track, err = decodeWAV(inputPath)
	case ".aif", ".aiff":
		track, err = decodeAIFF(inputPath)
	case ".mp3", ".flac", ".ogg", ".m4a":
		track, err = decodeViaFFmpeg(ctx, inputPath)
	default:
		return nil, errs.New(errs.KindTranscode, fmt.Sprintf("decode: unsupported extension %q", ext))
	}
	if err != nil {
		return nil, err
	}

	if len(track.Channels) != 1 && len(track.Channels) != 2 {
		return nil, errs.New(errs.KindTranscode, fmt.Sprintf("decode: unsupported channel count %d", len(track.Channels)))
	}
	return track, nil
}

// decodeViaFFmpeg shells out to ffmpeg to decode compressed formats to raw
// interleaved 32-bit float PCM on stdout, at the source file's native rate
// and channel layout (no resampling or mixdown happens here — that is
// internal/transcoder/resample's job).
func decodeViaFFmpeg(ctx context.Context, inputPath string) (*Track, error) {
	rate, channels, err := probeFFmpeg(ctx, inputPath)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-i", inputPath,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ar", fmt.Sprintf("%d", rate),
		"-ac", fmt.Sprintf("%d", channels),
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errs.Wrap(errs.KindTranscode, "decode: create stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errs.Wrap(errs.KindTranscode, "decode: create stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errs.Wrap(errs.KindTranscode, "decode: start ffmpeg", err)
	}

	go func() {
		buf := make([]byte, 1024)
		for {
			n, rerr := stderr.Read(buf)
			if n > 0 {
				slog.Debug("ffmpeg", "output", string(buf[:n]))
			}
			if rerr != nil {
				return
			}
		}
	}()

	raw, copyErr := io.ReadAll(bufio.NewReaderSize(stdout, 64*1024))
	waitErr := cmd.Wait()

	if copyErr != nil {
		return nil, errs.Wrap(errs.KindTranscode, "decode: read ffmpeg output", copyErr)
	}
	if waitErr != nil {
		return nil, errs.Wrap(errs.KindTranscode, "decode: ffmpeg exited with error", waitErr)
	}

	numFrames := len(raw) / 4 / channels
	chans := make([][]float32, channels)
	for c := range chans {
		chans[c] = make([]float32, numFrames)
	}
	for i := 0; i < numFrames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 4
			bits := binary.LittleEndian.Uint32(raw[off : off+4])
			chans[c][i] = math.Float32frombits(bits)
		}
	}

	return &Track{Channels: chans, SampleRate: rate, NumFrames: numFrames}, nil
}

// probeFFmpeg runs ffprobe to determine the default audio track's sample
// rate and channel count ahead of the raw-PCM decode pass.
func probeFFmpeg(ctx context.Context, inputPath string) (rate, channels int, err error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate,channels",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	}
	out, runErr := exec.CommandContext(ctx, "ffprobe", args...).Output()
	if runErr != nil {
		return 0, 0, errs.Wrap(errs.KindTranscode, "decode: ffprobe failed", runErr)
	}

	lines := strings.Fields(string(out))
	if len(lines) < 2 {
		return 0, 0, errs.New(errs.KindTranscode, "decode: ffprobe returned incomplete stream info")
	}
	if _, err := fmt.Sscanf(lines[0], "%d", &rate); err != nil {
		return 0, 0, errs.Wrap(errs.KindTranscode, "decode: parse sample_rate", err)
	}
	if _, err := fmt.Sscanf(lines[1], "%d", &channels); err != nil {
		return 0, 0, errs.Wrap(errs.KindTranscode, "decode: parse channels", err)
	}
	return rate, channels, nil
}

// decodeWAV parses a canonical RIFF/WAVE file directly, supporting PCM
// (format 1) and IEEE float (format 3) data at 16 or 32 bits per sample.
func decodeWAV(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "decode: open wav", err)
	}
	defer f.Close()

	var riffHeader [12]byte
	if _, err := io.ReadFull(f, riffHeader[:]); err != nil {
		return nil, errs.Wrap(errs.KindTranscode, "decode: read riff header", err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, errs.New(errs.KindTranscode, "decode: not a RIFF/WAVE file")
	}

	var (
		format        uint16
		channels      int
		sampleRate    int
		bitsPerSample uint16
		dataBytes     []byte
	)

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(f, chunkHeader[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, errs.Wrap(errs.KindTranscode, "decode: read chunk header", err)
		}
		id := string(chunkHeader[0:4])
		size := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(f, body); err != nil {
				return nil, errs.Wrap(errs.KindTranscode, "decode: read fmt chunk", err)
			}
			format = binary.LittleEndian.Uint16(body[0:2])
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = binary.LittleEndian.Uint16(body[14:16])
		case "data":
			dataBytes = make([]byte, size)
			if _, err := io.ReadFull(f, dataBytes); err != nil {
				return nil, errs.Wrap(errs.KindTranscode, "decode: read data chunk", err)
			}
		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, errs.Wrap(errs.KindTranscode, "decode: skip chunk", err)
			}
		}
		if size%2 == 1 {
			f.Seek(1, io.SeekCurrent)
		}
	}

	if dataBytes == nil || channels == 0 {
		return nil, errs.New(errs.KindTranscode, "decode: wav missing fmt or data chunk")
	}

	bytesPerSample := int(bitsPerSample) / 8
	numFrames := len(dataBytes) / bytesPerSample / channels
	chans := make([][]float32, channels)
	for c := range chans {
		chans[c] = make([]float32, numFrames)
	}

	for i := 0; i < numFrames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * bytesPerSample
			var sample float32
			switch {
			case format == 3 && bitsPerSample == 32:
				sample = math.Float32frombits(binary.LittleEndian.Uint32(dataBytes[off : off+4]))
			case bitsPerSample == 16:
				v := int16(binary.LittleEndian.Uint16(dataBytes[off : off+2]))
				sample = float32(v) / 32768.0
			case bitsPerSample == 32:
				v := int32(binary.LittleEndian.Uint32(dataBytes[off : off+4]))
				sample = float32(v) / 2147483648.0
			default:
				sample = 0
			}
			chans[c][i] = sample
		}
	}

	return &Track{Channels: chans, SampleRate: sampleRate, NumFrames: numFrames}, nil
}

// decodeAIFF parses a canonical AIFF/AIFC file's COMM and SSND chunks
// (big-endian, unlike WAV's little-endian RIFF layout).
func decodeAIFF(path string) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "decode: open aiff", err)
	}
	defer f.Close()

	var formHeader [12]byte
	if _, err := io.ReadFull(f, formHeader[:]); err != nil {
		return nil, errs.Wrap(errs.KindTranscode, "decode: read form header", err)
	}
	if string(formHeader[0:4]) != "FORM" {
		return nil, errs.New(errs.KindTranscode, "decode: not a FORM/AIFF file")
	}

	var (
		channels      int
		numSampleFrames uint32
		bitsPerSample uint16
		sampleRate    int
		ssnd          []byte
	)

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(f, chunkHeader[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, errs.Wrap(errs.KindTranscode, "decode: read chunk header", err)
		}
		id := string(chunkHeader[0:4])
		size := binary.BigEndian.Uint32(chunkHeader[4:8])

		switch id {
		case "COMM":
			body := make([]byte, size)
			if _, err := io.ReadFull(f, body); err != nil {
				return nil, errs.Wrap(errs.KindTranscode, "decode: read comm chunk", err)
			}
			channels = int(binary.BigEndian.Uint16(body[0:2]))
			numSampleFrames = binary.BigEndian.Uint32(body[2:6])
			bitsPerSample = binary.BigEndian.Uint16(body[6:8])
			sampleRate = int(decodeIEEE80Extended(body[8:18]))
		case "SSND":
			body := make([]byte, size)
			if _, err := io.ReadFull(f, body); err != nil {
				return nil, errs.Wrap(errs.KindTranscode, "decode: read ssnd chunk", err)
			}
			// SSND payload begins with an 8-byte offset/blockSize pair.
			ssnd = body[8:]
		default:
			if _, err := f.Seek(int64(size), io.SeekCurrent); err != nil {
				return nil, errs.Wrap(errs.KindTranscode, "decode: skip chunk", err)
			}
		}
		if size%2 == 1 {
			f.Seek(1, io.SeekCurrent)
		}
	}

	if ssnd == nil || channels == 0 {
		return nil, errs.New(errs.KindTranscode, "decode: aiff missing COMM or SSND chunk")
	}

	bytesPerSample := int(bitsPerSample) / 8
	chans := make([][]float32, channels)
	for c := range chans {
		chans[c] = make([]float32, numSampleFrames)
	}

	for i := 0; i < int(numSampleFrames); i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * bytesPerSample
			if off+bytesPerSample > len(ssnd) {
				break
			}
			var sample float32
			switch bitsPerSample {
			case 16:
				v := int16(binary.BigEndian.Uint16(ssnd[off : off+2]))
				sample = float32(v) / 32768.0
			case 32:
				v := int32(binary.BigEndian.Uint32(ssnd[off : off+4]))
				sample = float32(v) / 2147483648.0
			}
			chans[c][i] = sample
		}
	}

	return &Track{Channels: chans, SampleRate: sampleRate, NumFrames: int(numSampleFrames)}, nil
}

// decodeIEEE80Extended decodes the 80-bit IEEE extended-precision float AIFF
// uses for its sample rate field.
func decodeIEEE80Extended(b []byte) float64 {
	exponent := int(binary.BigEndian.Uint16(b[0:2]))
	mantissa := binary.BigEndian.Uint64(b[2:10])

	sign := 1.0
	if exponent&0x8000 != 0 {
		sign = -1.0
		exponent &= 0x7fff
	}

	if exponent == 0 && mantissa == 0 {
		return 0
	}

	f := float64(mantissa) * math.Pow(2, float64(exponent-16383-63))
	return sign * f
}
