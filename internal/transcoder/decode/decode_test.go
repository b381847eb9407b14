package decode

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeTestWAV writes a minimal canonical 16-bit PCM WAV file with the
// given sample rate, channel count, and a short sine wave.
func writeTestWAV(t *testing.T, path string, sampleRate, channels, numFrames int) {
	t.Helper()

	dataSize := numFrames * channels * 2
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	byteRate := sampleRate * channels * 2
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	off := 44
	for i := 0; i < numFrames; i++ {
		v := int16(10000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(buf[off:off+2], uint16(v))
			off += 2
		}
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write test wav: %v", err)
	}
}

func TestDecodeWAV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wav")
	writeTestWAV(t, path, 44100, 2, 4410)

	track, err := Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if track.SampleRate != 44100 {
		t.Fatalf("SampleRate: want 44100, got %d", track.SampleRate)
	}
	if len(track.Channels) != 2 {
		t.Fatalf("Channels: want 2, got %d", len(track.Channels))
	}
	if track.NumFrames != 4410 {
		t.Fatalf("NumFrames: want 4410, got %d", track.NumFrames)
	}
}

func TestDecodeWAVMono(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mono.wav")
	writeTestWAV(t, path, 48000, 1, 960)

	track, err := Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(track.Channels) != 1 {
		t.Fatalf("Channels: want 1, got %d", len(track.Channels))
	}
	if track.NumFrames != 960 {
		t.Fatalf("NumFrames: want 960, got %d", track.NumFrames)
	}
}

func TestDecodeUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.xyz")
	os.WriteFile(path, []byte("not audio"), 0o644)

	if _, err := Decode(context.Background(), path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}
