package estimate

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeTestWAV(t *testing.T, path string, sampleRate, channels, numFrames int) {
	t.Helper()

	dataSize := numFrames * channels * 2
	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*2))
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

func TestSizeFormula(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.wav")
	// Exactly 1 second @ 44100Hz stereo.
	writeTestWAV(t, path, 44100, 2, 44100)

	got, err := Size(context.Background(), path)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}

	want := uint64((1.0*128000/8 + 150000) * 1.01)
	if got != want {
		t.Fatalf("Size: want %d, got %d", want, got)
	}
}
