package resample

import (
	"math"
	"testing"
)

func TestChannelOutputLength(t *testing.T) {
	input := make([]float32, 4410) // 0.1s @ 44100
	for i := range input {
		input[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 44100))
	}

	out := Channel(input, 44100, 48000, 4800)
	if len(out) != 4800 {
		t.Fatalf("output length: want 4800, got %d", len(out))
	}
}

func TestChannelPreservesAmplitude(t *testing.T) {
	const n = 2048
	input := make([]float32, n)
	for i := range input {
		input[i] = float32(math.Sin(2 * math.Pi * 100 * float64(i) / 44100))
	}

	out := Channel(input, 44100, 48000, n*48000/44100)

	var maxAbs float32
	for _, s := range out {
		if a := float32(math.Abs(float64(s))); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs < 0.5 || maxAbs > 1.5 {
		t.Fatalf("resampled amplitude out of expected range: max abs %f", maxAbs)
	}
}

func TestFramesPerChannel(t *testing.T) {
	left := make([]float32, 1000)
	right := make([]float32, 1000)
	out := Frames([][]float32{left, right}, 44100, 48000, 1089)
	if len(out) != 2 {
		t.Fatalf("channel count: want 2, got %d", len(out))
	}
	for i, ch := range out {
		if len(ch) != 1089 {
			t.Fatalf("channel %d length: want 1089, got %d", i, len(ch))
		}
	}
}
