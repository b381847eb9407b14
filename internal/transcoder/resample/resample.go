package resample

// Oversample is the fixed spectral oversampling factor spec.md §4.2 step 4
// requires ("a fixed-chunk FFT resampler with 4x oversampling").
const Oversample = 4

// Channel resamples one channel's samples from srcRate to dstRate using a
// single-shot FFT-based bandlimited interpolation: the input is
// zero-padded to a power-of-two chunk, transformed to the frequency
// domain, the spectrum is zero-stuffed by Oversample (a standard technique
// for bandlimited upsampling), transformed back, and the resulting
// high-rate signal is linearly interpolated down to the exact dstRate/srcRate
// ratio. outLen controls the exact number of output frames produced
// (spec.md's "truncated to ⌊N·48000/r⌋ + L frames" is computed by the
// caller and passed in here).
func Channel(input []float32, srcRate, dstRate, outLen int) []float32 {
	n := len(input)
	if n == 0 || outLen <= 0 {
		return make([]float32, outLen)
	}

	fftSize := nextPow2(n)
	freqDomain := make([]complex128, fftSize)
	for i, s := range input {
		freqDomain[i] = complex(float64(s), 0)
	}
	fft(freqDomain, false)

	// Zero-stuff the spectrum: keep the lower half of bins (positive
	// frequencies up to Nyquist) at the start of a longer array and the
	// upper half (negative frequencies) at the end, leaving the middle
	// zeroed. This is the frequency-domain equivalent of inserting zero
	// samples between each input sample in the time domain, which is how
	// FFT-based oversampling upsamples a signal.
	upLen := fftSize * Oversample
	upFreq := make([]complex128, upLen)
	half := fftSize / 2
	copy(upFreq[:half], freqDomain[:half])
	copy(upFreq[upLen-half:], freqDomain[half:])

	fft(upFreq, true)

	// The inverse FFT above already normalizes by 1/upLen; since we
	// started from an n-point sequence we must rescale by Oversample to
	// preserve amplitude (upLen = fftSize*Oversample, but the "energy" of
	// the original fftSize-point sequence should be preserved across the
	// resample, not diluted by the zero-padding ratio).
	scale := float64(Oversample)
	upsampled := make([]float64, upLen)
	for i, c := range upFreq {
		upsampled[i] = real(c) * scale
	}

	// upsampled represents the signal at rate srcRate*Oversample. Linearly
	// interpolate it down to dstRate, producing exactly outLen frames.
	srcHighRate := float64(srcRate) * Oversample
	step := srcHighRate / float64(dstRate)

	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		if idx >= upLen-1 {
			if upLen > 0 {
				out[i] = float32(upsampled[upLen-1])
			}
			continue
		}
		a := upsampled[idx]
		b := upsampled[idx+1]
		out[i] = float32(a + (b-a)*frac)
	}

	return out
}

// Frames resamples an interleaved-by-channel planar buffer (one []float32
// per channel, as produced by decode.Track) from srcRate to dstRate,
// producing exactly outLen frames per channel.
func Frames(channels [][]float32, srcRate, dstRate, outLen int) [][]float32 {
	out := make([][]float32, len(channels))
	for i, ch := range channels {
		out[i] = Channel(ch, srcRate, dstRate, outLen)
	}
	return out
}
