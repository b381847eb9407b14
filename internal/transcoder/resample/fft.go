// Package resample implements an FFT resampler with 4x spectral
// oversampling. Each channel is transformed in one piece, padded to a power
// of two; the input is not split into fixed-size chunks. No resampling library (FFT or
// otherwise) appears anywhere in the retrieved example corpus — the
// closest code is gopus's internal CELT/SILK MDCT machinery, which is
// unexported and scoped to the Opus codec itself, not general-purpose
// resampling — so this is a small from-scratch implementation on top of
// math/cmplx, justified in DESIGN.md.
package resample

import "math/cmplx"

// fft computes the forward (inverse=false) or inverse (inverse=true)
// discrete Fourier transform of x in place using an iterative radix-2
// Cooley-Tukey algorithm. len(x) must be a power of two.
func fft(x []complex128, inverse bool) {
	n := len(x)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	sign := -1.0
	if inverse {
		sign = 1.0
	}

	for length := 2; length <= n; length <<= 1 {
		angle := sign * 2 * 3.14159265358979323846 / float64(length)
		wlen := cmplx.Exp(complex(0, angle))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			half := length / 2
			for k := 0; k < half; k++ {
				u := x[start+k]
				v := x[start+k+half] * w
				x[start+k] = u + v
				x[start+k+half] = u - v
				w *= wlen
			}
		}
	}

	if inverse {
		for i := range x {
			x[i] /= complex(float64(n), 0)
		}
	}
}

// nextPow2 returns the smallest power of two >= n (minimum 1).
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
