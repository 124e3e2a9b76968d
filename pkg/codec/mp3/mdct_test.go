package mp3

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/dsp/fourier"
)

// TestInverseGranuleMDCTSpectralPeak cross-checks inverseGranuleMDCT
// against an independent FFT (gonum's, not this package's own MDCT math):
// a single nonzero coefficient should synthesize a tone whose energy
// peaks at roughly that coefficient's frequency, not somewhere else
// entirely.
func TestInverseGranuleMDCTSpectralPeak(t *testing.T) {
	t.Parallel()
	const k0 = 40
	spec := make([]float64, granuleLen)
	spec[k0] = 1000

	samples := inverseGranuleMDCT(spec)

	fft := fourier.NewFFT(len(samples))
	coeffs := fft.Coefficients(nil, samples)

	peakBin, peakMag, meanMag := 0, 0.0, 0.0
	for i, c := range coeffs {
		mag := math.Hypot(real(c), imag(c))
		meanMag += mag
		if mag > peakMag {
			peakBin, peakMag = i, mag
		}
	}
	meanMag /= float64(len(coeffs))

	if diff := peakBin - k0; diff < -2 || diff > 2 {
		t.Errorf("FFT spectral peak at bin %d, want within 2 bins of MDCT coefficient %d", peakBin, k0)
	}
	if peakMag < meanMag*4 {
		t.Errorf("peak magnitude %.1f not clearly distinguishable from mean %.1f", peakMag, meanMag)
	}
}
