package aac

import "math"

// bandWidth is the fixed scale-factor band width this core uses in place
// of the real per-sample-rate, non-uniform SFB tables of ISO/IEC 14496-3
// Table 4.128 and friends. frameLength/bandWidth must divide evenly.
const bandWidth = 32

const numBands = frameLength / bandWidth

// sfbOffsets returns the n+1 band boundaries for n uniform
// bands of bandWidth coefficients each.
func sfbOffsets(n int) []int {
	out := make([]int, n+1)
	for i := 0; i <= n; i++ {
		out[i] = i * bandWidth
	}
	out[n] = frameLength
	return out
}

const quantTargetMax = 8191.0

// quantizeBand picks a scale factor for values (ISO/IEC 14496-3 §4.6.2's
// global_gain/scalefactor convention, baseline 100) and quantizes each
// coefficient against it.
func quantizeBand(values []float64) (sf int, q []int32) {
	maxAbs := 0.0
	for _, v := range values {
		a := math.Abs(v)
		if a > maxAbs {
			maxAbs = a
		}
	}
	q = make([]int32, len(values))
	if maxAbs < 1e-9 {
		return 100, q
	}
	sf = 100 + int(math.Round(4*math.Log2(maxAbs/math.Pow(quantTargetMax, 4.0/3.0))))
	scale := math.Pow(2, float64(sf-100)/4.0)
	for i, v := range values {
		mag := math.Abs(v) / scale
		qi := math.Round(math.Pow(mag, 3.0/4.0))
		if v < 0 {
			qi = -qi
		}
		q[i] = int32(qi)
	}
	return sf, q
}

func dequantizeBand(sf int, q []int32) []float64 {
	scale := math.Pow(2, float64(sf-100)/4.0)
	out := make([]float64, len(q))
	for i, qi := range q {
		mag := math.Pow(math.Abs(float64(qi)), 4.0/3.0) * scale
		if qi < 0 {
			mag = -mag
		}
		out[i] = mag
	}
	return out
}

// mdctWindow is the sine window of ISO/IEC 14496-3 §4.6.4, the only window
// shape this core generates (window_shape is always written as 0).
func mdctWindow(n, length int) float64 {
	return math.Sin(math.Pi / float64(length) * (float64(n) + 0.5))
}

// forwardMDCT transforms a 2*frameLength windowed block into frameLength
// spectral coefficients (ISO/IEC 14496-3 §4.6.3, direct O(n^2) evaluation
// rather than a fast MDCT).
func forwardMDCT(x []float64) []float64 {
	n := frameLength
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		var sum float64
		for i := 0; i < 2*n; i++ {
			w := mdctWindow(i, 2*n)
			angle := math.Pi / float64(4*n) * (2*float64(i) + 1 + float64(n)) * (2*float64(k) + 1)
			sum += w * x[i] * math.Cos(angle)
		}
		out[k] = sum
	}
	return out
}

// inverseMDCT transforms frameLength spectral coefficients into a
// 2*frameLength windowed time-domain block, ready for overlap-add with
// the adjacent frame's halves.
func inverseMDCT(spec []float64) []float64 {
	n := frameLength
	out := make([]float64, 2*n)
	for i := 0; i < 2*n; i++ {
		var sum float64
		for k := 0; k < n; k++ {
			angle := math.Pi / float64(4*n) * (2*float64(i) + 1 + float64(n)) * (2*float64(k) + 1)
			sum += spec[k] * math.Cos(angle)
		}
		out[i] = sum * (2.0 / float64(n)) * mdctWindow(i, 2*n)
	}
	return out
}
