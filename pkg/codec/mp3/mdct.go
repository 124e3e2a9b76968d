package mp3

import "math"

// bandWidth is this package's fixed scale-factor band width, used in
// place of ISO/IEC 11172-3 Annex B's per-sample-rate, non-uniform
// scalefactor band tables (see package doc).
const bandWidth = 24

const numBands = granuleLen / bandWidth

func sfbOffsets(n int) []int {
	out := make([]int, n+1)
	for i := 0; i <= n; i++ {
		out[i] = i * bandWidth
	}
	out[n] = granuleLen
	return out
}

const quantTargetMax = 8191.0

func quantizeBand(values []float64) (sf int, q []int32) {
	maxAbs := 0.0
	for _, v := range values {
		if a := math.Abs(v); a > maxAbs {
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

func granuleWindow(n, length int) float64 {
	return math.Sin(math.Pi / float64(length) * (float64(n) + 0.5))
}

// forwardGranuleMDCT and inverseGranuleMDCT replace the hybrid 32-subband
// polyphase filterbank of ISO/IEC 11172-3 §2.4.3 with a single direct
// O(n^2) MDCT/IMDCT pair sized to one 576-sample granule, the same
// construction pkg/codec/aac uses at the 1024-sample frame scale.
func forwardGranuleMDCT(x []float64) []float64 {
	n := granuleLen
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		var sum float64
		for i := 0; i < 2*n; i++ {
			w := granuleWindow(i, 2*n)
			angle := math.Pi / float64(4*n) * (2*float64(i) + 1 + float64(n)) * (2*float64(k) + 1)
			sum += w * x[i] * math.Cos(angle)
		}
		out[k] = sum
	}
	return out
}

func inverseGranuleMDCT(spec []float64) []float64 {
	n := granuleLen
	out := make([]float64, 2*n)
	for i := 0; i < 2*n; i++ {
		var sum float64
		for k := 0; k < n; k++ {
			angle := math.Pi / float64(4*n) * (2*float64(i) + 1 + float64(n)) * (2*float64(k) + 1)
			sum += spec[k] * math.Cos(angle)
		}
		out[i] = sum * (2.0 / float64(n)) * granuleWindow(i, 2*n)
	}
	return out
}
