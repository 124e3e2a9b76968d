package h264

import "math"

// blockDim is the residual transform block size this package uses for
// both luma and chroma (ITU-T H.264's real 4x4 core transform; the 8x8
// transform mode of High Profile is not implemented).
const blockDim = 4

// dct1D and idct1D are the 1-D DCT-II/III that forwardBlock and
// inverseBlock apply separably to 4x4 blocks in place of H.264's integer
// core transform (§8.5.10's Cf/Ci matrices), quantized with the same
// scale-factor/Exp-Golomb scheme
// pkg/codec/aac's quantizeBand/dequantizeBand use, rather than the real
// per-QP multiplication-factor dequantization tables (§8.5.12.2).
func dct1D(x [blockDim]float64) [blockDim]float64 {
	var out [blockDim]float64
	for k := 0; k < blockDim; k++ {
		var sum float64
		for n := 0; n < blockDim; n++ {
			sum += x[n] * math.Cos(math.Pi/float64(blockDim)*(float64(n)+0.5)*float64(k))
		}
		out[k] = sum
	}
	return out
}

func idct1D(x [blockDim]float64) [blockDim]float64 {
	var out [blockDim]float64
	for n := 0; n < blockDim; n++ {
		sum := x[0] / 2
		for k := 1; k < blockDim; k++ {
			sum += x[k] * math.Cos(math.Pi/float64(blockDim)*(float64(n)+0.5)*float64(k))
		}
		out[n] = sum
	}
	return out
}

// forwardBlock runs the separable 2D transform over a blockDim x
// blockDim block stored row-major.
func forwardBlock(block []float64) []float64 {
	var rows [blockDim][blockDim]float64
	for r := 0; r < blockDim; r++ {
		var row [blockDim]float64
		copy(row[:], block[r*blockDim:(r+1)*blockDim])
		rows[r] = dct1D(row)
	}
	out := make([]float64, blockDim*blockDim)
	for c := 0; c < blockDim; c++ {
		var col [blockDim]float64
		for r := 0; r < blockDim; r++ {
			col[r] = rows[r][c]
		}
		col = dct1D(col)
		for r := 0; r < blockDim; r++ {
			out[r*blockDim+c] = col[r]
		}
	}
	return out
}

func inverseBlock(coeffs []float64) []float64 {
	var cols [blockDim][blockDim]float64
	for c := 0; c < blockDim; c++ {
		var col [blockDim]float64
		for r := 0; r < blockDim; r++ {
			col[r] = coeffs[r*blockDim+c]
		}
		cols[c] = idct1D(col)
	}
	out := make([]float64, blockDim*blockDim)
	for r := 0; r < blockDim; r++ {
		var row [blockDim]float64
		for c := 0; c < blockDim; c++ {
			row[c] = cols[c][r]
		}
		row = idct1D(row)
		copy(out[r*blockDim:(r+1)*blockDim], row[:])
	}
	return out
}

const quantTargetMax = 2047.0

// quantizeBlock and dequantizeBlock mirror pkg/codec/aac's band
// quantizer: a single scale factor per 16-coefficient block (derived
// from the block's peak magnitude, the same as a perceptual band) plus
// 4/3-power-law quantized coefficients. qp widens or narrows the target
// range the way H.264's QP doubles its quantization step every 6 steps
// (§8.5.9), standing in for the real per-QP multiplication-factor
// tables.
func quantizeBlock(coeffs []float64, qp int) (sf int, q []int32) {
	maxAbs := 0.0
	for _, v := range coeffs {
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}
	q = make([]int32, len(coeffs))
	if maxAbs < 1e-9 {
		return 100, q
	}
	target := quantTargetMax * math.Pow(2, -float64(qp-26)/6.0)
	sf = 100 + int(math.Round(4*math.Log2(maxAbs/math.Pow(target, 4.0/3.0))))
	scale := math.Pow(2, float64(sf-100)/4.0)
	for i, v := range coeffs {
		mag := math.Abs(v) / scale
		qi := math.Round(math.Pow(mag, 3.0/4.0))
		if v < 0 {
			qi = -qi
		}
		q[i] = int32(qi)
	}
	return sf, q
}

func dequantizeBlock(sf int, q []int32) []float64 {
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

func clampSample(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
