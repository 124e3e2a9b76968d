package mpeg4

import "math"

// blockDim is the residual transform block size: MPEG-4 Part 2's real
// 8x8 DCT (ISO/IEC 14496-2 §7.4), applied separably exactly as
// pkg/codec/h264's 4x4 transform is, just at twice the side length.
const blockDim = 8

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

// quantizeBlock and dequantizeBlock are pkg/codec/h264's block
// quantizer, parameterized the same way: a peak-magnitude-derived
// scale factor plus 4/3-power-law coefficients, with quant (MPEG-4's
// VOP-level or per-MB dquant-adjusted quantizer, 1-31) widening the
// target range in place of the real quant_type 0/1 step tables.
func quantizeBlock(coeffs []float64, quant int) (sf int, q []int32) {
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
	if quant < 1 {
		quant = 1
	}
	target := quantTargetMax / float64(quant)
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
