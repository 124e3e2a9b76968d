package flac

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

type encoder struct {
	par       stream.CodecParameters
	si        streamInfo
	frameNum  uint64
	pending   *packet.Packet
	done      bool
	extraData []byte
}

func newEncoder(par stream.CodecParameters) (*encoder, error) {
	if !par.CodecID.IsAudio() && par.CodecID != mediatype.CodecFLAC {
		return nil, mediaerr.NewInvalidArgument("flac: encoder requires audio parameters")
	}
	bps := uint8(16)
	if par.Format == mediatype.SampleFormatS32 {
		bps = 32
	}
	si := streamInfo{
		minBlockSize:  4096,
		maxBlockSize:  4096,
		sampleRate:    uint32(par.SampleRate),
		channels:      uint8(par.Channels),
		bitsPerSample: bps,
	}
	if si.channels == 0 {
		si.channels = 1
	}
	e := &encoder{par: par, si: si}
	e.extraData = si.encode()
	return e, nil
}

// ExtraData returns the STREAMINFO block an output Stream should carry;
// callers building a Stream around this encoder's output read it once
// after construction.
func (e *encoder) ExtraData() []byte { return e.extraData }

func (e *encoder) SendFrame(f frame.Frame) error {
	if f.Kind != frame.KindAudio || f.Audio.NumSamples == 0 {
		e.done = true
		return nil
	}
	if e.pending != nil {
		return mediaerr.NeedMoreData
	}

	channels := int(e.si.channels)
	n := f.Audio.NumSamples
	samples := make([][]int32, channels)
	for ch := range samples {
		samples[ch] = make([]int32, n)
	}
	unpackInterleaved(f.Audio.Planes[0], samples, int(e.si.bitsPerSample))

	buf := encodeFrame(samples, n, e.si, e.frameNum)
	e.frameNum++
	e.si.minFrameSize = minU32(e.si.minFrameSize, uint32(len(buf)))
	e.si.maxFrameSize = maxU32(e.si.maxFrameSize, uint32(len(buf)))
	e.si.totalSamples += uint64(n)
	e.extraData = e.si.encode()

	tb, _ := rational.New(1, int32(e.si.sampleRate))
	p := packet.New(0, buf, tb)
	p.PTS = f.Audio.PTS
	p.IsKeyframe = true
	e.pending = p
	return nil
}

func (e *encoder) ReceivePacket() (*packet.Packet, error) {
	if e.pending == nil {
		if e.done {
			return nil, mediaerr.Eof
		}
		return nil, mediaerr.NeedMoreData
	}
	p := e.pending
	e.pending = nil
	return p, nil
}

func (e *encoder) Close() error { return nil }

func minU32(a, b uint32) uint32 {
	if a == 0 || b < a {
		return b
	}
	return a
}
func maxU32(a, b uint32) uint32 {
	if b > a {
		return b
	}
	return a
}

func unpackInterleaved(data []byte, out [][]int32, bps int) {
	channels := len(out)
	n := len(out[0])
	bytesPer := 2
	if bps > 16 {
		bytesPer = 4
	}
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * bytesPer
			if off+bytesPer > len(data) {
				continue
			}
			switch bytesPer {
			case 2:
				v := int16(uint16(data[off]) | uint16(data[off+1])<<8)
				out[ch][i] = int32(v)
			case 4:
				v := int32(uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24)
				out[ch][i] = v
			}
		}
	}
}

func encodeFrame(samples [][]int32, blockSize int, si streamInfo, frameNum uint64) []byte {
	bw := bitio.NewBitWriter()
	bw.WriteBits(0x3FFE, 14)
	bw.WriteBit(0) // reserved
	bw.WriteBit(0) // fixed blocksize strategy

	blockCode, blockExtraBits, blockExtraVal := blockSizeCodeFor(blockSize)
	bw.WriteBits(uint32(blockCode), 4)
	bw.WriteBits(0, 4) // sample rate code 0 = "get from STREAMINFO"
	bw.WriteBits(uint32(len(samples)-1), 4)
	bw.WriteBits(0, 3) // sample size code 0 = "get from STREAMINFO"
	bw.WriteBit(0)     // reserved

	writeUTF8Coded(bw, frameNum)
	if blockExtraBits > 0 {
		bw.WriteBits(uint32(blockExtraVal), blockExtraBits)
	}

	headerBytes := alignedPrefix(bw)
	crc8 := bitio.CRC8(headerBytes)
	bw.WriteBits(uint32(crc8), 8)

	for _, ch := range samples {
		encodeSubframe(bw, ch, int(si.bitsPerSample))
	}
	bw.AlignByte()

	frameBytes := bw.Bytes()
	crc16 := bitio.CRC16(frameBytes)
	out := make([]byte, len(frameBytes)+2)
	copy(out, frameBytes)
	out[len(frameBytes)] = byte(crc16 >> 8)
	out[len(frameBytes)+1] = byte(crc16)
	return out
}

// alignedPrefix returns the bytes written so far; the header is always
// byte-aligned at this point since every field up to here sums to a
// multiple of 8 bits for fixed-size UTF-8 frame numbers under 2^7 and the
// optional block-size escape bytes, both byte-granular.
func alignedPrefix(bw *bitio.BitWriter) []byte {
	return append([]byte(nil), bw.Bytes()...)
}

func blockSizeCodeFor(n int) (code, extraBits, extraVal int) {
	for c, v := range blockSizeTable {
		if v == n {
			return c, 0, 0
		}
	}
	if n-1 < 256 {
		return 6, 8, n - 1
	}
	return 7, 16, n - 1
}

func writeUTF8Coded(bw *bitio.BitWriter, v uint64) {
	switch {
	case v < 0x80:
		bw.WriteBits(uint32(v), 8)
	case v < 0x800:
		bw.WriteBits(0xC0|uint32(v>>6), 8)
		bw.WriteBits(0x80|uint32(v&0x3F), 8)
	case v < 0x10000:
		bw.WriteBits(0xE0|uint32(v>>12), 8)
		bw.WriteBits(0x80|uint32((v>>6)&0x3F), 8)
		bw.WriteBits(0x80|uint32(v&0x3F), 8)
	default:
		bw.WriteBits(0xF0|uint32(v>>18), 8)
		bw.WriteBits(0x80|uint32((v>>12)&0x3F), 8)
		bw.WriteBits(0x80|uint32((v>>6)&0x3F), 8)
		bw.WriteBits(0x80|uint32(v&0x3F), 8)
	}
}

// encodeSubframe picks the cheapest of constant/verbatim/fixed(0..4) by
// estimated Rice-coded residual bit cost, per spec.md §4.3.
func encodeSubframe(bw *bitio.BitWriter, samples []int32, bps int) {
	bw.WriteBit(0) // padding

	if allEqual(samples) {
		bw.WriteBits(0, 6) // constant
		bw.WriteBit(0)     // no wasted bits
		writeSigned(bw, samples[0], bps)
		return
	}

	bestOrder := 0
	bestCost := residualCost(samples, 0)
	for order := 1; order <= 4 && order < len(samples); order++ {
		c := residualCost(fixedResidual(samples, order), 0) + order*bps
		if c < bestCost {
			bestCost, bestOrder = c, order
		}
	}
	if len(samples)*bps < bestCost {
		bw.WriteBits(1, 6) // verbatim
		bw.WriteBit(0)     // no wasted bits
		for _, v := range samples {
			writeSigned(bw, v, bps)
		}
		return
	}

	bw.WriteBits(uint32(8+bestOrder), 6) // fixed predictor, order bestOrder
	bw.WriteBit(0)                       // no wasted bits

	for i := 0; i < bestOrder; i++ {
		writeSigned(bw, samples[i], bps)
	}
	residual := fixedResidual(samples, bestOrder)
	encodeResidual(bw, residual)
}

func writeSigned(bw *bitio.BitWriter, v int32, bits int) {
	bw.WriteBits(uint32(v)&((1<<uint(bits))-1), bits)
}

func allEqual(s []int32) bool {
	for _, v := range s {
		if v != s[0] {
			return false
		}
	}
	return true
}

func fixedResidual(samples []int32, order int) []int32 {
	coeffs := fixedCoeffs[order]
	out := make([]int32, len(samples)-order)
	for i := order; i < len(samples); i++ {
		var pred int64
		for j, c := range coeffs {
			pred += int64(c) * int64(samples[i-1-j])
		}
		out[i-order] = samples[i] - int32(pred)
	}
	return out
}

// residualCost estimates the Rice-coded bit cost of residual at the best
// single partition parameter, used only to rank candidate predictor
// orders against each other.
func residualCost(residual []int32, _ int) int {
	param := bestRiceParam(residual)
	total := 0
	for _, v := range residual {
		u := zigzag(v)
		total += int(u>>uint(param)) + 1 + param
	}
	return total
}

func zigzag(v int32) uint32 {
	if v < 0 {
		return uint32(-v)*2 - 1
	}
	return uint32(v) * 2
}

func bestRiceParam(residual []int32) int {
	var sum uint64
	for _, v := range residual {
		sum += uint64(zigzag(v))
	}
	if len(residual) == 0 || sum == 0 {
		return 0
	}
	mean := sum / uint64(len(residual))
	k := 0
	for (uint64(1)<<uint(k)) < mean && k < 30 {
		k++
	}
	return k
}

func encodeResidual(bw *bitio.BitWriter, residual []int32) {
	bw.WriteBits(0, 2) // coding method 0: 4-bit rice parameter
	bw.WriteBits(0, 4) // partition order 0: single partition
	param := bestRiceParam(residual)
	if param > 14 {
		param = 14
	}
	bw.WriteBits(uint32(param), 4)
	for _, v := range residual {
		u := zigzag(v)
		q := u >> uint(param)
		for i := uint32(0); i < q; i++ {
			bw.WriteBit(1)
		}
		bw.WriteBit(0)
		bw.WriteBits(u&((1<<uint(param))-1), param)
	}
}
