package flac

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/stream"
)

type decoder struct {
	par     stream.CodecParameters
	si      streamInfo
	pending *packet.Packet
	eof     bool
}

func newDecoder(par stream.CodecParameters) (*decoder, error) {
	si, err := parseStreamInfo(par.ExtraData)
	if err != nil {
		return nil, err
	}
	return &decoder{par: par, si: si}, nil
}

func (d *decoder) SendPacket(p *packet.Packet) error {
	if p == nil {
		d.eof = true
		return nil
	}
	if d.pending != nil {
		return mediaerr.NeedMoreData
	}
	d.pending = p
	return nil
}

func (d *decoder) ReceiveFrame() (frame.Frame, error) {
	if d.pending == nil {
		if d.eof {
			return frame.Frame{}, mediaerr.Eof
		}
		return frame.Frame{}, mediaerr.NeedMoreData
	}
	p := d.pending
	d.pending = nil

	samples, nb, err := decodeFrame(p.Bytes(), d.si)
	if err != nil {
		return frame.Frame{}, err
	}

	format := sampleFormatFor(d.si.bitsPerSample)
	planes := packPlanes(samples, format, int(d.si.bitsPerSample))

	af := frame.AudioFrame{
		Format:     format,
		Layout:     layoutFor(d.si.channels),
		SampleRate: int(d.si.sampleRate),
		Planes:     planes,
		NumSamples: nb,
		PTS:        p.PTS,
		TimeBase:   p.TimeBase,
	}
	return frame.NewAudio(af), nil
}

func (d *decoder) Close() error { return nil }

// decodeFrame decodes one FLAC frame into per-channel int32 sample
// slices, returning the block size.
func decodeFrame(data []byte, si streamInfo) ([][]int32, int, error) {
	br := bitio.NewBitReader(data)

	sync, err := br.ReadBits(14)
	if err != nil || sync != 0x3FFE {
		return nil, 0, mediaerr.NewInvalidData("flac: bad frame sync")
	}
	if _, err := br.ReadBits(1); err != nil { // reserved
		return nil, 0, err
	}
	if _, err := br.ReadBits(1); err != nil { // blocking strategy
		return nil, 0, err
	}
	blockSizeCode, err := br.ReadBits(4)
	if err != nil {
		return nil, 0, err
	}
	sampleRateCode, err := br.ReadBits(4)
	if err != nil {
		return nil, 0, err
	}
	chanAssignCode, err := br.ReadBits(4)
	if err != nil {
		return nil, 0, err
	}
	sampleSizeCode, err := br.ReadBits(3)
	if err != nil {
		return nil, 0, err
	}
	if _, err := br.ReadBits(1); err != nil { // reserved
		return nil, 0, err
	}

	if _, err := readUTF8Coded(br); err != nil { // frame/sample number
		return nil, 0, err
	}

	blockSize, err := resolveBlockSize(br, int(blockSizeCode))
	if err != nil {
		return nil, 0, err
	}
	if sampleRateCode >= 12 {
		if _, err := br.ReadBits(sampleRateBits(int(sampleRateCode))); err != nil {
			return nil, 0, err
		}
	}
	if _, err := br.ReadBits(8); err != nil { // CRC-8, not re-verified here
		return nil, 0, err
	}

	bps := int(si.bitsPerSample)
	if sampleSizeTable[sampleSizeCode] != 0 {
		bps = sampleSizeTable[sampleSizeCode]
	}

	numChannels := int(si.channels)
	stereoMode := 0 // 0=independent, 1=left/side, 2=right/side, 3=mid/side
	if chanAssignCode >= 8 && chanAssignCode <= 10 {
		numChannels = 2
		stereoMode = int(chanAssignCode) - 7
	} else if chanAssignCode < 8 {
		numChannels = int(chanAssignCode) + 1
	}

	samples := make([][]int32, numChannels)
	subBps := make([]int, numChannels)
	sideCh := 1
	if stereoMode == 2 {
		sideCh = 0 // right/side codes the side channel first
	}
	for ch := 0; ch < numChannels; ch++ {
		b := bps
		if stereoMode != 0 && ch == sideCh {
			b++ // side channel carries one extra bit
		}
		subBps[ch] = b
		s, err := decodeSubframe(br, blockSize, b)
		if err != nil {
			return nil, 0, err
		}
		samples[ch] = s
	}

	switch stereoMode {
	case 1: // left/side
		for i := 0; i < blockSize; i++ {
			samples[1][i] = samples[0][i] - samples[1][i]
		}
	case 2: // right/side: samples[0]=side, samples[1]=right
		for i := 0; i < blockSize; i++ {
			side := samples[0][i]
			right := samples[1][i]
			samples[0][i] = side + right // left
		}
	case 3: // mid/side
		for i := 0; i < blockSize; i++ {
			mid := samples[0][i]
			side := samples[1][i]
			mid = mid*2 + (side & 1)
			left := (mid + side) >> 1
			right := (mid - side) >> 1
			samples[0][i] = left
			samples[1][i] = right
		}
	}

	return samples, blockSize, nil
}

func resolveBlockSize(br *bitio.BitReader, code int) (int, error) {
	switch {
	case code == 6:
		v, err := br.ReadBits(8)
		return int(v) + 1, err
	case code == 7:
		v, err := br.ReadBits(16)
		return int(v) + 1, err
	default:
		if blockSizeTable[code] == 0 {
			return 0, mediaerr.NewInvalidData("flac: reserved block size code %d", code)
		}
		return blockSizeTable[code], nil
	}
}

func sampleRateBits(code int) int {
	switch code {
	case 12:
		return 8
	case 13, 14:
		return 16
	default:
		return 0
	}
}

// readUTF8Coded reads FLAC's UTF-8-like variable-length frame/sample
// number coding (spec.md §4.2.4).
func readUTF8Coded(br *bitio.BitReader) (uint64, error) {
	first, err := br.ReadBits(8)
	if err != nil {
		return 0, err
	}
	if first&0x80 == 0 {
		return uint64(first), nil
	}
	var extra int
	var v uint64
	switch {
	case first&0xE0 == 0xC0:
		extra, v = 1, uint64(first&0x1F)
	case first&0xF0 == 0xE0:
		extra, v = 2, uint64(first&0x0F)
	case first&0xF8 == 0xF0:
		extra, v = 3, uint64(first&0x07)
	case first&0xFC == 0xF8:
		extra, v = 4, uint64(first&0x03)
	case first&0xFE == 0xFC:
		extra, v = 5, uint64(first&0x01)
	case first == 0xFE:
		extra, v = 6, 0
	default:
		return 0, mediaerr.NewInvalidData("flac: bad UTF-8 coded number lead byte")
	}
	for i := 0; i < extra; i++ {
		b, err := br.ReadBits(8)
		if err != nil {
			return 0, err
		}
		v = v<<6 | uint64(b&0x3F)
	}
	return v, nil
}

func decodeSubframe(br *bitio.BitReader, blockSize, bps int) ([]int32, error) {
	if _, err := br.ReadBits(1); err != nil { // padding bit
		return nil, err
	}
	typ, err := br.ReadBits(6)
	if err != nil {
		return nil, err
	}
	wasted := 0
	hasWasted, err := br.ReadFlag()
	if err != nil {
		return nil, err
	}
	if hasWasted {
		u, err := br.ReadUnary()
		if err != nil {
			return nil, err
		}
		wasted = u + 1
	}
	effBps := bps - wasted

	out := make([]int32, blockSize)
	switch {
	case typ == 0: // constant
		v, err := readSigned(br, effBps)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] = v
		}
	case typ == 1: // verbatim
		for i := range out {
			v, err := readSigned(br, effBps)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
	case typ >= 8 && typ <= 12: // fixed predictor, order 0..4
		order := int(typ - 8)
		if err := decodeFixed(br, out, order, effBps); err != nil {
			return nil, err
		}
	case typ >= 32: // LPC, order = (typ-31)
		order := int(typ - 31)
		if err := decodeLPC(br, out, order, effBps); err != nil {
			return nil, err
		}
	default:
		return nil, mediaerr.NewUnsupported("flac: reserved subframe type %d", typ)
	}

	if wasted > 0 {
		for i := range out {
			out[i] <<= uint(wasted)
		}
	}
	return out, nil
}

func readSigned(br *bitio.BitReader, bits int) (int32, error) {
	v, err := br.ReadBits(bits)
	if err != nil {
		return 0, err
	}
	return signExtend(v, bits), nil
}

func signExtend(v uint32, bits int) int32 {
	shift := 32 - bits
	return int32(v<<uint(shift)) >> uint(shift)
}

var fixedCoeffs = [5][]int32{
	{},
	{1},
	{2, -1},
	{3, -3, 1},
	{4, -6, 4, -1},
}

func decodeFixed(br *bitio.BitReader, out []int32, order, bps int) error {
	for i := 0; i < order; i++ {
		v, err := readSigned(br, bps)
		if err != nil {
			return err
		}
		out[i] = v
	}
	residual := make([]int32, len(out)-order)
	if err := decodeResidual(br, residual, len(out), order); err != nil {
		return err
	}
	coeffs := fixedCoeffs[order]
	for i := order; i < len(out); i++ {
		var pred int64
		for j, c := range coeffs {
			pred += int64(c) * int64(out[i-1-j])
		}
		out[i] = int32(pred) + residual[i-order]
	}
	return nil
}

func decodeLPC(br *bitio.BitReader, out []int32, order, bps int) error {
	for i := 0; i < order; i++ {
		v, err := readSigned(br, bps)
		if err != nil {
			return err
		}
		out[i] = v
	}
	precision, err := br.ReadBits(4)
	if err != nil {
		return err
	}
	precision++
	shiftU, err := br.ReadBits(5)
	if err != nil {
		return err
	}
	shift := signExtend(shiftU, 5)

	coeffs := make([]int32, order)
	for i := 0; i < order; i++ {
		v, err := readSigned(br, int(precision))
		if err != nil {
			return err
		}
		coeffs[i] = v
	}

	residual := make([]int32, len(out)-order)
	if err := decodeResidual(br, residual, len(out), order); err != nil {
		return err
	}
	for i := order; i < len(out); i++ {
		var pred int64
		for j, c := range coeffs {
			pred += int64(c) * int64(out[i-1-j])
		}
		out[i] = int32(pred>>uint(shift)) + residual[i-order]
	}
	return nil
}

const riceEscapeParam4 = 0x0F
const riceEscapeParam5 = 0x1F

func decodeResidual(br *bitio.BitReader, residual []int32, blockSize, predOrder int) error {
	method, err := br.ReadBits(2)
	if err != nil {
		return err
	}
	partOrder, err := br.ReadBits(4)
	if err != nil {
		return err
	}
	partitions := 1 << partOrder
	if partitions == 0 || blockSize%partitions != 0 {
		return mediaerr.NewInvalidData("flac: residual partition order %d invalid for block size %d", partOrder, blockSize)
	}
	paramBits := 4
	escape := riceEscapeParam4
	if method == 1 {
		paramBits = 5
		escape = riceEscapeParam5
	}

	idx := 0
	partLen := blockSize / partitions
	for p := 0; p < partitions; p++ {
		n := partLen
		if p == 0 {
			n -= predOrder
		}
		param, err := br.ReadBits(paramBits)
		if err != nil {
			return err
		}
		if int(param) == escape {
			rawBits, err := br.ReadBits(5)
			if err != nil {
				return err
			}
			for i := 0; i < n; i++ {
				v, err := readSigned(br, int(rawBits))
				if err != nil {
					return err
				}
				residual[idx] = v
				idx++
			}
			continue
		}
		for i := 0; i < n; i++ {
			v, err := readRice(br, int(param))
			if err != nil {
				return err
			}
			residual[idx] = v
			idx++
		}
	}
	return nil
}

func readRice(br *bitio.BitReader, param int) (int32, error) {
	q, err := br.ReadUnary()
	if err != nil {
		return 0, err
	}
	r, err := br.ReadBits(param)
	if err != nil {
		return 0, err
	}
	uval := uint32(q)<<uint(param) | r
	if uval&1 != 0 {
		return -int32(uval>>1) - 1, nil
	}
	return int32(uval >> 1), nil
}

// packPlanes converts decoded per-channel int32 samples into the output
// sample format's packed byte planes (one interleaved plane, matching the
// PCM decoder's convention).
func packPlanes(samples [][]int32, format mediatype.SampleFormat, bps int) [][]byte {
	channels := len(samples)
	if channels == 0 {
		return nil
	}
	n := len(samples[0])
	bytesPer := format.BytesPerSample()
	out := make([]byte, n*channels*bytesPer)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			v := samples[ch][i]
			off := (i*channels + ch) * bytesPer
			switch bytesPer {
			case 2:
				out[off] = byte(v)
				out[off+1] = byte(v >> 8)
			case 4:
				out[off] = byte(v)
				out[off+1] = byte(v >> 8)
				out[off+2] = byte(v >> 16)
				out[off+3] = byte(v >> 24)
			}
		}
	}
	return [][]byte{out}
}
