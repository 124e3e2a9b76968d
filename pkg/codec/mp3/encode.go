package mp3

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

const encGlobalGain = 100

type encoder struct {
	par      stream.CodecParameters
	channels int
	overlap  [][]float64
	pending  *packet.Packet
	done     bool
}

func newEncoder(par stream.CodecParameters) (*encoder, error) {
	channels := par.Channels
	if channels == 0 {
		channels = 2
	}
	return &encoder{par: par, channels: channels, overlap: make([][]float64, channels)}, nil
}

func (e *encoder) SendFrame(f frame.Frame) error {
	if f.Kind != frame.KindAudio || f.Audio.NumSamples == 0 {
		e.done = true
		return nil
	}
	if e.pending != nil {
		return mediaerr.NeedMoreData
	}

	samples := unpackInterleavedS16(f.Audio.Planes[0], e.channels, f.Audio.NumSamples)

	mainBW := bitio.NewBitWriter()
	var lengths [granulesPerFr][2]int
	for gr := 0; gr < granulesPerFr; gr++ {
		for ch := 0; ch < e.channels; ch++ {
			before := mainBW.BitLength()
			block := make([]float64, 2*granuleLen)
			if len(e.overlap[ch]) == 0 {
				e.overlap[ch] = make([]float64, granuleLen)
			}
			copy(block[:granuleLen], e.overlap[ch])
			copy(block[granuleLen:], samples[ch][gr*granuleLen:(gr+1)*granuleLen])
			spec := forwardGranuleMDCT(block)
			e.overlap[ch] = append([]float64(nil), samples[ch][gr*granuleLen:(gr+1)*granuleLen]...)
			writeGranule(mainBW, spec)
			lengths[gr][ch] = mainBW.BitLength() - before
		}
	}
	mainBW.AlignByte()
	mainBytes := mainBW.Bytes()

	h := frameHeader{version: 3, layer: 1, protection: 1, mode: modeFor(e.channels)}
	h.sampleRate = e.par.SampleRate
	if h.sampleRate == 0 {
		h.sampleRate = 44100
	}
	totalLen := 4 + sideInfoSizeFor(e.channels) + len(mainBytes)
	h.bitrateIdx = bitrateIndexFor(totalLen * h.sampleRate / 144)

	sideBW := bitio.NewBitWriter()
	writeSideInfo(sideBW, h, lengths)
	sideBW.AlignByte()

	buf := make([]byte, 0, totalLen)
	buf = append(buf, h.encode()...)
	buf = append(buf, sideBW.Bytes()...)
	buf = append(buf, mainBytes...)

	tb, _ := rational.New(1, int32(h.sampleRate))
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

func modeFor(channels int) int {
	if channels == 1 {
		return 3
	}
	return 0
}

func sideInfoSizeFor(channels int) int {
	if channels == 1 {
		return 17
	}
	return 32
}

func writeGranule(bw *bitio.BitWriter, spec []float64) {
	offs := sfbOffsets(numBands)
	prev := encGlobalGain
	for b := 0; b < numBands; b++ {
		sf, q := quantizeBand(spec[offs[b]:offs[b+1]])
		bw.WriteSE(int32(sf - prev))
		prev = sf
		for _, qi := range q {
			bw.WriteSE(qi)
		}
	}
}

func writeSideInfo(bw *bitio.BitWriter, h frameHeader, lengths [granulesPerFr][2]int) {
	bw.WriteBits(0, 9) // main_data_begin: this package never spills into the reservoir
	privBits := 5
	if h.channels() == 1 {
		privBits = 3
	}
	bw.WriteBits(0, privBits)

	for ch := 0; ch < h.channels(); ch++ {
		for band := 0; band < 4; band++ {
			bw.WriteBit(0) // scfsi
		}
	}
	for gr := 0; gr < granulesPerFr; gr++ {
		for ch := 0; ch < h.channels(); ch++ {
			bw.WriteBits(uint32(lengths[gr][ch]), 12)
			bw.WriteBits(0, 9) // big_values: unused by this package's granule coding
			bw.WriteBits(uint32(encGlobalGain), 8)
			bw.WriteBits(0, 4) // scalefac_compress: unused, scale factors are delta-coded instead
			bw.WriteBit(0)     // window_switch_flag: always long blocks
			bw.WriteBits(0, 5) // table_select[0]
			bw.WriteBits(0, 5) // table_select[1]
			bw.WriteBits(0, 5) // table_select[2]
			bw.WriteBits(0, 4) // region0_count
			bw.WriteBits(0, 3) // region1_count
			bw.WriteBit(0)     // preflag
			bw.WriteBit(0)     // scalefac_scale
			bw.WriteBit(0)     // count1table_select
		}
	}
}

func unpackInterleavedS16(data []byte, channels, numSamples int) [][]float64 {
	out := make([][]float64, channels)
	total := samplesPerGr * granulesPerFr
	for ch := range out {
		out[ch] = make([]float64, total)
	}
	for i := 0; i < numSamples && i < total; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			if off+2 > len(data) {
				continue
			}
			v := int16(uint16(data[off]) | uint16(data[off+1])<<8)
			out[ch][i] = float64(v)
		}
	}
	return out
}
