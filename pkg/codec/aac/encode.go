package aac

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

type encoder struct {
	par       stream.CodecParameters
	channels  int
	asc       audioSpecificConfig
	extraData []byte
	prevBlock [][]float64 // per-channel previous frameLength samples, for the 2*frameLength MDCT window
	pending   *packet.Packet
	done      bool
}

func newEncoder(par stream.CodecParameters) (*encoder, error) {
	channels := par.Channels
	if channels == 0 {
		channels = 2
	}
	asc := audioSpecificConfig{
		objectType:    2, // AAC LC
		sampleRateIdx: sampleRateIndexFor(par.SampleRate),
		sampleRate:    par.SampleRate,
		channels:      channels,
	}
	e := &encoder{
		par:       par,
		channels:  channels,
		asc:       asc,
		prevBlock: make([][]float64, channels),
	}
	for ch := range e.prevBlock {
		e.prevBlock[ch] = make([]float64, frameLength)
	}
	e.extraData = asc.encode()
	return e, nil
}

// ExtraData returns the AudioSpecificConfig an output Stream should carry.
func (e *encoder) ExtraData() []byte { return e.extraData }

func (e *encoder) SendFrame(f frame.Frame) error {
	if f.Kind != frame.KindAudio || f.Audio.NumSamples == 0 {
		e.done = true
		return nil
	}
	if e.pending != nil {
		return mediaerr.NeedMoreData
	}

	samples := unpackInterleavedS16(f.Audio.Planes[0], e.channels, f.Audio.NumSamples)

	bw := bitio.NewBitWriter()
	for ch := 0; ch < e.channels; ch++ {
		block := make([]float64, 2*frameLength)
		copy(block[:frameLength], e.prevBlock[ch])
		copy(block[frameLength:], samples[ch])
		spec := forwardMDCT(block)
		e.prevBlock[ch] = samples[ch]

		bw.WriteBits(uint32(elemSCE), 3)
		bw.WriteBits(uint32(ch), 4) // element_instance_tag
		writeChannelStream(bw, spec)
	}
	bw.WriteBits(uint32(elemFIL), 3)
	bw.WriteBits(0, 4) // count = 0
	bw.WriteBits(uint32(elemEND), 3)
	bw.AlignByte()

	tb, _ := rational.New(1, int32(e.asc.sampleRate))
	p := packet.New(0, bw.Bytes(), tb)
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

// writeChannelStream writes one individual_channel_stream for a
// single-long-window, uniform-band spectrum, the dual of
// decodeChannelStream.
func writeChannelStream(bw *bitio.BitWriter, spec []float64) {
	offs := sfbOffsets(numBands)
	sfs := make([]int, numBands)
	qs := make([][]int32, numBands)
	for b := 0; b < numBands; b++ {
		sf, q := quantizeBand(spec[offs[b]:offs[b+1]])
		sfs[b] = sf
		qs[b] = q
	}

	globalGain := sfs[0]
	bw.WriteBits(uint32(globalGain), 8)
	writeICSInfo(bw, windowOnlyLong, false, numBands)

	prev := globalGain
	for b := 0; b < numBands; b++ {
		bw.WriteSE(int32(sfs[b] - prev))
		prev = sfs[b]
		for _, qi := range qs[b] {
			bw.WriteSE(qi)
		}
	}
}

func writeICSInfo(bw *bitio.BitWriter, windowSeq int, windowShape bool, maxSfb int) {
	bw.WriteBit(0) // ics_reserved_bit
	bw.WriteBits(uint32(windowSeq), 2)
	if windowShape {
		bw.WriteBit(1)
	} else {
		bw.WriteBit(0)
	}
	bw.WriteBits(uint32(maxSfb), 6)
	bw.WriteBit(0) // predictor_data_present
}

func unpackInterleavedS16(data []byte, channels, numSamples int) [][]float64 {
	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = make([]float64, frameLength)
	}
	for i := 0; i < numSamples && i < frameLength; i++ {
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
