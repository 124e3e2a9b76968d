package vorbis

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

const defaultBlockSize = 2048

type encoder struct {
	par       stream.CodecParameters
	ident     identHeader
	extraData []byte
	overlap   [][]float64
	pending   *packet.Packet
	done      bool
}

func newEncoder(par stream.CodecParameters) (*encoder, error) {
	channels := par.Channels
	if channels == 0 {
		channels = 2
	}
	sampleRate := par.SampleRate
	if sampleRate == 0 {
		sampleRate = 44100
	}
	ident := identHeader{channels: channels, sampleRate: sampleRate, blockSize0: defaultBlockSize, blockSize1: defaultBlockSize}
	e := &encoder{
		par:     par,
		ident:   ident,
		overlap: make([][]float64, channels),
	}
	for ch := range e.overlap {
		e.overlap[ch] = make([]float64, defaultBlockSize)
	}
	e.extraData = packHeaders(ident.encode(), minimalCommentHeader(), minimalSetupHeader())
	return e, nil
}

// ExtraData returns the three Xiph setup packets an output Stream should
// carry, packed per this package's own ExtraData convention.
func (e *encoder) ExtraData() []byte { return e.extraData }

func (e *encoder) SendFrame(f frame.Frame) error {
	if f.Kind != frame.KindAudio || f.Audio.NumSamples == 0 {
		e.done = true
		return nil
	}
	if e.pending != nil {
		return mediaerr.NeedMoreData
	}

	n := e.ident.blockSize1
	channels := e.ident.channels
	samples := unpackInterleavedS16(f.Audio.Planes[0], channels, f.Audio.NumSamples, n)

	bw := bitio.NewBitWriter()
	bw.WriteBit(packetTypeAudio)
	bands := numBands(n)
	offs := sfbOffsets(n)
	for ch := 0; ch < channels; ch++ {
		block := make([]float64, 2*n)
		copy(block[:n], e.overlap[ch])
		copy(block[n:], samples[ch])
		spec := forwardMDCT(block, n)
		e.overlap[ch] = samples[ch]

		prev := 100
		for b := 0; b < bands; b++ {
			sf, q := quantizeBand(spec[offs[b]:offs[b+1]])
			bw.WriteSE(int32(sf - prev))
			prev = sf
			for _, qi := range q {
				bw.WriteSE(qi)
			}
		}
	}
	bw.AlignByte()

	tb, _ := rational.New(1, int32(e.ident.sampleRate))
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

func unpackInterleavedS16(data []byte, channels, numSamples, blockSize int) [][]float64 {
	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = make([]float64, blockSize)
	}
	for i := 0; i < numSamples && i < blockSize; i++ {
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
