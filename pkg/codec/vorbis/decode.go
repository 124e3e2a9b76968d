package vorbis

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
	ident   identHeader
	overlap [][]float64 // per-channel IMDCT overlap, blockSize1-wide
	pending *packet.Packet
	eof     bool
}

func newDecoder(par stream.CodecParameters) (*decoder, error) {
	identB, _, _, err := unpackHeaders(par.ExtraData)
	if err != nil {
		return nil, err
	}
	ident, err := parseIdentHeader(identB)
	if err != nil {
		return nil, err
	}
	d := &decoder{par: par, ident: ident, overlap: make([][]float64, ident.channels)}
	for ch := range d.overlap {
		d.overlap[ch] = make([]float64, ident.blockSize1)
	}
	return d, nil
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

	pcm, err := d.decodeAudioPacket(p.Bytes())
	if err != nil {
		return frame.Frame{}, err
	}

	af := frame.AudioFrame{
		Format:     mediatype.SampleFormatS16,
		Layout:     layoutFor(d.ident.channels),
		SampleRate: d.ident.sampleRate,
		Planes:     packInterleavedS16(pcm),
		NumSamples: d.ident.blockSize1,
		PTS:        p.PTS,
		TimeBase:   p.TimeBase,
	}
	return frame.NewAudio(af), nil
}

func (d *decoder) Close() error { return nil }

// decodeAudioPacket decodes one simplified long-block audio packet: a
// packet-type bit (must be 0, Vorbis I spec §4.3.1) followed, per
// channel, by this package's delta-scalefactor/Exp-Golomb-coded
// spectrum (see package doc).
func (d *decoder) decodeAudioPacket(data []byte) ([][]float64, error) {
	br := bitio.NewBitReader(data)
	typ, err := br.ReadBit()
	if err != nil {
		return nil, err
	}
	if typ != packetTypeAudio {
		return nil, mediaerr.NewUnsupported("vorbis: only long-block audio packets are supported")
	}

	n := d.ident.blockSize1
	offs := sfbOffsets(n)
	bands := numBands(n)

	pcm := make([][]float64, d.ident.channels)
	for ch := 0; ch < d.ident.channels; ch++ {
		spec := make([]float64, n)
		prev := 100
		for b := 0; b < bands; b++ {
			delta, err := br.ReadSE()
			if err != nil {
				return nil, err
			}
			prev += int(delta)
			start, end := offs[b], offs[b+1]
			q := make([]int32, end-start)
			for i := range q {
				v, err := br.ReadSE()
				if err != nil {
					return nil, err
				}
				q[i] = v
			}
			copy(spec[start:end], dequantizeBand(prev, q))
		}
		full := inverseMDCT(spec)
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i] = d.overlap[ch][i] + full[i]
		}
		copy(d.overlap[ch], full[n:])
		pcm[ch] = out
	}
	return pcm, nil
}

func packInterleavedS16(pcm [][]float64) [][]byte {
	channels := len(pcm)
	if channels == 0 {
		return nil
	}
	n := len(pcm[0])
	out := make([]byte, n*channels*2)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			v := pcm[ch][i]
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			sv := int16(v)
			off := (i*channels + ch) * 2
			out[off] = byte(sv)
			out[off+1] = byte(sv >> 8)
		}
	}
	return [][]byte{out}
}
