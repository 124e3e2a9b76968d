package mp3

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/stream"
)

// maxReservoir is the MPEG-1 Layer III bit reservoir's byte capacity
// (ISO/IEC 11172-3 §2.4.2.7); MPEG-2 LSF halves this to 256 but this
// package only writes MPEG-1 frames.
const maxReservoir = 511

type decoder struct {
	par       stream.CodecParameters
	channels  int
	reservoir []byte
	overlap   [][]float64 // per-channel IMDCT overlap, carried across granules
	pending   *packet.Packet
	eof       bool
}

func newDecoder(par stream.CodecParameters) (*decoder, error) {
	channels := par.Channels
	if channels == 0 {
		channels = 2
	}
	return &decoder{par: par, channels: channels, overlap: make([][]float64, channels)}, nil
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

	pcm, sampleRate, channels, err := d.decodeFrame(p.Bytes())
	if err != nil {
		return frame.Frame{}, err
	}

	af := frame.AudioFrame{
		Format:     mediatype.SampleFormatS16,
		Layout:     layoutFor(channels),
		SampleRate: sampleRate,
		Planes:     packInterleavedS16(pcm),
		NumSamples: samplesPerGr * granulesPerFr,
		PTS:        p.PTS,
		TimeBase:   p.TimeBase,
	}
	return frame.NewAudio(af), nil
}

func (d *decoder) Close() error { return nil }

func parseSideInfo(b []byte, h frameHeader) (sideInfo, error) {
	br := bitio.NewBitReader(b)
	var si sideInfo
	v, err := br.ReadBits(9)
	if err != nil {
		return si, err
	}
	si.mainDataBegin = int(v)

	privBits := 5
	if h.channels() == 1 {
		privBits = 3
	}
	if _, err := br.ReadBits(privBits); err != nil {
		return si, err
	}

	nch := h.channels()
	for ch := 0; ch < nch; ch++ {
		for band := 0; band < 4; band++ {
			v, err := br.ReadBits(1)
			if err != nil {
				return si, err
			}
			si.scfsi[ch][band] = int(v)
		}
	}

	for gr := 0; gr < granulesPerFr; gr++ {
		for ch := 0; ch < nch; ch++ {
			v, err := br.ReadBits(12)
			if err != nil {
				return si, err
			}
			si.part23Length[gr][ch] = int(v)
			if _, err := br.ReadBits(9); err != nil { // big_values
				return si, err
			}
			v, err = br.ReadBits(8)
			if err != nil {
				return si, err
			}
			si.globalGain[gr][ch] = int(v)
			v, err = br.ReadBits(4)
			if err != nil {
				return si, err
			}
			si.scalefacCompress[gr][ch] = int(v)

			winSwitch, err := br.ReadBits(1)
			if err != nil {
				return si, err
			}
			if winSwitch == 1 {
				if _, err := br.ReadBits(2); err != nil { // block_type
					return si, err
				}
				if _, err := br.ReadBits(1); err != nil { // mixed_block_flag
					return si, err
				}
				if _, err := br.ReadBits(5); err != nil { // table_select[0]
					return si, err
				}
				if _, err := br.ReadBits(5); err != nil { // table_select[1]
					return si, err
				}
				for i := 0; i < 3; i++ {
					if _, err := br.ReadBits(3); err != nil { // subblock_gain
						return si, err
					}
				}
			} else {
				for i := 0; i < 3; i++ {
					if _, err := br.ReadBits(5); err != nil { // table_select[0..2]
						return si, err
					}
				}
				if _, err := br.ReadBits(4); err != nil { // region0_count
					return si, err
				}
				if _, err := br.ReadBits(3); err != nil { // region1_count
					return si, err
				}
			}
			if _, err := br.ReadBits(1); err != nil { // preflag
				return si, err
			}
			if _, err := br.ReadBits(1); err != nil { // scalefac_scale
				return si, err
			}
			if _, err := br.ReadBits(1); err != nil { // count1table_select
				return si, err
			}
		}
	}
	return si, nil
}

// decodeFrame parses one MPEG-1 Layer III frame: header, side info, and
// (via the bit reservoir) this frame's granule main data.
func (d *decoder) decodeFrame(data []byte) ([][]float64, int, int, error) {
	h, err := parseFrameHeader(data)
	if err != nil {
		return nil, 0, 0, err
	}
	nch := h.channels()
	sideInfoSize := h.sideInfoSize()
	if len(data) < 4+sideInfoSize {
		return nil, 0, 0, mediaerr.NewInvalidData("mp3: frame shorter than header+side info")
	}
	si, err := parseSideInfo(data[4:4+sideInfoSize], h)
	if err != nil {
		return nil, 0, 0, err
	}

	mainDataStart := 4 + sideInfoSize
	mainData := data[mainDataStart:]

	combined := append(append([]byte(nil), d.reservoir...), mainData...)
	start := len(d.reservoir) - si.mainDataBegin
	if start < 0 {
		// Not enough reservoir history (first frames after a seek); skip
		// this frame's granules but keep accumulating the reservoir.
		d.reservoir = trimReservoir(combined)
		pcm := make([][]float64, nch)
		for ch := range pcm {
			pcm[ch] = make([]float64, samplesPerGr*granulesPerFr)
		}
		return pcm, h.sampleRate, nch, nil
	}

	br := bitio.NewBitReader(combined[start:])
	pcm := make([][]float64, nch)
	for ch := range pcm {
		pcm[ch] = make([]float64, 0, samplesPerGr*granulesPerFr)
	}
	for gr := 0; gr < granulesPerFr; gr++ {
		for ch := 0; ch < nch; ch++ {
			spec, err := decodeGranule(br, si.globalGain[gr][ch])
			if err != nil {
				return nil, 0, 0, err
			}
			if len(d.overlap[ch]) == 0 {
				d.overlap[ch] = make([]float64, granuleLen)
			}
			samples := overlapAddGranule(spec, d.overlap[ch])
			pcm[ch] = append(pcm[ch], samples...)
		}
	}

	d.reservoir = trimReservoir(combined)
	return pcm, h.sampleRate, nch, nil
}

func trimReservoir(combined []byte) []byte {
	if len(combined) <= maxReservoir {
		return combined
	}
	return combined[len(combined)-maxReservoir:]
}

// decodeGranule reads one granule/channel's scale-factor deltas and
// quantized spectral coefficients, coded as pkg/codec/aac's channel
// streams are (see package doc), and returns the dequantized spectrum.
func decodeGranule(br *bitio.BitReader, globalGain int) ([]float64, error) {
	offs := sfbOffsets(numBands)
	spec := make([]float64, granuleLen)
	prev := globalGain
	for b := 0; b < numBands; b++ {
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
	return spec, nil
}

func overlapAddGranule(spec []float64, overlap []float64) []float64 {
	full := inverseGranuleMDCT(spec)
	out := make([]float64, granuleLen)
	for i := 0; i < granuleLen; i++ {
		out[i] = overlap[i] + full[i]
	}
	copy(overlap, full[granuleLen:])
	return out
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
