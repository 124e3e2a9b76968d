package aac

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/stream"
)

type decoder struct {
	par      stream.CodecParameters
	asc      audioSpecificConfig
	channels int
	overlap  [][]float64 // per-channel second half of the previous IMDCT output
	pending  *packet.Packet
	eof      bool
}

func newDecoder(par stream.CodecParameters) (*decoder, error) {
	channels := par.Channels
	var asc audioSpecificConfig
	if len(par.ExtraData) >= 2 {
		a, err := parseASC(par.ExtraData)
		if err != nil {
			return nil, err
		}
		asc = a
		if asc.channels > 0 {
			channels = asc.channels
		}
	}
	if channels == 0 {
		channels = 2
	}
	return &decoder{par: par, asc: asc, channels: channels}, nil
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

	pcm, err := d.decodeRawDataBlock(p.Bytes())
	if err != nil {
		return frame.Frame{}, err
	}

	af := frame.AudioFrame{
		Format:     mediatype.SampleFormatS16,
		Layout:     layoutFor(len(pcm)),
		SampleRate: d.asc.sampleRate,
		Planes:     packInterleavedS16(pcm),
		NumSamples: frameLength,
		PTS:        p.PTS,
		TimeBase:   p.TimeBase,
	}
	return frame.NewAudio(af), nil
}

func (d *decoder) Close() error { return nil }

// decodeRawDataBlock decodes one ADTS-stripped raw_data_block (ISO/IEC
// 14496-3 §4.3.1 Table 4.1) into per-channel PCM, dispatching syntactic
// elements until END_OF_SEQUENCE. Only SCE, LFE (decoded the same way
// as SCE), CPE, FIL, and END are implemented; DSE/PCE are rejected since
// this core's own encoder never emits them.
func (d *decoder) decodeRawDataBlock(data []byte) ([][]float64, error) {
	br := bitio.NewBitReader(data)
	var pcm [][]float64
	chIdx := 0

	ensureOverlap := func(n int) {
		for len(d.overlap) < n {
			d.overlap = append(d.overlap, make([]float64, frameLength))
		}
	}

	for {
		id, err := br.ReadBits(3)
		if err != nil {
			return nil, err
		}
		switch int(id) {
		case elemSCE, elemLFE:
			if _, err := br.ReadBits(4); err != nil { // element_instance_tag
				return nil, err
			}
			spec, err := decodeChannelStream(br, false, icsInfo{})
			if err != nil {
				return nil, err
			}
			ensureOverlap(chIdx + 1)
			pcm = append(pcm, overlapAddIMDCT(spec, d.overlap[chIdx]))
			chIdx++
		case elemCPE:
			if _, err := br.ReadBits(4); err != nil {
				return nil, err
			}
			commonWindow, err := br.ReadFlag()
			if err != nil {
				return nil, err
			}
			var shared icsInfo
			if commonWindow {
				shared, err = readICSInfo(br)
				if err != nil {
					return nil, err
				}
				msMaskPresent, err := br.ReadBits(2)
				if err != nil {
					return nil, err
				}
				if msMaskPresent == 1 {
					for b := 0; b < shared.maxSfb; b++ {
						if _, err := br.ReadBit(); err != nil {
							return nil, err
						}
					}
				}
			}
			spec0, err := decodeChannelStream(br, commonWindow, shared)
			if err != nil {
				return nil, err
			}
			spec1, err := decodeChannelStream(br, commonWindow, shared)
			if err != nil {
				return nil, err
			}
			ensureOverlap(chIdx + 2)
			pcm = append(pcm, overlapAddIMDCT(spec0, d.overlap[chIdx]))
			pcm = append(pcm, overlapAddIMDCT(spec1, d.overlap[chIdx+1]))
			chIdx += 2
		case elemFIL:
			count, err := br.ReadBits(4)
			if err != nil {
				return nil, err
			}
			n := int(count)
			if n == 15 {
				esc, err := br.ReadBits(8)
				if err != nil {
					return nil, err
				}
				n += int(esc) - 1
			}
			if err := br.SkipBits(n * 8); err != nil {
				return nil, err
			}
		case elemEND:
			return pcm, nil
		default:
			return nil, mediaerr.NewUnsupported("aac: syntactic element id %d not supported", id)
		}
	}
}

type icsInfo struct {
	windowSeq   int
	windowShape bool
	maxSfb      int
}

func readICSInfo(br *bitio.BitReader) (icsInfo, error) {
	if _, err := br.ReadBit(); err != nil { // ics_reserved_bit
		return icsInfo{}, err
	}
	seq, err := br.ReadBits(2)
	if err != nil {
		return icsInfo{}, err
	}
	shape, err := br.ReadFlag()
	if err != nil {
		return icsInfo{}, err
	}
	if seq == windowEightShort {
		if _, err := br.ReadBits(4); err != nil { // max_sfb
			return icsInfo{}, err
		}
		if _, err := br.ReadBits(7); err != nil { // scale_factor_grouping
			return icsInfo{}, err
		}
		return icsInfo{}, mediaerr.NewUnsupported("aac: eight-short windows are not supported")
	}
	maxSfb, err := br.ReadBits(6)
	if err != nil {
		return icsInfo{}, err
	}
	predictorPresent, err := br.ReadFlag()
	if err != nil {
		return icsInfo{}, err
	}
	if predictorPresent {
		return icsInfo{}, mediaerr.NewUnsupported("aac: prediction is not supported")
	}
	return icsInfo{windowSeq: int(seq), windowShape: shape, maxSfb: int(maxSfb)}, nil
}

// decodeChannelStream decodes one individual_channel_stream (ISO/IEC
// 14496-3 §4.4.2): global_gain, ics_info (unless shared via a CPE's
// common_window), per-band scale-factor deltas, and per-coefficient
// quantized spectral values, returning the dequantized spectrum.
func decodeChannelStream(br *bitio.BitReader, useShared bool, shared icsInfo) ([]float64, error) {
	gain, err := br.ReadBits(8)
	if err != nil {
		return nil, err
	}
	ics := shared
	if !useShared {
		ics, err = readICSInfo(br)
		if err != nil {
			return nil, err
		}
	}
	if ics.windowSeq != windowOnlyLong {
		return nil, mediaerr.NewUnsupported("aac: only long-window frames are supported")
	}
	maxSfb := ics.maxSfb
	if maxSfb <= 0 || maxSfb > numBands {
		maxSfb = numBands
	}
	offs := sfbOffsets(maxSfb)

	spec := make([]float64, frameLength)
	prev := int(gain)
	for b := 0; b < maxSfb; b++ {
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

// overlapAddIMDCT runs the inverse MDCT on spec and overlap-adds its
// first half with the tail carried over from the previous frame,
// reconstructing frameLength time-domain samples (ISO/IEC 14496-3
// §4.6.4's synthesis filterbank's overlap stage).
func overlapAddIMDCT(spec []float64, overlap []float64) []float64 {
	full := inverseMDCT(spec)
	out := make([]float64, frameLength)
	for i := 0; i < frameLength; i++ {
		out[i] = overlap[i] + full[i]
	}
	copy(overlap, full[frameLength:])
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
