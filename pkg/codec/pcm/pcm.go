// Package pcm implements the trivial "decode" and "encode" for the six raw
// PCM variants named in spec.md §4.2: u8, s16le, s16be, s24le, s32le,
// f32le. Apart from byte-swapping s16be and sign-extending s24le to s32,
// each conversion is a straight byte copy — there is no entropy coding —
// so this package is mostly plumbing that
// satisfies the codec.Decoder/Encoder contract.
package pcm

import (
	"encoding/binary"

	"github.com/jmylchreest/tao/pkg/codec"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// Register wires every PCM variant's decoder and encoder into r.
func Register(r *codec.Registry) {
	for _, id := range []mediatype.CodecID{
		mediatype.CodecPCMU8, mediatype.CodecPCMS16LE, mediatype.CodecPCMS16BE,
		mediatype.CodecPCMS24LE, mediatype.CodecPCMS32LE, mediatype.CodecPCMF32LE,
	} {
		id := id
		r.RegisterDecoder(id, func(par stream.CodecParameters) (codec.Decoder, error) {
			return newDecoder(id, par)
		})
		r.RegisterEncoder(id, func(par stream.CodecParameters) (codec.Encoder, error) {
			return newEncoder(id, par)
		})
	}
}

func sampleFormatFor(id mediatype.CodecID) (mediatype.SampleFormat, int) {
	switch id {
	case mediatype.CodecPCMU8:
		return mediatype.SampleFormatU8, 1
	case mediatype.CodecPCMS16LE, mediatype.CodecPCMS16BE:
		return mediatype.SampleFormatS16, 2
	case mediatype.CodecPCMS24LE:
		return mediatype.SampleFormatS32, 3 // stored 3 bytes/sample, widened to s32 on decode
	case mediatype.CodecPCMS32LE:
		return mediatype.SampleFormatS32, 4
	case mediatype.CodecPCMF32LE:
		return mediatype.SampleFormatF32, 4
	default:
		return mediatype.SampleFormatUnknown, 0
	}
}

type decoder struct {
	id      mediatype.CodecID
	par     stream.CodecParameters
	format  mediatype.SampleFormat
	bps     int
	pending *packet.Packet
	eof     bool
}

func newDecoder(id mediatype.CodecID, par stream.CodecParameters) (codec.Decoder, error) {
	format, bps := sampleFormatFor(id)
	if bps == 0 {
		return nil, mediaerr.NewUnsupported("pcm: unknown variant %s", id)
	}
	return &decoder{id: id, par: par, format: format, bps: bps}, nil
}

func (d *decoder) SendPacket(p *packet.Packet) error {
	if p == nil {
		d.eof = true
		return nil
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

	channels := d.par.Channels
	if channels == 0 {
		channels = 1
	}
	frameSize := d.bps * channels
	if frameSize == 0 || len(p.Bytes())%frameSize != 0 {
		return frame.Frame{}, mediaerr.NewInvalidData("pcm: packet size %d not a multiple of frame size %d", len(p.Bytes()), frameSize)
	}
	numSamples := len(p.Bytes()) / frameSize

	out := widenToNative(d.id, p.Bytes(), d.bps)

	af := frame.AudioFrame{
		Format:     nativeOutputFormat(d.id),
		Layout:     d.par.Layout,
		SampleRate: d.par.SampleRate,
		Planes:     [][]byte{out},
		NumSamples: numSamples,
		PTS:        p.PTS,
		TimeBase:   p.TimeBase,
	}
	return frame.NewAudio(af), nil
}

func (d *decoder) Close() error { return nil }

// nativeOutputFormat is the sample format this decoder hands to the
// caller: s24le is widened to s32 since there is no SampleFormatS24.
func nativeOutputFormat(id mediatype.CodecID) mediatype.SampleFormat {
	if id == mediatype.CodecPCMS24LE {
		return mediatype.SampleFormatS32
	}
	f, _ := sampleFormatFor(id)
	return f
}

// widenToNative converts on-disk bytes to the decoder's output sample
// format: byte-swapping s16be to native little-endian s16, and
// sign-extending s24le into s32le.
func widenToNative(id mediatype.CodecID, in []byte, bps int) []byte {
	switch id {
	case mediatype.CodecPCMS16BE:
		out := make([]byte, len(in))
		for i := 0; i+1 < len(in); i += 2 {
			v := int16(binary.BigEndian.Uint16(in[i : i+2]))
			binary.LittleEndian.PutUint16(out[i:i+2], uint16(v))
		}
		return out
	case mediatype.CodecPCMS24LE:
		out := make([]byte, (len(in)/3)*4)
		for i, o := 0, 0; i+2 < len(in); i, o = i+3, o+4 {
			v := int32(in[i]) | int32(in[i+1])<<8 | int32(in[i+2])<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xffffff) // sign extend
			}
			binary.LittleEndian.PutUint32(out[o:o+4], uint32(v))
		}
		return out
	default:
		out := make([]byte, len(in))
		copy(out, in)
		return out
	}
}

type encoder struct {
	id      mediatype.CodecID
	par     stream.CodecParameters
	bps     int
	pending *frame.Frame
	done    bool
}

func newEncoder(id mediatype.CodecID, par stream.CodecParameters) (codec.Encoder, error) {
	_, bps := sampleFormatFor(id)
	if bps == 0 {
		return nil, mediaerr.NewUnsupported("pcm: unknown variant %s", id)
	}
	return &encoder{id: id, par: par, bps: bps}, nil
}

func (e *encoder) SendFrame(f frame.Frame) error {
	if f.Kind != frame.KindAudio || f.Audio.NumSamples == 0 {
		e.done = true
		return nil
	}
	cp := f
	e.pending = &cp
	return nil
}

func (e *encoder) ReceivePacket() (*packet.Packet, error) {
	if e.pending == nil {
		if e.done {
			return nil, mediaerr.Eof
		}
		return nil, mediaerr.NeedMoreData
	}
	af := e.pending.Audio
	e.pending = nil

	out := narrowFromNative(e.id, af.Planes[0])
	tb := af.TimeBase
	if !tb.IsValid() {
		tb, _ = rational.New(1, int32(af.SampleRate))
	}
	p := packet.New(0, out, tb)
	p.PTS = af.PTS
	p.IsKeyframe = true
	return p, nil
}

func (e *encoder) Close() error { return nil }

// narrowFromNative is the encoder-side inverse of widenToNative.
func narrowFromNative(id mediatype.CodecID, in []byte) []byte {
	switch id {
	case mediatype.CodecPCMS16BE:
		out := make([]byte, len(in))
		for i := 0; i+1 < len(in); i += 2 {
			v := binary.LittleEndian.Uint16(in[i : i+2])
			binary.BigEndian.PutUint16(out[i:i+2], v)
		}
		return out
	case mediatype.CodecPCMS24LE:
		out := make([]byte, (len(in)/4)*3)
		for i, o := 0, 0; i+3 < len(in); i, o = i+4, o+3 {
			v := int32(binary.LittleEndian.Uint32(in[i : i+4]))
			out[o] = byte(v)
			out[o+1] = byte(v >> 8)
			out[o+2] = byte(v >> 16)
		}
		return out
	default:
		out := make([]byte, len(in))
		copy(out, in)
		return out
	}
}
