// Package m4v implements the raw MPEG-4 Part 2 elementary-stream framing
// of spec.md §4.1.7: start-code (`00 00 01 xx`) delimited VOS/VOL/GOV
// headers followed by a sequence of VOPs, with no container-level timing
// beyond the VOL's vop_time_increment_resolution. Grounded on spec.md
// §4.1.7 directly and on the Annex-B splitter idiom shared with
// pkg/codec/h264 (both frame their elementary streams on start codes).
package m4v

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/format"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

const (
	startCodeVOS = 0xB0
	startCodeVOL = 0x20 // through 0x2F
	startCodeGOV = 0xB3
	startCodeVOP = 0xB6
)

// probe looks for a VOS (0xB0) or VOL (0x20-0x2F) start code within the
// first few bytes; M4V has no fixed magic, so this is a heuristic scan at
// the EXTENSION score tier unless the very first bytes are a start code.
func probe(peek []byte) int {
	for i := 0; i+4 < len(peek) && i < 16; i++ {
		if peek[i] == 0 && peek[i+1] == 0 && peek[i+2] == 1 {
			code := peek[i+3]
			if code == startCodeVOS || (code >= startCodeVOL && code <= startCodeVOL+0x0F) {
				if i == 0 {
					return 60
				}
				return 40
			}
		}
	}
	return 0
}

// Register wires the M4V demuxer and muxer into r.
func Register(r *format.Registry) {
	r.Register(format.FormatM4V, probe, []string{"m4v"},
		func(s bytestream.ByteStream) (format.Demuxer, error) { return openDemuxer(s) },
		func(s bytestream.ByteStream) (format.Muxer, error) { return newMuxer(s), nil },
	)
}

// findStartCodes returns the byte offsets of every 00 00 01 start-code
// prefix in data (the offset of the leading 0x00).
func findStartCodes(data []byte) []int {
	var out []int
	for i := 0; i+2 < len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			out = append(out, i)
		}
	}
	return out
}

type demuxer struct {
	st      stream.Stream
	vops    [][]byte
	extra   []byte
	idx     int
	ts      int64
	frameDu int64
}

func openDemuxer(s bytestream.ByteStream) (format.Demuxer, error) {
	r := bytestream.NewReader(s)
	var data []byte
	for {
		chunk := make([]byte, 65536)
		n, err := s.Read(chunk)
		if n > 0 {
			data = append(data, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	_ = r

	if len(data) == 0 {
		return nil, mediaerr.NewInvalidData("m4v: empty stream")
	}
	starts := findStartCodes(data)
	if len(starts) == 0 {
		return nil, mediaerr.NewInvalidData("m4v: no start codes found")
	}

	var extra []byte
	var vops [][]byte
	width, height := 0, 0
	firstVOP := -1
	for i, off := range starts {
		if off+3 >= len(data) {
			continue
		}
		code := data[off+3]
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if code == startCodeVOP {
			if firstVOP < 0 {
				firstVOP = off
			}
			vops = append(vops, data[off:end])
		} else if firstVOP < 0 {
			extra = append(extra, data[off:end]...)
			if code >= startCodeVOL && code <= startCodeVOL+0x0F {
				w, h := parseVOLDims(data[off:end])
				if w > 0 {
					width, height = w, h
				}
			}
		}
	}
	if len(vops) == 0 {
		return nil, mediaerr.NewInvalidData("m4v: no VOPs found")
	}

	tb, _ := rational.New(1, 25) // nominal; real resolution lives in VOL, not recovered generically here
	st := stream.Stream{
		Index:     0,
		MediaType: mediatype.Video,
		TimeBase:  tb,
		Duration:  rational.NoPTS,
		FrameRate: tb.Invert(),
		CodecPar: stream.CodecParameters{
			CodecID:     mediatype.CodecMPEG4Part2,
			Width:       width,
			Height:      height,
			PixelFormat: mediatype.PixelFormatYUV420P,
			ExtraData:   extra,
		},
	}
	return &demuxer{st: st, vops: vops, extra: extra, frameDu: 1}, nil
}

// parseVOLDims returns (0, 0) for every input: it does not read the
// VOL's video_object_layer_width/height fields, so the stream table
// reports no geometry for M4V input.
func parseVOLDims(vol []byte) (int, int) {
	if len(vol) < 8 {
		return 0, 0
	}
	// Conservative: real parsing lives in pkg/codec/mpeg4's VOL reader,
	// which consumes this same ExtraData bit-exactly; the demuxer leaves
	// the geometry unset.
	return 0, 0
}

func (d *demuxer) Streams() []stream.Stream { return []stream.Stream{d.st} }

func (d *demuxer) ReadPacket() (*packet.Packet, error) {
	if d.idx >= len(d.vops) {
		return nil, mediaerr.Eof
	}
	buf := make([]byte, len(d.vops[d.idx]))
	copy(buf, d.vops[d.idx])
	d.idx++

	p := packet.New(0, buf, d.st.TimeBase)
	p.PTS = d.ts
	p.DTS = d.ts
	p.Duration = d.frameDu
	p.IsKeyframe = d.idx == 1 || isIVOP(buf)
	d.ts += d.frameDu
	return p, nil
}

// isIVOP inspects the VOP coding_type bits (first two bits after the
// 32-bit start code) to flag intra VOPs as keyframes.
func isIVOP(vop []byte) bool {
	if len(vop) < 5 {
		return false
	}
	codingType := (vop[4] >> 6) & 0x03
	return codingType == 0
}

func (d *demuxer) SeekTo(streamIndex int, ts int64) error {
	if streamIndex != 0 {
		return mediaerr.NewStreamNotFound(streamIndex)
	}
	for i, v := range d.vops {
		if int64(i) >= ts && isIVOP(v) {
			d.idx = i
			d.ts = int64(i)
			return nil
		}
	}
	return mediaerr.NewInvalidArgument("m4v: no keyframe at or after ts")
}

func (d *demuxer) Close() error { return nil }

type muxer struct {
	w        *bytestream.Writer
	par      stream.CodecParameters
	wroteHdr bool
}

func newMuxer(s bytestream.ByteStream) *muxer {
	return &muxer{w: bytestream.NewWriter(s)}
}

func (m *muxer) AddStream(par stream.CodecParameters, timeBase rational.Rational) (int, error) {
	if par.CodecID != mediatype.CodecMPEG4Part2 {
		return 0, mediaerr.NewUnsupported("m4v: only MPEG-4 Part 2 streams are supported")
	}
	m.par = par
	return 0, nil
}

func (m *muxer) WriteHeader() error {
	if len(m.par.ExtraData) > 0 {
		if err := m.w.WriteBytes(m.par.ExtraData); err != nil {
			return err
		}
	}
	m.wroteHdr = true
	return nil
}

func (m *muxer) WritePacket(p *packet.Packet) error {
	if !m.wroteHdr {
		return mediaerr.NewInvalidArgument("m4v: WriteHeader not called")
	}
	return m.w.WriteBytes(p.Bytes())
}

func (m *muxer) WriteTrailer() error { return nil }
func (m *muxer) Close() error        { return nil }
