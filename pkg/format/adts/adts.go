// Package adts implements the ADTS elementary-stream framing used to
// carry raw AAC access units outside an MP4/esds box, per spec.md §4.1.
// Every frame is self-describing (sample rate index, channel count,
// frame length), so no separate header chunk precedes the stream.
package adts

import (
	"github.com/jmylchreest/tao/pkg/bitio"
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/format"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// sampleRates is the MPEG-4 sampling_frequency_index table (ISO/IEC
// 14496-3 Table 1.16).
var sampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

func probe(peek []byte) int {
	if len(peek) >= 2 && peek[0] == 0xff && peek[1]&0xf6 == 0xf0 {
		return 70
	}
	return 0
}

// Register wires the ADTS demuxer and muxer into r.
func Register(r *format.Registry) {
	r.Register(format.FormatADTS, probe, []string{"aac"},
		func(s bytestream.ByteStream) (format.Demuxer, error) { return openDemuxer(s) },
		func(s bytestream.ByteStream) (format.Muxer, error) { return newMuxer(s), nil },
	)
}

type adtsHeader struct {
	profile       int // MPEG-4 object type minus 1
	sampleRateIdx int
	channels      int
	frameLength   int // includes the 7 (or 9) byte header
	headerLen     int
}

func parseHeader(b []byte) (adtsHeader, error) {
	if len(b) < 7 {
		return adtsHeader{}, mediaerr.NewInvalidData("adts: short header")
	}
	br := bitio.NewBitReader(b)
	syncword, err := br.ReadBits(12)
	if err != nil || syncword != 0xfff {
		return adtsHeader{}, mediaerr.NewInvalidData("adts: bad syncword")
	}
	if _, err := br.ReadBits(1); err != nil { // ID
		return adtsHeader{}, err
	}
	if _, err := br.ReadBits(2); err != nil { // layer
		return adtsHeader{}, err
	}
	protectionAbsent, err := br.ReadBits(1)
	if err != nil {
		return adtsHeader{}, err
	}
	profile, err := br.ReadBits(2)
	if err != nil {
		return adtsHeader{}, err
	}
	sampleRateIdx, err := br.ReadBits(4)
	if err != nil {
		return adtsHeader{}, err
	}
	if _, err := br.ReadBits(1); err != nil { // private bit
		return adtsHeader{}, err
	}
	channelCfg, err := br.ReadBits(3)
	if err != nil {
		return adtsHeader{}, err
	}
	if _, err := br.ReadBits(4); err != nil { // original/copy, home, copyright id bit/start
		return adtsHeader{}, err
	}
	frameLength, err := br.ReadBits(13)
	if err != nil {
		return adtsHeader{}, err
	}
	if _, err := br.ReadBits(11); err != nil { // buffer fullness
		return adtsHeader{}, err
	}
	if _, err := br.ReadBits(2); err != nil { // num_raw_data_blocks_in_frame - 1
		return adtsHeader{}, err
	}

	headerLen := 7
	if protectionAbsent == 0 {
		headerLen = 9
	}
	if int(sampleRateIdx) >= len(sampleRates) {
		return adtsHeader{}, mediaerr.NewInvalidData("adts: bad sampling_frequency_index %d", sampleRateIdx)
	}
	return adtsHeader{
		profile:       int(profile),
		sampleRateIdx: int(sampleRateIdx),
		channels:      int(channelCfg),
		frameLength:   int(frameLength),
		headerLen:     headerLen,
	}, nil
}

type demuxer struct {
	r           *bytestream.Reader
	st          stream.Stream
	ts          int64
	prebuffered []byte
}

func openDemuxer(s bytestream.ByteStream) (format.Demuxer, error) {
	r := bytestream.NewReader(s)
	peek, err := r.ReadBytes(7)
	if err != nil {
		return nil, err
	}
	hdr, err := parseHeader(peek)
	if err != nil {
		return nil, err
	}
	if err := r.SeekTo(0); err != nil {
		// Non-seekable sources still work: the demuxer simply re-reads the
		// header bytes as part of the first frame below.
	}

	tb, _ := rational.New(1, int32(sampleRates[hdr.sampleRateIdx]))
	st := stream.Stream{
		Index:     0,
		MediaType: mediatype.Audio,
		TimeBase:  tb,
		Duration:  rational.NoPTS,
		CodecPar: stream.CodecParameters{
			CodecID:    mediatype.CodecAAC,
			SampleRate: sampleRates[hdr.sampleRateIdx],
			Channels:   hdr.channels,
			Layout:     layoutFor(hdr.channels),
		},
	}
	d := &demuxer{r: r, st: st}
	if !s.IsSeekable() {
		d.prebuffered = peek
	}
	return d, nil
}

func layoutFor(channels int) mediatype.ChannelLayout {
	switch channels {
	case 1:
		return mediatype.ChannelLayoutMono
	case 2:
		return mediatype.ChannelLayoutStereo
	case 6:
		return mediatype.ChannelLayout5Point1
	default:
		return mediatype.ChannelLayoutUnknown
	}
}

func (d *demuxer) Streams() []stream.Stream { return []stream.Stream{d.st} }

const aacSamplesPerFrame = 1024

func (d *demuxer) ReadPacket() (*packet.Packet, error) {
	var hdrBytes []byte
	if len(d.prebuffered) > 0 {
		hdrBytes = d.prebuffered
		d.prebuffered = nil
		more, err := d.r.ReadBytes(2)
		if err != nil {
			return nil, err
		}
		hdrBytes = append(hdrBytes, more...)
	} else {
		b, err := d.r.ReadBytes(9)
		if err != nil {
			return nil, err
		}
		hdrBytes = b
	}

	hdr, err := parseHeader(hdrBytes)
	if err != nil {
		return nil, err
	}
	if hdr.frameLength < hdr.headerLen {
		return nil, mediaerr.NewInvalidData("adts: frame_length %d shorter than header", hdr.frameLength)
	}
	payloadLen := hdr.frameLength - hdr.headerLen
	extra := hdrBytes[hdr.headerLen:]
	rest, err := d.r.ReadBytes(payloadLen - len(extra))
	if err != nil {
		return nil, err
	}
	payload := append(extra, rest...)

	p := packet.New(0, payload, d.st.TimeBase)
	p.PTS = d.ts
	p.IsKeyframe = true
	d.ts += aacSamplesPerFrame
	return p, nil
}

func (d *demuxer) SeekTo(streamIndex int, ts int64) error {
	return mediaerr.NewUnsupported("adts: seeking requires a frame index this demuxer does not build")
}

func (d *demuxer) Close() error { return nil }

type muxer struct {
	w   *bytestream.Writer
	par stream.CodecParameters
}

func newMuxer(s bytestream.ByteStream) *muxer {
	return &muxer{w: bytestream.NewWriter(s)}
}

func (m *muxer) AddStream(par stream.CodecParameters, timeBase rational.Rational) (int, error) {
	if par.CodecID != mediatype.CodecAAC {
		return 0, mediaerr.NewUnsupported("adts: only AAC streams are supported")
	}
	m.par = par
	return 0, nil
}

func (m *muxer) WriteHeader() error { return nil }

func sampleRateIndexFor(rate int) int {
	for i, r := range sampleRates {
		if r == rate {
			return i
		}
	}
	return -1
}

func (m *muxer) WritePacket(p *packet.Packet) error {
	idx := sampleRateIndexFor(m.par.SampleRate)
	if idx < 0 {
		return mediaerr.NewUnsupported("adts: sample rate %d has no ADTS index", m.par.SampleRate)
	}
	frameLength := 7 + p.Size()

	bw := bitio.NewBitWriter()
	bw.WriteBits(0xfff, 12) // syncword
	bw.WriteBits(0, 1)      // ID (MPEG-4)
	bw.WriteBits(0, 2)      // layer
	bw.WriteBits(1, 1)      // protection_absent
	bw.WriteBits(1, 2)      // profile (AAC LC = 1)
	bw.WriteBits(uint32(idx), 4)
	bw.WriteBits(0, 1) // private bit
	bw.WriteBits(uint32(m.par.Channels), 3)
	bw.WriteBits(0, 4) // original/copy, home, copyright bits
	bw.WriteBits(uint32(frameLength), 13)
	bw.WriteBits(0x7ff, 11) // buffer fullness (VBR)
	bw.WriteBits(0, 2)      // num_raw_data_blocks_in_frame - 1
	bw.AlignByte()

	if err := m.w.WriteBytes(bw.Bytes()); err != nil {
		return err
	}
	return m.w.WriteBytes(p.Bytes())
}

func (m *muxer) WriteTrailer() error { return nil }
func (m *muxer) Close() error        { return nil }
