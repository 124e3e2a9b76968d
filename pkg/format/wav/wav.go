// Package wav implements the RIFF/WAVE container of spec.md §4.1: a
// "fmt " chunk describing PCM layout followed by a "data" chunk of raw
// samples, with no interleaved timing metadata beyond sample count.
package wav

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
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

func probe(peek []byte) int {
	if len(peek) >= 12 && string(peek[0:4]) == "RIFF" && string(peek[8:12]) == "WAVE" {
		return 100
	}
	return 0
}

// Register wires the WAV demuxer and muxer into r.
func Register(r *format.Registry) {
	r.Register(format.FormatWAV, probe, []string{"wav", "wave"},
		func(s bytestream.ByteStream) (format.Demuxer, error) { return openDemuxer(s) },
		func(s bytestream.ByteStream) (format.Muxer, error) { return newMuxer(s), nil },
	)
}

type fmtChunk struct {
	audioFormat   uint16
	numChannels   uint16
	sampleRate    uint32
	bitsPerSample uint16
}

func codecIDFor(f fmtChunk) mediatype.CodecID {
	switch {
	case f.audioFormat == wavFormatPCM && f.bitsPerSample == 8:
		return mediatype.CodecPCMU8
	case f.audioFormat == wavFormatPCM && f.bitsPerSample == 16:
		return mediatype.CodecPCMS16LE
	case f.audioFormat == wavFormatPCM && f.bitsPerSample == 24:
		return mediatype.CodecPCMS24LE
	case f.audioFormat == wavFormatPCM && f.bitsPerSample == 32:
		return mediatype.CodecPCMS32LE
	case f.audioFormat == wavFormatIEEEFloat && f.bitsPerSample == 32:
		return mediatype.CodecPCMF32LE
	default:
		return mediatype.CodecUnknown
	}
}

func layoutFor(channels uint16) mediatype.ChannelLayout {
	switch channels {
	case 1:
		return mediatype.ChannelLayoutMono
	case 2:
		return mediatype.ChannelLayoutStereo
	default:
		return mediatype.ChannelLayoutUnknown
	}
}

type demuxer struct {
	r          *bytestream.Reader
	st         stream.Stream
	dataStart  int64
	dataSize   uint32
	frameBytes int
	pos        uint32
}

func openDemuxer(s bytestream.ByteStream) (format.Demuxer, error) {
	r := bytestream.NewReader(s)

	if tag, err := r.ReadTag(); err != nil || tag != "RIFF" {
		return nil, mediaerr.NewInvalidData("wav: missing RIFF tag")
	}
	if _, err := r.ReadU32LE(); err != nil { // riff size, recomputed on write
		return nil, err
	}
	if tag, err := r.ReadTag(); err != nil || tag != "WAVE" {
		return nil, mediaerr.NewInvalidData("wav: missing WAVE tag")
	}

	var fc fmtChunk
	var haveFmt bool
	var dataStart int64
	var dataSize uint32

	for {
		tag, err := r.ReadTag()
		if err != nil {
			if err == mediaerr.Eof {
				break
			}
			return nil, err
		}
		size, err := r.ReadU32LE()
		if err != nil {
			return nil, err
		}
		switch tag {
		case "fmt ":
			fc.audioFormat, _ = r.ReadU16LE()
			fc.numChannels, _ = r.ReadU16LE()
			fc.sampleRate, _ = r.ReadU32LE()
			if _, err := r.ReadU32LE(); err != nil { // byte rate
				return nil, err
			}
			if _, err := r.ReadU16LE(); err != nil { // block align
				return nil, err
			}
			fc.bitsPerSample, _ = r.ReadU16LE()
			haveFmt = true
			remaining := int64(size) - 16
			if remaining > 0 {
				if err := r.Skip(remaining); err != nil {
					return nil, err
				}
			}
		case "data":
			pos, err := r.Position()
			if err != nil {
				return nil, err
			}
			dataStart = pos
			dataSize = size
			if err := r.Skip(int64(size)); err != nil {
				return nil, err
			}
		default:
			if err := r.Skip(int64(size)); err != nil {
				return nil, err
			}
		}
		if size%2 == 1 {
			if err := r.Skip(1); err != nil {
				return nil, err
			}
		}
	}

	if !haveFmt {
		return nil, mediaerr.NewInvalidData("wav: missing fmt chunk")
	}
	id := codecIDFor(fc)
	if id == mediatype.CodecUnknown {
		return nil, mediaerr.NewUnsupported("wav: unsupported format=%d bits=%d", fc.audioFormat, fc.bitsPerSample)
	}

	tb, _ := rational.New(1, int32(fc.sampleRate))
	bytesPerSample := int(fc.bitsPerSample) / 8
	frameBytes := bytesPerSample * int(fc.numChannels)

	st := stream.Stream{
		Index:     0,
		MediaType: mediatype.Audio,
		TimeBase:  tb,
		Duration:  rational.NoPTS,
		CodecPar: stream.CodecParameters{
			CodecID:    id,
			SampleRate: int(fc.sampleRate),
			Channels:   int(fc.numChannels),
			Layout:     layoutFor(fc.numChannels),
		},
	}
	if frameBytes > 0 {
		st.Duration = int64(dataSize) / int64(frameBytes)
	}

	if err := r.SeekTo(dataStart); err != nil {
		return nil, err
	}

	return &demuxer{r: r, st: st, dataStart: dataStart, dataSize: dataSize, frameBytes: frameBytes}, nil
}

func (d *demuxer) Streams() []stream.Stream { return []stream.Stream{d.st} }

const wavPacketFrames = 4096

func (d *demuxer) ReadPacket() (*packet.Packet, error) {
	if d.frameBytes == 0 || d.pos >= d.dataSize {
		return nil, mediaerr.Eof
	}
	want := uint32(wavPacketFrames * d.frameBytes)
	if remaining := d.dataSize - d.pos; want > remaining {
		want = remaining
	}
	buf, err := d.r.ReadBytes(int(want))
	if err != nil {
		return nil, err
	}
	p := packet.New(0, buf, d.st.TimeBase)
	p.PTS = int64(d.pos) / int64(d.frameBytes)
	p.IsKeyframe = true
	p.Pos = d.dataStart + int64(d.pos)
	d.pos += want
	return p, nil
}

func (d *demuxer) SeekTo(streamIndex int, ts int64) error {
	if streamIndex != 0 {
		return mediaerr.NewStreamNotFound(streamIndex)
	}
	offset := ts * int64(d.frameBytes)
	if offset < 0 || offset > int64(d.dataSize) {
		return mediaerr.NewInvalidArgument("wav: seek target out of range")
	}
	if err := d.r.SeekTo(d.dataStart + offset); err != nil {
		return err
	}
	d.pos = uint32(offset)
	return nil
}

func (d *demuxer) Close() error { return nil }

type muxer struct {
	w          *bytestream.Writer
	par        stream.CodecParameters
	headerSize int64
	dataSize   uint32
	wroteHdr   bool
}

func newMuxer(s bytestream.ByteStream) *muxer {
	return &muxer{w: bytestream.NewWriter(s)}
}

func (m *muxer) AddStream(par stream.CodecParameters, timeBase rational.Rational) (int, error) {
	if !par.CodecID.IsAudio() {
		return 0, mediaerr.NewUnsupported("wav: only audio streams are supported")
	}
	m.par = par
	return 0, nil
}

func bitsPerSampleFor(id mediatype.CodecID) (uint16, uint16) {
	switch id {
	case mediatype.CodecPCMU8:
		return wavFormatPCM, 8
	case mediatype.CodecPCMS16LE:
		return wavFormatPCM, 16
	case mediatype.CodecPCMS24LE:
		return wavFormatPCM, 24
	case mediatype.CodecPCMS32LE:
		return wavFormatPCM, 32
	case mediatype.CodecPCMF32LE:
		return wavFormatIEEEFloat, 32
	default:
		return 0, 0
	}
}

func (m *muxer) WriteHeader() error {
	audioFormat, bits := bitsPerSampleFor(m.par.CodecID)
	if bits == 0 {
		return mediaerr.NewUnsupported("wav: codec %s cannot be muxed as PCM", m.par.CodecID)
	}
	blockAlign := uint16(m.par.Channels) * (bits / 8)
	byteRate := uint32(m.par.SampleRate) * uint32(blockAlign)

	if err := m.w.WriteTag("RIFF"); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // patched in WriteTrailer
		return err
	}
	if err := m.w.WriteTag("WAVE"); err != nil {
		return err
	}
	if err := m.w.WriteTag("fmt "); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(16); err != nil {
		return err
	}
	if err := m.w.WriteU16LE(audioFormat); err != nil {
		return err
	}
	if err := m.w.WriteU16LE(uint16(m.par.Channels)); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(uint32(m.par.SampleRate)); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(byteRate); err != nil {
		return err
	}
	if err := m.w.WriteU16LE(blockAlign); err != nil {
		return err
	}
	if err := m.w.WriteU16LE(bits); err != nil {
		return err
	}
	if err := m.w.WriteTag("data"); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // patched in WriteTrailer
		return err
	}
	pos, err := m.w.Position()
	if err != nil {
		return err
	}
	m.headerSize = pos
	m.wroteHdr = true
	return nil
}

func (m *muxer) WritePacket(p *packet.Packet) error {
	if !m.wroteHdr {
		return mediaerr.NewInvalidArgument("wav: WriteHeader not called")
	}
	if err := m.w.WriteBytes(p.Bytes()); err != nil {
		return err
	}
	m.dataSize += uint32(p.Size())
	return nil
}

func (m *muxer) WriteTrailer() error {
	if err := m.w.SeekTo(4); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(uint32(m.headerSize) - 8 + m.dataSize); err != nil {
		return err
	}
	if err := m.w.SeekTo(m.headerSize - 4); err != nil {
		return err
	}
	return m.w.WriteU32LE(m.dataSize)
}

func (m *muxer) Close() error { return nil }
