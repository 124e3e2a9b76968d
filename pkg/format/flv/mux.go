package flv

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

type muxStream struct {
	par      stream.CodecParameters
	isVideo  bool
	wroteSeq bool
}

// muxer writes FLV: a 9-byte header, a AVCDecoderConfigurationRecord/
// AudioSpecificConfig sequence-header tag per stream ahead of its first
// sample, then one tag per packet.
type muxer struct {
	w           *bytestream.Writer
	streams     []*muxStream
	wroteHeader bool
}

func newMuxer(s bytestream.ByteStream) *muxer {
	return &muxer{w: bytestream.NewWriter(s)}
}

func (m *muxer) AddStream(par stream.CodecParameters, timeBase rational.Rational) (int, error) {
	if par.CodecID.IsVideo() && par.CodecID != mediatype.CodecH264 {
		return 0, mediaerr.NewUnsupported("flv: video codec %s has no FLV tag mapping", par.CodecID)
	}
	if par.CodecID.IsAudio() && par.CodecID != mediatype.CodecAAC && par.CodecID != mediatype.CodecMP3 {
		return 0, mediaerr.NewUnsupported("flv: audio codec %s has no FLV tag mapping", par.CodecID)
	}
	idx := len(m.streams)
	m.streams = append(m.streams, &muxStream{par: par, isVideo: par.CodecID.IsVideo()})
	return idx, nil
}

func (m *muxer) WriteHeader() error {
	var hasVideo, hasAudio bool
	for _, s := range m.streams {
		if s.isVideo {
			hasVideo = true
		} else {
			hasAudio = true
		}
	}
	var flags byte
	if hasVideo {
		flags |= 0x01
	}
	if hasAudio {
		flags |= 0x04
	}
	header := []byte{'F', 'L', 'V', 0x01, flags, 0x00, 0x00, 0x00, 0x09}
	if err := m.w.WriteBytes(header); err != nil {
		return err
	}
	if err := m.w.WriteU32BE(0); err != nil { // PreviousTagSize0
		return err
	}

	for _, s := range m.streams {
		if len(s.par.ExtraData) == 0 {
			continue
		}
		if s.isVideo {
			if err := m.writeVideoSeqHeader(s); err != nil {
				return err
			}
		} else if s.par.CodecID == mediatype.CodecAAC {
			if err := m.writeAudioSeqHeader(s); err != nil {
				return err
			}
		}
	}
	m.wroteHeader = true
	return nil
}

func (m *muxer) writeVideoSeqHeader(s *muxStream) error {
	body := []byte{(frameTypeKeyframe << 4) | videoCodecIDAVC, avcPacketTypeSeqHeader, 0x00, 0x00, 0x00}
	body = append(body, s.par.ExtraData...)
	s.wroteSeq = true
	return m.writeTag(tagTypeVideo, 0, body)
}

func (m *muxer) writeAudioSeqHeader(s *muxStream) error {
	body := []byte{soundFormatAAC<<4 | 0x0F, aacPacketTypeSeqHeader}
	body = append(body, s.par.ExtraData...)
	s.wroteSeq = true
	return m.writeTag(tagTypeAudio, 0, body)
}

func (m *muxer) WritePacket(p *packet.Packet) error {
	if !m.wroteHeader {
		return mediaerr.NewInvalidArgument("flv: WriteHeader not called")
	}
	if p.StreamIndex < 0 || p.StreamIndex >= len(m.streams) {
		return mediaerr.NewStreamNotFound(p.StreamIndex)
	}
	s := m.streams[p.StreamIndex]

	dts := rational.RescalePTS(p.DTS, p.TimeBase, tbMillis)
	if dts == rational.NoPTS {
		dts = rational.RescalePTS(p.PTS, p.TimeBase, tbMillis)
	}
	pts := rational.RescalePTS(p.PTS, p.TimeBase, tbMillis)
	if pts == rational.NoPTS {
		pts = dts
	}

	if s.isVideo {
		cts := pts - dts
		frameType := byte(frameTypeInter)
		if p.IsKeyframe {
			frameType = frameTypeKeyframe
		}
		body := []byte{
			(frameType << 4) | videoCodecIDAVC, avcPacketTypeNALU,
			byte(cts >> 16), byte(cts >> 8), byte(cts),
		}
		body = append(body, p.Bytes()...)
		return m.writeTag(tagTypeVideo, uint32(dts), body)
	}

	if s.par.CodecID == mediatype.CodecAAC {
		body := []byte{soundFormatAAC<<4 | 0x0F, aacPacketTypeRaw}
		body = append(body, p.Bytes()...)
		return m.writeTag(tagTypeAudio, uint32(dts), body)
	}

	body := []byte{soundFormatMP3<<4 | 0x0F}
	body = append(body, p.Bytes()...)
	return m.writeTag(tagTypeAudio, uint32(dts), body)
}

func (m *muxer) writeTag(tagType byte, timestamp uint32, body []byte) error {
	out := []byte{
		tagType,
		byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body)),
		byte(timestamp >> 16), byte(timestamp >> 8), byte(timestamp), byte(timestamp >> 24),
		0x00, 0x00, 0x00,
	}
	out = append(out, body...)
	prevSize := uint32(11 + len(body))
	out = append(out, byte(prevSize>>24), byte(prevSize>>16), byte(prevSize>>8), byte(prevSize))
	return m.w.WriteBytes(out)
}

func (m *muxer) WriteTrailer() error { return nil }

func (m *muxer) Close() error { return nil }
