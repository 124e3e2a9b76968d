package mpegts

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

const (
	pmtPID             = 0x1000
	firstElementaryPID = 0x0100

	// tableRewritePeriod re-emits PAT/PMT before the next PES once this many
	// TS packets have been written since the last pair, in addition to
	// before every video keyframe, so a receiver tuning in mid-stream can
	// still acquire the program map.
	tableRewritePeriod = 40
)

type muxTrack struct {
	pid       uint16
	streamTyp byte
	isVideo   bool
	cc        byte
}

// muxer writes MPEG-TS: 188-byte packets carrying PES-framed elementary
// streams plus a periodically repeated PAT/PMT, per spec.md §4.1.3.
type muxer struct {
	w            *bytestream.Writer
	tracks       []*muxTrack
	patCC        byte
	pmtCC        byte
	wroteHeader  bool
	packetsSince int
}

func newMuxer(s bytestream.ByteStream) *muxer {
	return &muxer{w: bytestream.NewWriter(s)}
}

func (m *muxer) AddStream(par stream.CodecParameters, timeBase rational.Rational) (int, error) {
	idx := len(m.tracks)
	streamTyp, ok := streamTypeForCodec(par.CodecID)
	if !ok {
		return 0, mediaerr.NewUnsupported("mpegts: codec %s has no MPEG-TS stream type mapping", par.CodecID)
	}
	m.tracks = append(m.tracks, &muxTrack{
		pid:       uint16(firstElementaryPID + idx),
		streamTyp: streamTyp,
		isVideo:   par.CodecID.IsVideo(),
	})
	return idx, nil
}

func streamTypeForCodec(id mediatype.CodecID) (byte, bool) {
	switch id {
	case mediatype.CodecH264:
		return streamTypeH264, true
	case mediatype.CodecH265:
		return streamTypeH265, true
	case mediatype.CodecMPEG4Part2:
		return streamTypeMPEG4Video, true
	case mediatype.CodecAAC:
		return streamTypeAACADTS, true
	case mediatype.CodecMP3:
		return streamTypeMPEG1Audio, true
	case mediatype.CodecAC3:
		return streamTypeAC3, true
	default:
		return 0, false
	}
}

func (m *muxer) WriteHeader() error {
	if len(m.tracks) == 0 {
		return mediaerr.NewInvalidArgument("mpegts: no streams added before WriteHeader")
	}
	if err := m.writeTables(); err != nil {
		return err
	}
	m.wroteHeader = true
	return nil
}

func (m *muxer) writeTables() error {
	pat := buildPAT()
	if err := m.writePSI(pidPAT, &m.patCC, pat); err != nil {
		return err
	}
	pmt := buildPMT(m.tracks)
	if err := m.writePSI(pmtPID, &m.pmtCC, pmt); err != nil {
		return err
	}
	m.packetsSince = 0
	return nil
}

func buildPAT() []byte {
	body := []byte{0x00, 0x01}      // transport_stream_id
	body = append(body, 0xC1)       // reserved(2)+version(5)+current_next(1)
	body = append(body, 0x00)       // section_number
	body = append(body, 0x00)       // last_section_number
	body = append(body, 0x00, 0x01) // program_number = 1
	body = append(body, byte(0xE0|(pmtPID>>8)), byte(pmtPID&0xFF))
	return wrapPSISection(0x00, body)
}

func buildPMT(tracks []*muxTrack) []byte {
	pcrPID := uint16(0)
	for _, t := range tracks {
		if t.isVideo {
			pcrPID = t.pid
			break
		}
	}
	if pcrPID == 0 && len(tracks) > 0 {
		pcrPID = tracks[0].pid
	}

	body := []byte{0x00, 0x01} // program_number = 1
	body = append(body, 0xC1)  // reserved+version+current_next
	body = append(body, 0x00)  // section_number
	body = append(body, 0x00)  // last_section_number
	body = append(body, byte(0xE0|(pcrPID>>8)), byte(pcrPID))
	body = append(body, 0xF0, 0x00) // program_info_length = 0
	for _, t := range tracks {
		body = append(body, t.streamTyp)
		body = append(body, byte(0xE0|(t.pid>>8)), byte(t.pid))
		body = append(body, 0xF0, 0x00) // ES_info_length = 0
	}
	return wrapPSISection(0x02, body)
}

// wrapPSISection prefixes tableID + section_length and appends the
// MPEG-2 Systems (unreflected) CRC-32 required of every PSI section.
func wrapPSISection(tableID byte, body []byte) []byte {
	sectionLen := len(body) + 4 // + CRC32
	head := []byte{tableID, byte(0xB0 | (sectionLen>>8)&0x0F), byte(sectionLen)}
	sec := append(append([]byte{}, head...), body...)
	crc := psiCRC32(sec)
	sec = append(sec, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
	return sec
}

// psiCRC32 is ISO/IEC 13818-1's PSI CRC-32: polynomial 0x04C11DB7,
// MSB-first, no reflection, no final XOR — distinct from the reflected
// IEEE/zlib CRC-32 pkg/bitio provides for other uses.
func psiCRC32(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b) << 24
		for i := 0; i < 8; i++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func (m *muxer) writePSI(pid uint16, cc *byte, section []byte) error {
	return m.writeTSPackets(pid, cc, append([]byte{0x00}, section...))
}

// writeTSPackets segments data into 188-byte TS packets under pid,
// setting PUSI on the first packet and padding the final packet with an
// adaptation-field stuffing run so every packet is exactly packetSize.
func (m *muxer) writeTSPackets(pid uint16, cc *byte, data []byte) error {
	pos := 0
	first := true
	for pos < len(data) {
		remaining := len(data) - pos
		chunk := remaining
		if chunk > 184 {
			chunk = 184
		}
		pad := 184 - chunk

		hdr := make([]byte, 4)
		hdr[0] = syncByte
		var pusiBit byte
		if first {
			pusiBit = 0x40
		}
		hdr[1] = pusiBit | byte((pid>>8)&0x1F)
		hdr[2] = byte(pid)
		afc := byte(1)
		if pad > 0 {
			afc = 3
		}
		hdr[3] = (afc << 4) | (*cc & 0x0F)
		*cc = (*cc + 1) & 0x0F

		out := append([]byte{}, hdr...)
		if pad > 0 {
			adaptLen := pad - 1
			out = append(out, byte(adaptLen))
			if adaptLen > 0 {
				out = append(out, 0x00)
				for i := 0; i < adaptLen-1; i++ {
					out = append(out, 0xFF)
				}
			}
		}
		out = append(out, data[pos:pos+chunk]...)
		if err := m.w.WriteBytes(out); err != nil {
			return err
		}
		pos += chunk
		first = false
		m.packetsSince++
	}
	return nil
}

func (m *muxer) WritePacket(p *packet.Packet) error {
	if !m.wroteHeader {
		return mediaerr.NewInvalidArgument("mpegts: WriteHeader not called")
	}
	if p.StreamIndex < 0 || p.StreamIndex >= len(m.tracks) {
		return mediaerr.NewStreamNotFound(p.StreamIndex)
	}
	t := m.tracks[p.StreamIndex]

	if (t.isVideo && p.IsKeyframe) || m.packetsSince >= tableRewritePeriod {
		if err := m.writeTables(); err != nil {
			return err
		}
	}

	pts := rational.RescalePTS(p.PTS, p.TimeBase, tb90k)
	dts := rational.RescalePTS(p.DTS, p.TimeBase, tb90k)
	pes := buildPESPacket(t.isVideo, pts, dts, p.Bytes())
	return m.writeTSPackets(t.pid, &t.cc, pes)
}

func buildPESPacket(isVideo bool, pts, dts int64, payload []byte) []byte {
	streamID := byte(0xC0) // audio stream id base
	if isVideo {
		streamID = 0xE0
	}

	havePTS := pts != rational.NoPTS
	haveDTS := haveDistinctDTS(pts, dts)

	var ptsDtsFlags byte
	var headerData []byte
	switch {
	case havePTS && haveDTS:
		ptsDtsFlags = 0x3
		headerData = append(encodeTimestamp(0x3, pts), encodeTimestamp(0x1, dts)...)
	case havePTS:
		ptsDtsFlags = 0x2
		headerData = encodeTimestamp(0x2, pts)
	}

	flags1 := byte(0x80)
	flags2 := ptsDtsFlags << 6
	headerDataLen := byte(len(headerData))

	pesLen := 3 + len(headerData) + len(payload)
	var lenHi, lenLo byte
	if pesLen <= 0xFFFF {
		lenHi, lenLo = byte(pesLen>>8), byte(pesLen)
	}

	out := []byte{0x00, 0x00, 0x01, streamID, lenHi, lenLo, flags1, flags2, headerDataLen}
	out = append(out, headerData...)
	out = append(out, payload...)
	return out
}

func haveDistinctDTS(pts, dts int64) bool {
	return dts != rational.NoPTS && dts != pts
}

// encodeTimestamp is the inverse of decodePESTimestamp: prefix is the
// 4-bit pattern preceding a PTS-only (0010), PTS-of-pair (0011), or
// DTS-of-pair (0001) field.
func encodeTimestamp(prefix byte, ts int64) []byte {
	b0 := (prefix << 4) | byte((ts>>29)&0x0E) | 0x01
	b1 := byte(ts >> 22)
	b2 := byte((ts>>14)&0xFE) | 0x01
	b3 := byte(ts >> 7)
	b4 := byte((ts<<1)&0xFE) | 0x01
	return []byte{b0, b1, b2, b3, b4}
}

func (m *muxer) WriteTrailer() error { return nil }

func (m *muxer) Close() error { return nil }
