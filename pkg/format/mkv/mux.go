package mkv

import (
	"math"

	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// tickNS is the muxer's fixed TimecodeScale: one tick per millisecond,
// the conventional Matroska default.
const tickNS = 1_000_000

// maxBlockRelTicks bounds a SimpleBlock's signed 16-bit relative
// timecode; a sample further from its cluster's start than this forces a
// new Cluster.
const maxBlockRelTicks = 32767

type muxTrack struct {
	number  uint64
	par     stream.CodecParameters
	isVideo bool
}

// muxer writes Matroska/WebM: an EBML header, a Segment of unknown size
// (spec.md §4.1.2's streamed-size convention, which also saves us from
// backpatching Segment's length), an Info/Tracks pair, and a sequence of
// Clusters whose SimpleBlocks carry relative timecodes.
type muxer struct {
	w      *bytestream.Writer
	isWebM bool
	tracks []*muxTrack

	wroteHeader     bool
	infoDurationPos int64 // absolute offset of Info's Duration value bytes, backpatched in WriteTrailer
	maxPTSNano      int64

	haveCluster       bool
	clusterTimecodeTk int64
	clusterBuf        []byte
}

func newMuxer(s bytestream.ByteStream, isWebM bool) *muxer {
	return &muxer{w: bytestream.NewWriter(s), isWebM: isWebM}
}

func (m *muxer) AddStream(par stream.CodecParameters, timeBase rational.Rational) (int, error) {
	idx := len(m.tracks)
	m.tracks = append(m.tracks, &muxTrack{
		number:  uint64(idx + 1),
		par:     par,
		isVideo: par.CodecID.IsVideo(),
	})
	return idx, nil
}

func (m *muxer) WriteHeader() error {
	if err := m.writeEBMLHeader(); err != nil {
		return err
	}
	segHeader := append(writeElementID(idSegment), unknownSizeBytes()...)
	if err := m.w.WriteBytes(segHeader); err != nil {
		return err
	}
	if err := m.writeInfo(); err != nil {
		return err
	}
	if err := m.writeTracks(); err != nil {
		return err
	}
	m.wroteHeader = true
	return nil
}

func (m *muxer) writeEBMLHeader() error {
	doctype := "matroska"
	if m.isWebM {
		doctype = "webm"
	}
	body := append([]byte{}, writeUintElement(idEBMLVersion, 1)...)
	body = append(body, writeUintElement(idEBMLReadVersion, 1)...)
	body = append(body, writeUintElement(idEBMLMaxIDLength, 4)...)
	body = append(body, writeUintElement(idEBMLMaxSizeLength, 8)...)
	body = append(body, writeStringElement(idDocType, doctype)...)
	body = append(body, writeUintElement(idDocTypeVersion, 2)...)
	body = append(body, writeUintElement(idDocTypeReadVersion, 2)...)
	return m.w.WriteBytes(writeMasterElement(idEBML, body))
}

func (m *muxer) writeInfo() error {
	tcScale := writeUintElement(idTimecodeScale, tickNS)
	durHeader := append(writeElementID(idDuration), writeElementSize(8)...)
	durPlaceholder := make([]byte, 8)

	body := append([]byte{}, tcScale...)
	durOffsetInBody := len(body) + len(durHeader)
	body = append(body, durHeader...)
	body = append(body, durPlaceholder...)

	idBytes := writeElementID(idInfo)
	sizeBytes := writeElementSize(uint64(len(body)))

	pos, err := m.w.Position()
	if err != nil {
		return err
	}
	m.infoDurationPos = pos + int64(len(idBytes)) + int64(len(sizeBytes)) + int64(durOffsetInBody)

	out := append([]byte{}, idBytes...)
	out = append(out, sizeBytes...)
	out = append(out, body...)
	return m.w.WriteBytes(out)
}

func (m *muxer) writeTracks() error {
	var body []byte
	for _, t := range m.tracks {
		entry, err := m.buildTrackEntry(t)
		if err != nil {
			return err
		}
		body = append(body, entry...)
	}
	return m.w.WriteBytes(writeMasterElement(idTracks, body))
}

func (m *muxer) buildTrackEntry(t *muxTrack) ([]byte, error) {
	codecID, err := matroskaCodecIDForOurs(t.par.CodecID)
	if err != nil {
		return nil, err
	}
	var trackType uint64 = 2
	if t.isVideo {
		trackType = 1
	}

	body := writeUintElement(idTrackNumber, t.number)
	body = append(body, writeUintElement(idTrackType, trackType)...)
	body = append(body, writeStringElement(idCodecID, codecID)...)
	if len(t.par.ExtraData) > 0 {
		body = append(body, writeBinaryElement(idCodecPrivate, t.par.ExtraData)...)
	}

	if t.isVideo {
		vbody := writeUintElement(idPixelWidth, uint64(t.par.Width))
		vbody = append(vbody, writeUintElement(idPixelHeight, uint64(t.par.Height))...)
		body = append(body, writeMasterElement(idVideo, vbody)...)
	} else {
		abody := writeFloatElement(idSamplingFreq, float64(t.par.SampleRate))
		channels := t.par.Channels
		if channels == 0 {
			channels = 1
		}
		abody = append(abody, writeUintElement(idChannels, uint64(channels))...)
		if depth := pcmBitDepth(t.par.CodecID); depth > 0 {
			abody = append(abody, writeUintElement(idBitDepth, uint64(depth))...)
		}
		body = append(body, writeMasterElement(idAudio, abody)...)
	}

	return writeMasterElement(idTrackEntry, body), nil
}

func (m *muxer) WritePacket(p *packet.Packet) error {
	if !m.wroteHeader {
		return mediaerr.NewInvalidArgument("mkv: WriteHeader not called")
	}
	if p.StreamIndex < 0 || p.StreamIndex >= len(m.tracks) {
		return mediaerr.NewStreamNotFound(p.StreamIndex)
	}
	t := m.tracks[p.StreamIndex]

	ns := rational.RescalePTS(p.PTS, p.TimeBase, tbNanosecond)
	if ns == rational.NoPTS {
		ns = m.maxPTSNano
	}
	if ns > m.maxPTSNano {
		m.maxPTSNano = ns
	}
	ticks := ns / tickNS

	if !m.haveCluster {
		m.startCluster(ticks)
	}
	rel := ticks - m.clusterTimecodeTk
	if rel > maxBlockRelTicks || rel < -maxBlockRelTicks-1 {
		if err := m.flushCluster(); err != nil {
			return err
		}
		m.startCluster(ticks)
		rel = 0
	}

	block := buildSimpleBlock(t.number, int16(rel), p.IsKeyframe, p.Bytes())
	m.clusterBuf = append(m.clusterBuf, block...)
	return nil
}

func (m *muxer) startCluster(ticks int64) {
	m.haveCluster = true
	m.clusterTimecodeTk = ticks
	m.clusterBuf = m.clusterBuf[:0]
}

func (m *muxer) flushCluster() error {
	if !m.haveCluster || len(m.clusterBuf) == 0 {
		m.haveCluster = false
		return nil
	}
	body := writeUintElement(idTimecode, uint64(m.clusterTimecodeTk))
	body = append(body, m.clusterBuf...)
	m.haveCluster = false
	return m.w.WriteBytes(writeMasterElement(idCluster, body))
}

func (m *muxer) WriteTrailer() error {
	if err := m.flushCluster(); err != nil {
		return err
	}
	endPos, err := m.w.Position()
	if err != nil {
		return err
	}
	durationTicks := float64(m.maxPTSNano) / float64(tickNS)
	if err := m.w.SeekTo(m.infoDurationPos); err != nil {
		return err
	}
	if err := m.w.WriteU64BE(math.Float64bits(durationTicks)); err != nil {
		return err
	}
	return m.w.SeekTo(endPos)
}

func (m *muxer) Close() error { return nil }

// buildSimpleBlock encodes one SimpleBlock element body: track-number
// vint, signed 16-bit relative timecode, a flags byte (only the keyframe
// bit is ever set — lacing is never used), then the raw frame payload.
func buildSimpleBlock(trackNumber uint64, relTicks int16, keyframe bool, payload []byte) []byte {
	var flags byte
	if keyframe {
		flags = 0x80
	}
	body := make([]byte, 0, 4+len(payload))
	body = append(body, writeElementSize(trackNumber)...)
	body = append(body, byte(uint16(relTicks)>>8), byte(relTicks))
	body = append(body, flags)
	body = append(body, payload...)
	return writeMasterElement(idSimpleBlock, body)
}

func unknownSizeBytes() []byte {
	return []byte{0x01, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

func writeFloatElement(id uint32, v float64) []byte {
	out := append([]byte{}, writeElementID(id)...)
	out = append(out, writeElementSize(8)...)
	bits := math.Float64bits(v)
	for i := 7; i >= 0; i-- {
		out = append(out, byte(bits>>(8*uint(i))))
	}
	return out
}

func pcmBitDepth(id mediatype.CodecID) int {
	switch id {
	case mediatype.CodecPCMU8:
		return 8
	case mediatype.CodecPCMS16LE, mediatype.CodecPCMS16BE:
		return 16
	case mediatype.CodecPCMS24LE:
		return 24
	case mediatype.CodecPCMS32LE, mediatype.CodecPCMF32LE:
		return 32
	default:
		return 0
	}
}

// matroskaCodecIDForOurs is the mux-side inverse of codecParamsFor.
func matroskaCodecIDForOurs(id mediatype.CodecID) (string, error) {
	switch id {
	case mediatype.CodecH264:
		return "V_MPEG4/ISO/AVC", nil
	case mediatype.CodecMPEG4Part2:
		return "V_MPEG4/ISO/ASP", nil
	case mediatype.CodecVP8:
		return "V_VP8", nil
	case mediatype.CodecVP9:
		return "V_VP9", nil
	case mediatype.CodecAV1:
		return "V_AV1", nil
	case mediatype.CodecAAC:
		return "A_AAC", nil
	case mediatype.CodecMP3:
		return "A_MPEG/L3", nil
	case mediatype.CodecVorbis:
		return "A_VORBIS", nil
	case mediatype.CodecFLAC:
		return "A_FLAC", nil
	case mediatype.CodecPCMU8, mediatype.CodecPCMS16LE, mediatype.CodecPCMS24LE, mediatype.CodecPCMS32LE:
		return "A_PCM/INT/LIT", nil
	case mediatype.CodecPCMS16BE:
		return "A_PCM/INT/BIG", nil
	case mediatype.CodecPCMF32LE:
		return "A_PCM/FLOAT/IEEE", nil
	default:
		return "", mediaerr.NewUnsupported("mkv: codec %s has no Matroska CodecID mapping", id)
	}
}
