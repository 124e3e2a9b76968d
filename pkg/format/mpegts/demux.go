package mpegts

import (
	"strconv"

	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/metrics"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// tb90k is the fixed 90kHz clock every MPEG-TS PTS/DTS is expressed in;
// exposing it directly as the stream time base avoids any rescale on the
// demux path.
var tb90k = rational.Rational{Num: 1, Den: ptsClockHz}

type esSample struct {
	seq      int64
	pts      int64
	dts      int64
	keyframe bool
	data     []byte
}

type esStream struct {
	pid       uint16
	streamTyp byte
	st        stream.Stream
	pesBuf    []byte
	pesOpen   bool
	samples   []esSample
}

type demuxer struct {
	r            *bytestream.Reader
	patSeen      bool
	pmtPID       uint16
	pmtSeen      bool
	patBuf       []byte
	pmtBuf       []byte
	streams      map[uint16]*esStream // by PID
	order        []uint16             // PID discovery order, for stable Streams() indexing
	streamsCache []stream.Stream
	cursors      []int
	seqCounter   int64
	lastCC       map[uint16]byte // last continuity_counter seen per PID
}

func openDemuxer(s bytestream.ByteStream) (*demuxer, error) {
	r := bytestream.NewReader(s)
	d := &demuxer{r: r, streams: make(map[uint16]*esStream), lastCC: make(map[uint16]byte)}

	for {
		pkt, err := r.ReadBytes(packetSize)
		if err != nil {
			if err == mediaerr.Eof {
				break
			}
			return nil, err
		}
		if pkt[0] != syncByte {
			return nil, mediaerr.NewInvalidData("mpegts: lost sync (expected 0x47)")
		}
		if err := d.handlePacket(pkt); err != nil {
			return nil, err
		}
	}
	d.flushAllPES()

	if len(d.order) == 0 {
		return nil, mediaerr.NewInvalidData("mpegts: no elementary streams found")
	}

	streamsOut := make([]stream.Stream, 0, len(d.order))
	for i, pid := range d.order {
		es := d.streams[pid]
		es.st.Index = i
		if len(es.samples) > 0 {
			last := es.samples[len(es.samples)-1]
			es.st.Duration = last.pts + 1
		}
		streamsOut = append(streamsOut, es.st)
	}
	d.cursors = make([]int, len(d.order))
	d.streamsCache = streamsOut
	return d, nil
}

func (d *demuxer) handlePacket(pkt []byte) error {
	pid := uint16(pkt[1]&0x1F)<<8 | uint16(pkt[2])
	if pid == pidNull {
		return nil
	}
	pusi := pkt[1]&0x40 != 0
	afc := (pkt[3] >> 4) & 0x3
	if afc == 0 {
		return nil
	}
	pos := 4
	if afc == 2 || afc == 3 {
		if pos >= len(pkt) {
			return nil
		}
		adaptLen := int(pkt[pos])
		pos += 1 + adaptLen
	}
	cc := pkt[3] & 0x0F
	d.checkContinuity(pid, cc)
	if afc == 2 {
		return nil // adaptation field only, no payload
	}
	if pos > len(pkt) {
		return mediaerr.NewInvalidData("mpegts: adaptation field overruns packet")
	}
	payload := pkt[pos:]

	switch {
	case pid == pidPAT:
		var sections [][]byte
		d.patBuf, sections = accumulatePSI(d.patBuf, payload, pusi)
		for _, sec := range sections {
			d.parsePAT(sec)
		}
	case d.pmtSeen && pid == d.pmtPID:
		var sections [][]byte
		d.pmtBuf, sections = accumulatePSI(d.pmtBuf, payload, pusi)
		for _, sec := range sections {
			d.parsePMT(sec)
		}
	default:
		if es, ok := d.streams[pid]; ok {
			d.feedPES(es, payload, pusi)
		}
	}
	return nil
}

// checkContinuity tracks each PID's 4-bit continuity_counter and counts a
// gap (a jump other than +1 mod 16, or a same-value repeat the packet
// already accounted for) as a dropped packet in transit. Demuxing
// continues past the gap rather than aborting: feedPES/accumulatePSI see
// whatever data actually arrived, the same recovery behavior a player
// tolerating a lossy broadcast feed needs.
func (d *demuxer) checkContinuity(pid uint16, cc byte) {
	last, seen := d.lastCC[pid]
	d.lastCC[pid] = cc
	if !seen {
		return
	}
	if cc == last || cc == (last+1)&0x0F {
		return
	}
	metrics.GapFillTotal.WithLabelValues(strconv.Itoa(int(pid))).Inc()
}

func accumulatePSI(buf []byte, payload []byte, pusi bool) ([]byte, [][]byte) {
	p := payload
	if pusi {
		if len(p) == 0 {
			return buf, nil
		}
		pointer := int(p[0])
		p = p[1:]
		if pointer > len(p) {
			pointer = len(p)
		}
		var sections [][]byte
		if len(buf) > 0 {
			buf = append(buf, p[:pointer]...)
			if total, ok := psiSectionLen(buf); ok && len(buf) >= total {
				sections = append(sections, append([]byte(nil), buf[:total]...))
			}
		}
		buf = append([]byte(nil), p[pointer:]...)
		more := drainPSI(&buf)
		return buf, append(sections, more...)
	}
	buf = append(buf, payload...)
	sections := drainPSI(&buf)
	return buf, sections
}

func psiSectionLen(buf []byte) (int, bool) {
	if len(buf) < 3 {
		return 0, false
	}
	secLen := int(buf[1]&0x0F)<<8 | int(buf[2])
	return 3 + secLen, true
}

// drainPSI pulls every complete section out of the front of *buf,
// leaving only a trailing partial section (or nothing).
func drainPSI(buf *[]byte) [][]byte {
	var out [][]byte
	for {
		b := *buf
		if len(b) == 0 || b[0] == 0xFF {
			*buf = nil
			return out
		}
		total, ok := psiSectionLen(b)
		if !ok || total > len(b) {
			return out
		}
		out = append(out, append([]byte(nil), b[:total]...))
		*buf = b[total:]
	}
}

func (d *demuxer) parsePAT(sec []byte) {
	if d.pmtSeen || len(sec) < 8 {
		return
	}
	if !sectionCRCValid(sec) {
		metrics.CRCMismatchTotal.WithLabelValues("pat").Inc()
		return
	}
	secLen := int(sec[1]&0x0F)<<8 | int(sec[2])
	end := 3 + secLen - 4 // exclude CRC32
	if end > len(sec) {
		end = len(sec)
	}
	for pos := 8; pos+4 <= end; pos += 4 {
		programNumber := uint16(sec[pos])<<8 | uint16(sec[pos+1])
		pid := uint16(sec[pos+2]&0x1F)<<8 | uint16(sec[pos+3])
		if programNumber != 0 {
			d.pmtPID = pid
			d.pmtSeen = true
			return
		}
	}
}

func (d *demuxer) parsePMT(sec []byte) {
	if len(sec) < 12 {
		return
	}
	if !sectionCRCValid(sec) {
		metrics.CRCMismatchTotal.WithLabelValues("pmt").Inc()
		return
	}
	secLen := int(sec[1]&0x0F)<<8 | int(sec[2])
	end := 3 + secLen - 4
	if end > len(sec) {
		end = len(sec)
	}
	programInfoLen := int(sec[10]&0x0F)<<8 | int(sec[11])
	pos := 12 + programInfoLen
	for pos+5 <= end {
		streamTyp := sec[pos]
		pid := uint16(sec[pos+1]&0x1F)<<8 | uint16(sec[pos+2])
		esInfoLen := int(sec[pos+3]&0x0F)<<8 | int(sec[pos+4])
		pos += 5 + esInfoLen

		if _, ok := d.streams[pid]; ok {
			continue
		}
		mt, par, ok := codecParamsForStreamType(streamTyp)
		if !ok {
			continue
		}
		es := &esStream{pid: pid, streamTyp: streamTyp, st: stream.Stream{
			MediaType: mt,
			TimeBase:  tb90k,
			Duration:  rational.NoPTS,
			CodecPar:  par,
		}}
		d.streams[pid] = es
		d.order = append(d.order, pid)
	}
}

// sectionCRCValid recomputes psiCRC32 over sec's header+body and compares
// it against the trailing 4-byte CRC-32 mux.go's wrapPSISection appended.
func sectionCRCValid(sec []byte) bool {
	if len(sec) < 4 {
		return false
	}
	want := uint32(sec[len(sec)-4])<<24 | uint32(sec[len(sec)-3])<<16 | uint32(sec[len(sec)-2])<<8 | uint32(sec[len(sec)-1])
	return psiCRC32(sec[:len(sec)-4]) == want
}

func codecParamsForStreamType(st byte) (mediatype.MediaType, stream.CodecParameters, bool) {
	var par stream.CodecParameters
	switch st {
	case streamTypeH264:
		par.CodecID = mediatype.CodecH264
		par.PixelFormat = mediatype.PixelFormatYUV420P
		return mediatype.Video, par, true
	case streamTypeH265:
		par.CodecID = mediatype.CodecH265
		return mediatype.Video, par, true
	case streamTypeMPEG4Video:
		par.CodecID = mediatype.CodecMPEG4Part2
		par.PixelFormat = mediatype.PixelFormatYUV420P
		return mediatype.Video, par, true
	case streamTypeMPEG1Video, streamTypeMPEG2Video:
		par.CodecID = mediatype.CodecMPEG4Part2 // recognised family, not bit-exact MPEG-1/2 Part 2 decode
		par.PixelFormat = mediatype.PixelFormatYUV420P
		return mediatype.Video, par, true
	case streamTypeAACADTS:
		par.CodecID = mediatype.CodecAAC
		par.Format = mediatype.SampleFormatF32
		return mediatype.Audio, par, true
	case streamTypeMPEG1Audio, streamTypeMPEG2Audio:
		par.CodecID = mediatype.CodecMP3
		par.Format = mediatype.SampleFormatF32
		return mediatype.Audio, par, true
	case streamTypeAC3:
		par.CodecID = mediatype.CodecAC3
		return mediatype.Audio, par, true
	default:
		return mediatype.Unknown, par, false
	}
}

func (d *demuxer) feedPES(es *esStream, payload []byte, pusi bool) {
	if pusi {
		if es.pesOpen {
			d.emitPES(es)
		}
		es.pesBuf = append([]byte(nil), payload...)
		es.pesOpen = true
		return
	}
	if !es.pesOpen {
		return
	}
	es.pesBuf = append(es.pesBuf, payload...)
}

func (d *demuxer) flushAllPES() {
	for _, pid := range d.order {
		es := d.streams[pid]
		if es.pesOpen {
			d.emitPES(es)
		}
	}
}

func (d *demuxer) emitPES(es *esStream) {
	buf := es.pesBuf
	es.pesBuf = nil
	es.pesOpen = false

	hdr, ok := parsePESHeader(buf)
	if !ok {
		return
	}
	pts := hdr.pts
	dts := hdr.dts
	if !hdr.haveDTS {
		dts = pts
	}
	if !hdr.havePTS {
		pts, dts = rational.NoPTS, rational.NoPTS
	}

	keyframe := es.st.IsAudio() || detectKeyframe(es.st.CodecPar.CodecID, hdr.payload)
	d.seqCounter++
	es.samples = append(es.samples, esSample{
		seq: d.seqCounter, pts: pts, dts: dts, keyframe: keyframe,
		data: append([]byte(nil), hdr.payload...),
	})
}

type pesHeader struct {
	havePTS, haveDTS bool
	pts, dts         int64
	payload          []byte
}

func parsePESHeader(data []byte) (pesHeader, bool) {
	if len(data) < 9 || data[0] != 0 || data[1] != 0 || data[2] != 1 {
		return pesHeader{}, false
	}
	flags2 := data[7]
	ptsDtsFlags := (flags2 >> 6) & 0x3
	headerDataLen := int(data[8])
	pos := 9
	var h pesHeader
	if ptsDtsFlags&0x2 != 0 && pos+5 <= len(data) {
		h.pts = decodePESTimestamp(data[pos : pos+5])
		h.havePTS = true
		pos += 5
		if ptsDtsFlags == 0x3 && pos+5 <= len(data) {
			h.dts = decodePESTimestamp(data[pos : pos+5])
			h.haveDTS = true
			pos += 5
		}
	}
	payloadStart := 9 + headerDataLen
	if payloadStart > len(data) {
		payloadStart = len(data)
	}
	h.payload = data[payloadStart:]
	return h, true
}

// decodePESTimestamp decodes a 5-byte 33-bit PTS/DTS field (ISO/IEC
// 13818-1 §2.4.3.6), stripping its marker bits.
func decodePESTimestamp(b []byte) int64 {
	return (int64(b[0]&0x0E) << 29) |
		(int64(b[1]) << 22) |
		(int64(b[2]&0xFE) << 14) |
		(int64(b[3]) << 7) |
		(int64(b[4]) >> 1)
}

// detectKeyframe inspects a video access unit for its codec's intra-frame
// marker; audio access units are always independently decodable and
// never reach here.
func detectKeyframe(id mediatype.CodecID, data []byte) bool {
	switch id {
	case mediatype.CodecH264, mediatype.CodecH265:
		return h264HasIDR(data)
	case mediatype.CodecMPEG4Part2:
		return mpeg12OrPart2Keyframe(data)
	default:
		return true
	}
}

func h264HasIDR(data []byte) bool {
	for i := 0; i+3 < len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			if i+3 >= len(data) {
				break
			}
			nalType := data[i+3] & 0x1F
			if nalType == 5 {
				return true
			}
			i += 2
		}
	}
	return false
}

// mpeg12OrPart2Keyframe looks for a picture/VOP start code and reads its
// coding-type field: for MPEG-1/2 the 3-bit picture_coding_type after the
// 10-bit temporal_reference, where 1 means an I frame; for MPEG-4 Part 2
// the 2-bit vop_coding_type right after the start code, where 0 means an
// I frame.
func mpeg12OrPart2Keyframe(data []byte) bool {
	for i := 0; i+5 < len(data); i++ {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			switch data[i+3] {
			case 0x00: // picture_start_code
				codingType := (data[i+5] >> 3) & 0x7
				return codingType == 1
			case 0xB6: // MPEG-4 Part 2 VOP start code
				codingType := data[i+4] >> 6
				return codingType == 0
			}
		}
	}
	return false
}

func (d *demuxer) Streams() []stream.Stream { return d.streamsCache }

func (d *demuxer) ReadPacket() (*packet.Packet, error) {
	best := -1
	var bestSeq int64
	for i, pid := range d.order {
		es := d.streams[pid]
		if d.cursors[i] >= len(es.samples) {
			continue
		}
		seq := es.samples[d.cursors[i]].seq
		if best == -1 || seq < bestSeq {
			best = i
			bestSeq = seq
		}
	}
	if best == -1 {
		return nil, mediaerr.Eof
	}
	es := d.streams[d.order[best]]
	sm := es.samples[d.cursors[best]]
	d.cursors[best]++

	p := packet.New(best, sm.data, tb90k)
	p.PTS = sm.pts
	p.DTS = sm.dts
	p.IsKeyframe = sm.keyframe
	return p, nil
}

func (d *demuxer) SeekTo(streamIndex int, ts int64) error {
	if streamIndex < 0 || streamIndex >= len(d.order) {
		return mediaerr.NewStreamNotFound(streamIndex)
	}
	return mediaerr.NewUnsupported("mpegts: seeking requires an index this demuxer does not build")
}

func (d *demuxer) Duration() (float64, bool) { return 0, false }

func (d *demuxer) Close() error { return nil }
