package flv

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// tbMillis is FLV's implicit time base: every tag timestamp (and video's
// composition time offset) is in milliseconds.
var tbMillis = rational.Rational{Num: 1, Den: 1000}

type flvSample struct {
	seq      int64
	pts      int64
	dts      int64
	keyframe bool
	data     []byte
}

type flvTrack struct {
	st      stream.Stream
	samples []flvSample
}

// demuxer reads every FLV tag in one forward pass (grounded on the same
// "no seekability required" design as pkg/format/mpegts: FLV carries no
// trailing index of its own), classifying tags into at most one video and
// one audio track, the classic FLV single-elementary-stream-per-type
// model.
type demuxer struct {
	r          *bytestream.Reader
	video      *flvTrack
	audio      *flvTrack
	order      []*flvTrack
	cursors    []int
	seqCounter int64
}

func openDemuxer(s bytestream.ByteStream) (*demuxer, error) {
	r := bytestream.NewReader(s)
	d := &demuxer{r: r}

	if err := d.readFileHeader(); err != nil {
		return nil, err
	}

	for {
		if err := d.readTag(); err != nil {
			if err == mediaerr.Eof {
				break
			}
			return nil, err
		}
	}

	if d.video != nil {
		d.video.st.Index = len(d.order)
		d.order = append(d.order, d.video)
	}
	if d.audio != nil {
		d.audio.st.Index = len(d.order)
		d.order = append(d.order, d.audio)
	}
	if len(d.order) == 0 {
		return nil, mediaerr.NewInvalidData("flv: no audio or video tags found")
	}
	for _, t := range d.order {
		if len(t.samples) > 0 {
			t.st.Duration = t.samples[len(t.samples)-1].dts + 1
		}
	}
	d.cursors = make([]int, len(d.order))
	return d, nil
}

func (d *demuxer) readFileHeader() error {
	sig, err := d.r.ReadBytes(3)
	if err != nil {
		return err
	}
	if string(sig) != "FLV" {
		return mediaerr.NewInvalidData("flv: bad signature")
	}
	if _, err := d.r.ReadU8(); err != nil { // version
		return err
	}
	if _, err := d.r.ReadU8(); err != nil { // type flags, unused: tracks are discovered from tags
		return err
	}
	headerSize, err := d.r.ReadU32BE()
	if err != nil {
		return err
	}
	if headerSize > 9 {
		if err := d.r.Skip(int64(headerSize - 9)); err != nil {
			return err
		}
	}
	if _, err := d.r.ReadU32BE(); err != nil { // PreviousTagSize0, always 0
		return err
	}
	return nil
}

func (d *demuxer) readTag() error {
	tagType, err := d.r.ReadU8()
	if err != nil {
		return err
	}
	dataSize, err := d.r.ReadU24BE()
	if err != nil {
		return err
	}
	tsLow, err := d.r.ReadU24BE()
	if err != nil {
		return err
	}
	tsExt, err := d.r.ReadU8()
	if err != nil {
		return err
	}
	timestamp := int64(tsExt)<<24 | int64(tsLow)
	if err := d.r.Skip(3); err != nil { // StreamID, always 0
		return err
	}

	body, err := d.r.ReadBytes(int(dataSize))
	if err != nil {
		return err
	}
	if _, err := d.r.ReadU32BE(); err != nil { // PreviousTagSize
		return err
	}

	switch tagType {
	case tagTypeAudio:
		d.handleAudioTag(timestamp, body)
	case tagTypeVideo:
		d.handleVideoTag(timestamp, body)
	case tagTypeScriptData:
		// onMetaData AMF payload; carries no data this core needs.
	}
	return nil
}

func (d *demuxer) handleAudioTag(ts int64, body []byte) {
	if len(body) < 1 {
		return
	}
	soundFormat := body[0] >> 4

	var codecID mediatype.CodecID
	switch soundFormat {
	case soundFormatAAC:
		codecID = mediatype.CodecAAC
	case soundFormatMP3, soundFormatMP3_8kHz:
		codecID = mediatype.CodecMP3
	default:
		return // unsupported audio codec family
	}

	if soundFormat == soundFormatAAC {
		if len(body) < 2 {
			return
		}
		packetType := body[1]
		payload := body[2:]
		if packetType == aacPacketTypeSeqHeader {
			d.ensureAudioTrack(codecID, append([]byte(nil), payload...))
			return
		}
		d.appendAudioSample(codecID, ts, payload)
		return
	}

	// MP3: no packet-type byte, the rest of the body is one frame.
	d.appendAudioSample(codecID, ts, body[1:])
}

func (d *demuxer) ensureAudioTrack(codecID mediatype.CodecID, extraData []byte) {
	if d.audio == nil {
		d.audio = &flvTrack{st: stream.Stream{
			MediaType: mediatype.Audio,
			TimeBase:  tbMillis,
			Duration:  rational.NoPTS,
			CodecPar:  stream.CodecParameters{CodecID: codecID, Format: mediatype.SampleFormatF32},
		}}
	}
	if extraData != nil {
		d.audio.st.CodecPar.ExtraData = extraData
	}
}

func (d *demuxer) appendAudioSample(codecID mediatype.CodecID, ts int64, payload []byte) {
	d.ensureAudioTrack(codecID, nil)
	d.seqCounter++
	d.audio.samples = append(d.audio.samples, flvSample{
		seq: d.seqCounter, pts: ts, dts: ts, keyframe: true,
		data: append([]byte(nil), payload...),
	})
}

func (d *demuxer) handleVideoTag(ts int64, body []byte) {
	if len(body) < 1 {
		return
	}
	frameType := body[0] >> 4
	codecID := body[0] & 0x0F
	if codecID != videoCodecIDAVC {
		return // unsupported video codec family (VP6, Sorenson H263, screen video, ...)
	}
	if frameType == frameTypeInfoCommand {
		return
	}
	if len(body) < 5 {
		return
	}
	packetType := body[1]
	cts := int64(body[2])<<16 | int64(body[3])<<8 | int64(body[4])
	cts = signExtend24(cts)
	payload := body[5:]

	if packetType == avcPacketTypeSeqHeader {
		d.ensureVideoTrack(append([]byte(nil), payload...))
		return
	}
	if packetType == avcPacketTypeEndOfSeq {
		return
	}

	d.ensureVideoTrack(nil)
	d.seqCounter++
	d.video.samples = append(d.video.samples, flvSample{
		seq: d.seqCounter, pts: ts + cts, dts: ts,
		keyframe: frameType == frameTypeKeyframe || frameType == frameTypeGeneratedKey,
		data:     append([]byte(nil), payload...),
	})
}

func (d *demuxer) ensureVideoTrack(extraData []byte) {
	if d.video == nil {
		d.video = &flvTrack{st: stream.Stream{
			MediaType: mediatype.Video,
			TimeBase:  tbMillis,
			Duration:  rational.NoPTS,
			CodecPar:  stream.CodecParameters{CodecID: mediatype.CodecH264, PixelFormat: mediatype.PixelFormatYUV420P},
		}}
	}
	if extraData != nil {
		d.video.st.CodecPar.ExtraData = extraData
	}
}

func signExtend24(v int64) int64 {
	if v&0x800000 != 0 {
		return v - 0x1000000
	}
	return v
}

func (d *demuxer) Streams() []stream.Stream {
	out := make([]stream.Stream, len(d.order))
	for i, t := range d.order {
		out[i] = t.st
	}
	return out
}

func (d *demuxer) ReadPacket() (*packet.Packet, error) {
	best := -1
	var bestSeq int64
	for i, t := range d.order {
		if d.cursors[i] >= len(t.samples) {
			continue
		}
		seq := t.samples[d.cursors[i]].seq
		if best == -1 || seq < bestSeq {
			best = i
			bestSeq = seq
		}
	}
	if best == -1 {
		return nil, mediaerr.Eof
	}
	t := d.order[best]
	sm := t.samples[d.cursors[best]]
	d.cursors[best]++

	p := packet.New(best, sm.data, tbMillis)
	p.PTS = sm.pts
	p.DTS = sm.dts
	p.IsKeyframe = sm.keyframe
	return p, nil
}

func (d *demuxer) SeekTo(streamIndex int, ts int64) error {
	if streamIndex < 0 || streamIndex >= len(d.order) {
		return mediaerr.NewStreamNotFound(streamIndex)
	}
	return mediaerr.NewUnsupported("flv: seeking requires an index this demuxer does not build")
}

func (d *demuxer) Duration() (float64, bool) { return 0, false }

func (d *demuxer) Close() error { return nil }
