package mkv

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// tbNanosecond is the uniform nanosecond time base every mkv stream is
// exposed in: Matroska's per-track timestamps are all derived from the
// single Segment-wide TimecodeScale, so there is no reason to carry a
// separate time base per track the way mp4's per-track timescales do.
var tbNanosecond = rational.Rational{Num: 1, Den: 1_000_000_000}

// sample is one reconstructed access unit: its track, absolute
// presentation time (ns), keyframe flag, and payload. seq is the order
// the block was encountered in the file, used to interleave tracks the
// way mp4's demuxer interleaves by byte offset.
type sample struct {
	seq      int64
	ptsNS    int64
	keyframe bool
	data     []byte
}

type mkvTrack struct {
	number  uint64
	st      stream.Stream
	samples []sample
}

type demuxer struct {
	r             *bytestream.Reader
	timecodeScale uint64 // ns per tick, default 1_000_000 (1ms)
	durationTicks float64
	tracks        []*mkvTrack
	byNumber      map[uint64]*mkvTrack
	streams       []stream.Stream
	cursors       []int
	seqCounter    int64
}

func openDemuxer(s bytestream.ByteStream) (*demuxer, error) {
	if !s.IsSeekable() {
		return nil, mediaerr.NewUnsupported("mkv: demuxer requires a seekable stream")
	}
	r := bytestream.NewReader(s)
	fileEnd, _ := s.Size()

	d := &demuxer{r: r, timecodeScale: 1_000_000, byNumber: make(map[uint64]*mkvTrack)}

	head, err := readElement(r, fileEnd)
	if err != nil {
		return nil, err
	}
	if head.id != idEBML {
		return nil, mediaerr.NewInvalidData("mkv: missing EBML header")
	}
	if err := r.SeekTo(head.bodyEnd); err != nil {
		return nil, err
	}

	seg, err := readElement(r, fileEnd)
	if err != nil {
		return nil, err
	}
	if seg.id != idSegment {
		return nil, mediaerr.NewInvalidData("mkv: missing top-level Segment")
	}
	segEnd := seg.bodyEnd
	if !seg.sizeKnown || segEnd > fileEnd {
		segEnd = fileEnd
	}

	if err := d.walkSegment(seg.bodyStart, segEnd); err != nil {
		return nil, err
	}

	if len(d.tracks) == 0 {
		return nil, mediaerr.NewInvalidData("mkv: no tracks found")
	}
	for _, t := range d.tracks {
		if len(t.samples) > 0 {
			last := t.samples[len(t.samples)-1]
			t.st.Duration = last.ptsNS + 1
		}
		d.streams = append(d.streams, t.st)
		d.cursors = append(d.cursors, 0)
	}
	return d, nil
}

func (d *demuxer) walkSegment(start, end int64) error {
	if err := d.r.SeekTo(start); err != nil {
		return err
	}
	for {
		pos, err := d.r.Position()
		if err != nil {
			return err
		}
		if pos >= end {
			break
		}
		e, err := readElement(d.r, end)
		if err != nil {
			if err == mediaerr.Eof {
				break
			}
			return err
		}
		switch e.id {
		case idInfo:
			if err := d.parseInfo(e); err != nil {
				return err
			}
		case idTracks:
			if err := d.parseTracks(e); err != nil {
				return err
			}
		case idCluster:
			if err := d.parseCluster(e); err != nil {
				return err
			}
		}
		if err := d.r.SeekTo(e.bodyEnd); err != nil {
			if err == mediaerr.Eof {
				break
			}
			return err
		}
	}
	return nil
}

func (d *demuxer) parseInfo(info element) error {
	if err := d.r.SeekTo(info.bodyStart); err != nil {
		return err
	}
	for {
		pos, _ := d.r.Position()
		if pos >= info.bodyEnd {
			break
		}
		e, err := readElement(d.r, info.bodyEnd)
		if err != nil {
			return err
		}
		switch e.id {
		case idTimecodeScale:
			v, err := readUint(d.r, e)
			if err != nil {
				return err
			}
			if v > 0 {
				d.timecodeScale = v
			}
		case idDuration:
			v, err := readFloat(d.r, e)
			if err != nil {
				return err
			}
			d.durationTicks = v
		}
		if err := d.r.SeekTo(e.bodyEnd); err != nil {
			return err
		}
	}
	return nil
}

func (d *demuxer) parseTracks(tracks element) error {
	if err := d.r.SeekTo(tracks.bodyStart); err != nil {
		return err
	}
	for {
		pos, _ := d.r.Position()
		if pos >= tracks.bodyEnd {
			break
		}
		e, err := readElement(d.r, tracks.bodyEnd)
		if err != nil {
			return err
		}
		if e.id == idTrackEntry {
			t, err := d.parseTrackEntry(e)
			if err != nil {
				return err
			}
			if t != nil {
				d.tracks = append(d.tracks, t)
				d.byNumber[t.number] = t
			}
		}
		if err := d.r.SeekTo(e.bodyEnd); err != nil {
			return err
		}
	}
	return nil
}

func (d *demuxer) parseTrackEntry(entry element) (*mkvTrack, error) {
	if err := d.r.SeekTo(entry.bodyStart); err != nil {
		return nil, err
	}
	var number uint64
	var trackType uint64
	var codecID string
	var codecPrivate []byte
	var lang, name string
	var width, height int
	var sampleRate int
	var channels int
	var bitDepth int
	var defaultDurNS uint64

	for {
		pos, _ := d.r.Position()
		if pos >= entry.bodyEnd {
			break
		}
		e, err := readElement(d.r, entry.bodyEnd)
		if err != nil {
			return nil, err
		}
		switch e.id {
		case idTrackNumber:
			number, err = readUint(d.r, e)
		case idTrackType:
			trackType, err = readUint(d.r, e)
		case idCodecID:
			codecID, err = readString(d.r, e)
		case idCodecPrivate:
			codecPrivate, err = readBytes(d.r, e)
		case idLanguage:
			lang, err = readString(d.r, e)
		case idName:
			name, err = readUTF8String(d.r, e)
		case idDefaultDur:
			defaultDurNS, err = readUint(d.r, e)
		case idVideo:
			width, height, err = d.parseVideoSettings(e)
		case idAudio:
			sampleRate, channels, bitDepth, err = d.parseAudioSettings(e)
		}
		if err != nil {
			return nil, err
		}
		if err := d.r.SeekTo(e.bodyEnd); err != nil {
			return nil, err
		}
	}

	isVideo, ok := matroskaCodecIDFor(codecID)
	if !ok || number == 0 {
		return nil, nil // unsupported/malformed track: skip rather than fail the whole file
	}

	var mt mediatype.MediaType
	switch trackType {
	case 1:
		mt = mediatype.Video
	case 2:
		mt = mediatype.Audio
	default:
		if isVideo {
			mt = mediatype.Video
		} else {
			mt = mediatype.Audio
		}
	}

	par := codecParamsFor(codecID, codecPrivate)
	if mt == mediatype.Video {
		par.Width, par.Height = width, height
	} else {
		par.SampleRate = sampleRate
		par.Channels = channels
		par.Layout = layoutForChannels(channels)
		if bitDepth > 0 {
			par.Format = sampleFormatForDepth(par.CodecID, bitDepth)
		}
	}

	st := stream.Stream{
		MediaType: mt,
		TimeBase:  tbNanosecond,
		Duration:  rational.NoPTS,
		CodecPar:  par,
		Metadata:  stream.Metadata{Language: lang, Title: name},
	}
	if defaultDurNS > 0 && mt == mediatype.Video {
		fr, err := rational.New(1_000_000_000, int32(defaultDurNS))
		if err == nil {
			st.FrameRate = fr
		}
	}
	return &mkvTrack{number: number, st: st}, nil
}

func (d *demuxer) parseVideoSettings(video element) (width, height int, err error) {
	if err = d.r.SeekTo(video.bodyStart); err != nil {
		return
	}
	for {
		pos, _ := d.r.Position()
		if pos >= video.bodyEnd {
			break
		}
		var e element
		e, err = readElement(d.r, video.bodyEnd)
		if err != nil {
			return
		}
		switch e.id {
		case idPixelWidth:
			var v uint64
			v, err = readUint(d.r, e)
			width = int(v)
		case idPixelHeight:
			var v uint64
			v, err = readUint(d.r, e)
			height = int(v)
		}
		if err != nil {
			return
		}
		if err = d.r.SeekTo(e.bodyEnd); err != nil {
			return
		}
	}
	return
}

func (d *demuxer) parseAudioSettings(audio element) (sampleRate, channels, bitDepth int, err error) {
	if err = d.r.SeekTo(audio.bodyStart); err != nil {
		return
	}
	sampleRate = 8000 // Matroska's documented default when SamplingFrequency is absent
	channels = 1
	for {
		pos, _ := d.r.Position()
		if pos >= audio.bodyEnd {
			break
		}
		var e element
		e, err = readElement(d.r, audio.bodyEnd)
		if err != nil {
			return
		}
		switch e.id {
		case idSamplingFreq:
			var v float64
			v, err = readFloat(d.r, e)
			sampleRate = int(v)
		case idChannels:
			var v uint64
			v, err = readUint(d.r, e)
			channels = int(v)
		case idBitDepth:
			var v uint64
			v, err = readUint(d.r, e)
			bitDepth = int(v)
		}
		if err != nil {
			return
		}
		if err = d.r.SeekTo(e.bodyEnd); err != nil {
			return
		}
	}
	return
}

func (d *demuxer) parseCluster(cluster element) error {
	if err := d.r.SeekTo(cluster.bodyStart); err != nil {
		return err
	}
	var clusterTimecode uint64
	for {
		pos, _ := d.r.Position()
		if pos >= cluster.bodyEnd {
			break
		}
		e, err := readElement(d.r, cluster.bodyEnd)
		if err != nil {
			return err
		}
		switch e.id {
		case idTimecode:
			v, err := readUint(d.r, e)
			if err != nil {
				return err
			}
			clusterTimecode = v
		case idSimpleBlock:
			b, err := readBytes(d.r, e)
			if err != nil {
				return err
			}
			if err := d.ingestBlock(b, clusterTimecode, true); err != nil {
				return err
			}
		case idBlockGroup:
			if err := d.parseBlockGroup(e, clusterTimecode); err != nil {
				return err
			}
		}
		if err := d.r.SeekTo(e.bodyEnd); err != nil {
			return err
		}
	}
	return nil
}

func (d *demuxer) parseBlockGroup(bg element, clusterTimecode uint64) error {
	if err := d.r.SeekTo(bg.bodyStart); err != nil {
		return err
	}
	for {
		pos, _ := d.r.Position()
		if pos >= bg.bodyEnd {
			break
		}
		e, err := readElement(d.r, bg.bodyEnd)
		if err != nil {
			return err
		}
		if e.id == idBlock {
			b, err := readBytes(d.r, e)
			if err != nil {
				return err
			}
			// A Block inside a BlockGroup (rather than a SimpleBlock) is
			// only used for frames that need a separate BlockDuration/
			// ReferenceBlock; absent an explicit keyframe flag we treat
			// it as non-sync, matching ReferenceBlock's usual presence.
			if err := d.ingestBlock(b, clusterTimecode, false); err != nil {
				return err
			}
		}
		if err := d.r.SeekTo(e.bodyEnd); err != nil {
			return err
		}
	}
	return nil
}

// ingestBlock decodes one (Simple)Block's header — track number vint,
// 16-bit signed relative timecode, flags byte — and its lace-free
// payload (spec.md §4.1.2 only requires "no lacing" support; a laced
// block's flags bits 1-2 are rejected as unsupported).
func (d *demuxer) ingestBlock(b []byte, clusterTimecode uint64, defaultKeyframe bool) error {
	pos := 0
	trackNum, n := readVintInline(b, pos)
	if n == 0 {
		return mediaerr.NewInvalidData("mkv: malformed block track number")
	}
	pos += n
	if pos+3 > len(b) {
		return mediaerr.NewInvalidData("mkv: truncated block header")
	}
	relTimecode := bytesToInt16(b[pos : pos+2])
	flags := b[pos+2]
	pos += 3
	if flags&0x06 != 0 {
		return mediaerr.NewUnsupported("mkv: laced blocks are not supported")
	}
	keyframe := defaultKeyframe && flags&0x80 != 0
	t, ok := d.byNumber[trackNum]
	if !ok {
		return nil // packet for a track we chose not to surface
	}
	ticks := int64(clusterTimecode) + int64(relTimecode)
	ptsNS := ticks * int64(d.timecodeScale)
	d.seqCounter++
	data := append([]byte(nil), b[pos:]...)
	t.samples = append(t.samples, sample{seq: d.seqCounter, ptsNS: ptsNS, keyframe: keyframe, data: data})
	return nil
}

// readVintInline decodes an EBML vint (length-marker stripped) directly
// out of an in-memory block header, returning its value and width.
func readVintInline(b []byte, pos int) (uint64, int) {
	if pos >= len(b) {
		return 0, 0
	}
	width := vintWidth(b[pos])
	if width == 0 || pos+width > len(b) {
		return 0, 0
	}
	v := uint64(b[pos]) &^ (0xff << uint(8-width))
	for i := 1; i < width; i++ {
		v = v<<8 | uint64(b[pos+i])
	}
	return v, width
}

func (d *demuxer) Streams() []stream.Stream { return d.streams }

func (d *demuxer) ReadPacket() (*packet.Packet, error) {
	best := -1
	var bestSeq int64
	for i, t := range d.tracks {
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
	t := d.tracks[best]
	sm := t.samples[d.cursors[best]]
	d.cursors[best]++

	p := packet.New(best, sm.data, tbNanosecond)
	p.PTS = sm.ptsNS
	p.DTS = sm.ptsNS
	p.IsKeyframe = sm.keyframe
	return p, nil
}

func (d *demuxer) SeekTo(streamIndex int, ts int64) error {
	if streamIndex < 0 || streamIndex >= len(d.tracks) {
		return mediaerr.NewStreamNotFound(streamIndex)
	}
	t := d.tracks[streamIndex]
	target := 0
	for i, sm := range t.samples {
		if sm.ptsNS <= ts {
			target = i
		} else {
			break
		}
	}
	for target > 0 && !t.samples[target].keyframe {
		target--
	}
	d.cursors[streamIndex] = target
	return nil
}

func (d *demuxer) Duration() (float64, bool) {
	if d.durationTicks <= 0 {
		return 0, false
	}
	return d.durationTicks * float64(d.timecodeScale) / 1e9, true
}

func (d *demuxer) Close() error { return nil }

func layoutForChannels(n int) mediatype.ChannelLayout {
	switch n {
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

func sampleFormatForDepth(id mediatype.CodecID, depth int) mediatype.SampleFormat {
	switch id {
	case mediatype.CodecPCMF32LE:
		return mediatype.SampleFormatF32
	}
	switch depth {
	case 8:
		return mediatype.SampleFormatU8
	case 16:
		return mediatype.SampleFormatS16
	case 24, 32:
		return mediatype.SampleFormatS32
	default:
		return mediatype.SampleFormatUnknown
	}
}

// codecParamsFor builds the CodecParameters for a track's Matroska
// CodecID, attaching CodecPrivate as ExtraData where the target decoder
// expects out-of-band configuration (spec.md §6).
func codecParamsFor(codecID string, codecPrivate []byte) stream.CodecParameters {
	var par stream.CodecParameters
	switch codecID {
	case "V_MPEG4/ISO/AVC":
		par.CodecID = mediatype.CodecH264
		par.PixelFormat = mediatype.PixelFormatYUV420P
		par.ExtraData = codecPrivate
	case "V_MPEG4/ISO/ASP", "V_MPEG4/MS/V3":
		par.CodecID = mediatype.CodecMPEG4Part2
		par.PixelFormat = mediatype.PixelFormatYUV420P
		par.ExtraData = codecPrivate
	case "V_VP8":
		par.CodecID = mediatype.CodecVP8
	case "V_VP9":
		par.CodecID = mediatype.CodecVP9
	case "V_AV1":
		par.CodecID = mediatype.CodecAV1
		par.ExtraData = codecPrivate
	case "A_AAC":
		par.CodecID = mediatype.CodecAAC
		par.Format = mediatype.SampleFormatF32
		par.ExtraData = codecPrivate
	case "A_MPEG/L3":
		par.CodecID = mediatype.CodecMP3
		par.Format = mediatype.SampleFormatF32
	case "A_VORBIS":
		par.CodecID = mediatype.CodecVorbis
		par.Format = mediatype.SampleFormatF32
		par.ExtraData = codecPrivate
	case "A_FLAC":
		par.CodecID = mediatype.CodecFLAC
		par.Format = mediatype.SampleFormatS32
		par.ExtraData = codecPrivate
	case "A_PCM/INT/LIT":
		par.CodecID = mediatype.CodecPCMS16LE
	case "A_PCM/INT/BIG":
		par.CodecID = mediatype.CodecPCMS16BE
	case "A_PCM/FLOAT/IEEE":
		par.CodecID = mediatype.CodecPCMF32LE
		par.Format = mediatype.SampleFormatF32
	default:
		par.CodecID = mediatype.CodecUnknown
	}
	return par
}
