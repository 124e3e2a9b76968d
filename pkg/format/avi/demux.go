package avi

import (
	"strings"

	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/format"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// aviStream tracks demux-time bookkeeping per strl beyond what
// stream.Stream carries: the chunk-id prefix ("00", "01", ...) this
// stream's movi chunks are tagged with, and the running sample index used
// to derive PTS when no per-chunk timestamp exists (AVI has none).
type aviStream struct {
	st        stream.Stream
	chunkID   string // e.g. "00dc" or "01wb"
	sampleIdx int64
	frameDur  int64 // TimeBase units per chunk (video: 1; audio: samples/chunk)
}

type chunkRef struct {
	tag    string
	offset int64 // absolute file offset of the chunk's data
	size   uint32
	key    bool
}

type demuxer struct {
	r         *bytestream.Reader
	streams   []*aviStream
	movi      []chunkRef
	idx       int
	durationU int64 // total duration, in seconds*AVI_TIME_BASE terms via dwMicroSecPerFrame
}

func openDemuxer(s bytestream.ByteStream) (format.Demuxer, error) {
	r := bytestream.NewReader(s)

	if tag, err := r.ReadTag(); err != nil || tag != "RIFF" {
		return nil, mediaerr.NewInvalidData("avi: missing RIFF tag")
	}
	riffSize, err := r.ReadU32LE()
	if err != nil {
		return nil, err
	}
	if tag, err := r.ReadTag(); err != nil || tag != "AVI " {
		return nil, mediaerr.NewInvalidData("avi: missing AVI form tag")
	}
	riffEnd := int64(8) + int64(riffSize)

	d := &demuxer{r: r}
	var microSecPerFrame uint32

	for {
		pos, _ := r.Position()
		if pos >= riffEnd {
			break
		}
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
		bodyStart, _ := r.Position()
		bodyEnd := bodyStart + int64(size)

		switch tag {
		case "LIST":
			listType, err := r.ReadTag()
			if err != nil {
				return nil, err
			}
			switch listType {
			case "hdrl":
				msf, err := d.parseHdrl(bodyEnd)
				if err != nil {
					return nil, err
				}
				microSecPerFrame = msf
			case "movi":
				if err := d.parseMovi(bodyStart+4, bodyEnd); err != nil {
					return nil, err
				}
			default:
				// INFO and other metadata LISTs: skip.
			}
		case "idx1":
			if err := d.parseIdx1(bodyEnd); err != nil {
				return nil, err
			}
		}
		if err := r.SeekTo(bodyEnd); err != nil {
			return nil, err
		}
		if size%2 == 1 {
			if err := r.Skip(1); err != nil {
				return nil, err
			}
		}
	}

	if len(d.streams) == 0 {
		return nil, mediaerr.NewInvalidData("avi: no strl streams found")
	}
	if microSecPerFrame > 0 {
		for _, as := range d.streams {
			if as.st.IsVideo() && as.st.FrameRate.Num == 0 {
				as.st.FrameRate, _ = rational.New(1000000, int32(microSecPerFrame))
			}
		}
	}

	return d, nil
}

// parseHdrl walks the avih header and each strl (strh+strf) inside the
// hdrl LIST body, populating d.streams.
func (d *demuxer) parseHdrl(bound int64) (uint32, error) {
	var microSecPerFrame uint32
	streamIdx := 0
	for {
		pos, _ := d.r.Position()
		if pos >= bound {
			break
		}
		tag, err := d.r.ReadTag()
		if err != nil {
			return 0, err
		}
		size, err := d.r.ReadU32LE()
		if err != nil {
			return 0, err
		}
		bodyStart, _ := d.r.Position()
		bodyEnd := bodyStart + int64(size)

		switch tag {
		case "avih":
			microSecPerFrame, err = d.r.ReadU32LE()
			if err != nil {
				return 0, err
			}
		case "LIST":
			listType, err := d.r.ReadTag()
			if err != nil {
				return 0, err
			}
			if listType == "strl" {
				as, err := d.parseStrl(bodyStart+4, bodyEnd, streamIdx)
				if err != nil {
					return 0, err
				}
				if as != nil {
					d.streams = append(d.streams, as)
					streamIdx++
				}
			}
		}
		if err := d.r.SeekTo(bodyEnd); err != nil {
			return 0, err
		}
		if size%2 == 1 {
			if err := d.r.Skip(1); err != nil {
				return 0, err
			}
		}
	}
	return microSecPerFrame, nil
}

func (d *demuxer) parseStrl(start, bound int64, index int) (*aviStream, error) {
	if err := d.r.SeekTo(start); err != nil {
		return nil, err
	}

	var fccType, fccHandler string
	var scale, rate uint32
	var suggestedBufSize uint32
	var par stream.CodecParameters
	var mt mediatype.MediaType
	var width, height int

	for {
		pos, _ := d.r.Position()
		if pos >= bound {
			break
		}
		tag, err := d.r.ReadTag()
		if err != nil {
			return nil, err
		}
		size, err := d.r.ReadU32LE()
		if err != nil {
			return nil, err
		}
		bodyStart, _ := d.r.Position()
		bodyEnd := bodyStart + int64(size)

		switch tag {
		case "strh":
			fccType, _ = d.r.ReadTag()
			fccHandler, _ = d.r.ReadTag()
			if err := d.r.Skip(4 + 2 + 2 + 4); err != nil { // flags, priority, language, initialFrames
				return nil, err
			}
			scale, err = d.r.ReadU32LE()
			if err != nil {
				return nil, err
			}
			rate, err = d.r.ReadU32LE()
			if err != nil {
				return nil, err
			}
			if err := d.r.Skip(4 + 4); err != nil { // start, length
				return nil, err
			}
			suggestedBufSize, _ = d.r.ReadU32LE()
			switch fccType {
			case streamTypeVideo:
				mt = mediatype.Video
				par.CodecID = videoCodecFor(fccHandler)
				par.PixelFormat = mediatype.PixelFormatYUV420P
			case streamTypeAudio:
				mt = mediatype.Audio
			}
		case "strf":
			switch mt {
			case mediatype.Video:
				if err := d.r.Skip(4); err != nil { // biSize
					return nil, err
				}
				w, err := d.r.ReadS32LE()
				if err != nil {
					return nil, err
				}
				h, err := d.r.ReadS32LE()
				if err != nil {
					return nil, err
				}
				width, height = int(w), abs32(int(h))
			case mediatype.Audio:
				formatTag, err := d.r.ReadU16LE()
				if err != nil {
					return nil, err
				}
				channels, err := d.r.ReadU16LE()
				if err != nil {
					return nil, err
				}
				sampleRate, err := d.r.ReadU32LE()
				if err != nil {
					return nil, err
				}
				if err := d.r.Skip(4); err != nil { // avg bytes/sec
					return nil, err
				}
				if err := d.r.Skip(2); err != nil { // block align
					return nil, err
				}
				bits, err := d.r.ReadU16LE()
				if err != nil {
					return nil, err
				}
				par.CodecID = audioCodecFor(formatTag, bits)
				par.SampleRate = int(sampleRate)
				par.Channels = int(channels)
				par.Layout = layoutForChannels(int(channels))
			}
		}
		if err := d.r.SeekTo(bodyEnd); err != nil {
			return nil, err
		}
		if size%2 == 1 {
			if err := d.r.Skip(1); err != nil {
				return nil, err
			}
		}
	}

	if mt == mediatype.Unknown || scale == 0 || rate == 0 {
		return nil, nil
	}

	tb, _ := rational.New(int32(scale), int32(rate))
	par.Width, par.Height = width, height

	st := stream.Stream{
		Index:     index,
		MediaType: mt,
		TimeBase:  tb,
		Duration:  rational.NoPTS,
		CodecPar:  par,
	}
	chunkSuffix := "dc"
	frameDur := int64(1)
	if mt == mediatype.Audio {
		chunkSuffix = "wb"
		frameDur = int64(suggestedBufSize)
	}
	_ = fccHandler
	return &aviStream{
		st:       st,
		chunkID:  twoDigit(index) + chunkSuffix,
		frameDur: frameDur,
	}, nil
}

func (d *demuxer) parseMovi(start, bound int64) error {
	pos := start
	for pos < bound {
		if err := d.r.SeekTo(pos); err != nil {
			return err
		}
		tag, err := d.r.ReadTag()
		if err != nil {
			break
		}
		size, err := d.r.ReadU32LE()
		if err != nil {
			break
		}
		dataStart, _ := d.r.Position()
		if tag == "LIST" {
			// "rec " sub-list interleaving: recurse into its body.
			if err := d.parseMovi(dataStart+4, dataStart+int64(size)); err != nil {
				return err
			}
		} else if strings.HasSuffix(tag, "db") || strings.HasSuffix(tag, "dc") || strings.HasSuffix(tag, "wb") {
			d.movi = append(d.movi, chunkRef{tag: tag, offset: dataStart, size: size})
		}
		pos = dataStart + int64(size)
		if size%2 == 1 {
			pos++
		}
	}
	return nil
}

func (d *demuxer) parseIdx1(bound int64) error {
	i := 0
	for {
		pos, _ := d.r.Position()
		if pos+16 > bound {
			break
		}
		ckid, err := d.r.ReadTag()
		if err != nil {
			return err
		}
		flags, err := d.r.ReadU32LE()
		if err != nil {
			return err
		}
		if err := d.r.Skip(4); err != nil { // chunk offset (ambiguous base; movi scan is authoritative)
			return err
		}
		if err := d.r.Skip(4); err != nil { // chunk length
			return err
		}
		if i < len(d.movi) && d.movi[i].tag == ckid {
			d.movi[i].key = flags&0x10 != 0 // AVIIF_KEYFRAME
		}
		i++
	}
	return nil
}

func (d *demuxer) Streams() []stream.Stream {
	out := make([]stream.Stream, len(d.streams))
	for i, as := range d.streams {
		out[i] = as.st
	}
	return out
}

func (d *demuxer) ReadPacket() (*packet.Packet, error) {
	for d.idx < len(d.movi) {
		c := d.movi[d.idx]
		d.idx++
		as := d.streamForChunk(c.tag)
		if as == nil || c.size == 0 {
			continue
		}
		if err := d.r.SeekTo(c.offset); err != nil {
			return nil, err
		}
		buf, err := d.r.ReadBytes(int(c.size))
		if err != nil {
			return nil, err
		}
		p := packet.New(as.st.Index, buf, as.st.TimeBase)
		p.PTS = as.sampleIdx
		p.DTS = as.sampleIdx
		p.Duration = as.frameDur
		p.IsKeyframe = c.key || as.st.IsAudio()
		p.Pos = c.offset
		as.sampleIdx += as.frameDur
		return p, nil
	}
	return nil, mediaerr.Eof
}

func (d *demuxer) streamForChunk(tag string) *aviStream {
	for _, as := range d.streams {
		if as.chunkID == tag {
			return as
		}
	}
	return nil
}

func (d *demuxer) SeekTo(streamIndex int, ts int64) error {
	for _, as := range d.streams {
		if as.st.Index != streamIndex {
			continue
		}
		best := -1
		for i, c := range d.movi {
			if c.tag != as.chunkID {
				continue
			}
			if !c.key && as.st.IsVideo() {
				continue
			}
			best = i
			if int64(i) >= ts {
				break
			}
		}
		if best < 0 {
			return mediaerr.NewInvalidArgument("avi: no keyframe found for seek")
		}
		d.idx = best
		return nil
	}
	return mediaerr.NewStreamNotFound(streamIndex)
}

func (d *demuxer) Close() error { return nil }

func videoCodecFor(fourcc string) mediatype.CodecID {
	switch strings.ToUpper(fourcc) {
	case fourccH264, "AVC1", "X264":
		return mediatype.CodecH264
	case fourccXVID, fourccFMP4, "DIVX", "DX50", "MP4V":
		return mediatype.CodecMPEG4Part2
	case "MJPG":
		return mediatype.CodecMJPEG
	default:
		return mediatype.CodecUnknown
	}
}

func audioCodecFor(formatTag, bits uint16) mediatype.CodecID {
	switch formatTag {
	case wavFormatPCM:
		switch bits {
		case 8:
			return mediatype.CodecPCMU8
		case 16:
			return mediatype.CodecPCMS16LE
		case 24:
			return mediatype.CodecPCMS24LE
		case 32:
			return mediatype.CodecPCMS32LE
		}
	case wavFormatIEEEFloat:
		return mediatype.CodecPCMF32LE
	case wavFormatMP3:
		return mediatype.CodecMP3
	case wavFormatAAC:
		return mediatype.CodecAAC
	}
	return mediatype.CodecUnknown
}

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

func abs32(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func twoDigit(n int) string {
	if n < 0 {
		n = 0
	}
	if n > 99 {
		n = 99
	}
	const digits = "0123456789"
	return string([]byte{digits[n/10], digits[n%10]})
}
