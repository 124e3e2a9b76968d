package avi

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

type outStream struct {
	par      stream.CodecParameters
	timeBase rational.Rational
	chunkID  string
	strhPos  int64 // absolute offset of this stream's strh dwLength field
	frameCnt uint32
	byteCnt  uint32
	isVideo  bool
}

type idxEntry struct {
	chunkID string
	flags   uint32
	offset  uint32 // relative to movi list body start
	size    uint32
}

type muxer struct {
	w         *bytestream.Writer
	streams   []*outStream
	moviStart int64 // absolute offset of movi list body start (after "movi" tag)
	idx       []idxEntry
	wroteHdr  bool
}

func newMuxer(s bytestream.ByteStream) *muxer {
	return &muxer{w: bytestream.NewWriter(s)}
}

func (m *muxer) AddStream(par stream.CodecParameters, timeBase rational.Rational) (int, error) {
	suffix := "dc"
	isVideo := par.CodecID.IsVideo()
	if !isVideo {
		suffix = "wb"
	}
	idx := len(m.streams)
	m.streams = append(m.streams, &outStream{
		par: par, timeBase: timeBase,
		chunkID: twoDigit(idx) + suffix, isVideo: isVideo,
	})
	return idx, nil
}

func (m *muxer) WriteHeader() error {
	if len(m.streams) == 0 {
		return mediaerr.NewInvalidArgument("avi: no streams added")
	}

	if err := m.w.WriteTag("RIFF"); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // patched in WriteTrailer
		return err
	}
	if err := m.w.WriteTag("AVI "); err != nil {
		return err
	}

	hdrlSizePos, err := m.w.Position()
	if err != nil {
		return err
	}
	if err := m.w.WriteTag("LIST"); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil {
		return err
	}
	if err := m.w.WriteTag("hdrl"); err != nil {
		return err
	}

	microSecPerFrame := uint32(1000000)
	if fr := videoFrameRate(m.streams); fr.IsValid() && fr.Num != 0 {
		microSecPerFrame = uint32(int64(fr.Den) * 1000000 / int64(fr.Num))
	}

	if err := m.w.WriteTag("avih"); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(56); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(microSecPerFrame); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // maxBytesPerSec
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // paddingGranularity
		return err
	}
	if err := m.w.WriteU32LE(0x0910); err != nil { // HASINDEX|ISINTERLEAVED|TRUSTCKTYPE
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // totalFrames, patched
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // initialFrames
		return err
	}
	if err := m.w.WriteU32LE(uint32(len(m.streams))); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(1 << 20); err != nil { // suggestedBufferSize
		return err
	}
	w, h := videoDims(m.streams)
	if err := m.w.WriteU32LE(uint32(w)); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(uint32(h)); err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		if err := m.w.WriteU32LE(0); err != nil { // reserved
			return err
		}
	}

	for _, os := range m.streams {
		if err := m.writeStrl(os); err != nil {
			return err
		}
	}

	hdrlEnd, err := m.w.Position()
	if err != nil {
		return err
	}
	if err := patchU32(m.w, hdrlSizePos+4, uint32(hdrlEnd-hdrlSizePos-8)); err != nil {
		return err
	}

	if err := m.w.WriteTag("LIST"); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // patched in WriteTrailer
		return err
	}
	if err := m.w.WriteTag("movi"); err != nil {
		return err
	}
	moviStart, err := m.w.Position()
	if err != nil {
		return err
	}
	m.moviStart = moviStart
	m.wroteHdr = true
	return nil
}

func (m *muxer) writeStrl(os *outStream) error {
	strlSizePos, err := m.w.Position()
	if err != nil {
		return err
	}
	if err := m.w.WriteTag("LIST"); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil {
		return err
	}
	if err := m.w.WriteTag("strl"); err != nil {
		return err
	}

	if err := m.w.WriteTag("strh"); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(56); err != nil {
		return err
	}
	fccType := streamTypeVideo
	var fccHandler string
	if !os.isVideo {
		fccType = streamTypeAudio
		fccHandler = "\x00\x00\x00\x00"
	} else {
		fccHandler = videoFourCC(os.par.CodecID)
	}
	if err := m.w.WriteTag(fccType); err != nil {
		return err
	}
	if err := m.w.WriteTag(fccHandler); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // flags
		return err
	}
	if err := m.w.WriteU16LE(0); err != nil { // priority
		return err
	}
	if err := m.w.WriteU16LE(0); err != nil { // language
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // initialFrames
		return err
	}
	if err := m.w.WriteU32LE(uint32(os.timeBase.Num)); err != nil { // scale
		return err
	}
	if err := m.w.WriteU32LE(uint32(os.timeBase.Den)); err != nil { // rate
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // start
		return err
	}
	lengthPos, err := m.w.Position()
	if err != nil {
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // length, patched
		return err
	}
	os.strhPos = lengthPos
	if err := m.w.WriteU32LE(1 << 18); err != nil { // suggestedBufferSize
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // quality
		return err
	}
	if err := m.w.WriteU32LE(0); err != nil { // sampleSize
		return err
	}
	if err := m.w.WriteU64LE(0); err != nil { // rcFrame
		return err
	}

	if err := m.w.WriteTag("strf"); err != nil {
		return err
	}
	if os.isVideo {
		if err := m.w.WriteU32LE(40); err != nil {
			return err
		}
		if err := m.w.WriteU32LE(40); err != nil { // biSize
			return err
		}
		if err := m.w.WriteU32LE(uint32(os.par.Width)); err != nil {
			return err
		}
		if err := m.w.WriteU32LE(uint32(os.par.Height)); err != nil {
			return err
		}
		if err := m.w.WriteU16LE(1); err != nil { // planes
			return err
		}
		if err := m.w.WriteU16LE(24); err != nil { // bitCount
			return err
		}
		if err := m.w.WriteTag(videoFourCC(os.par.CodecID)); err != nil {
			return err
		}
		if err := m.w.WriteU32LE(uint32(os.par.Width * os.par.Height * 3 / 2)); err != nil {
			return err
		}
		for i := 0; i < 4; i++ {
			if err := m.w.WriteU32LE(0); err != nil {
				return err
			}
		}
	} else {
		formatTag, bits := wavFormatFor(os.par.CodecID)
		if err := m.w.WriteU32LE(16); err != nil {
			return err
		}
		if err := m.w.WriteU16LE(formatTag); err != nil {
			return err
		}
		if err := m.w.WriteU16LE(uint16(os.par.Channels)); err != nil {
			return err
		}
		if err := m.w.WriteU32LE(uint32(os.par.SampleRate)); err != nil {
			return err
		}
		blockAlign := uint16(os.par.Channels) * (bits / 8)
		if err := m.w.WriteU32LE(uint32(os.par.SampleRate) * uint32(blockAlign)); err != nil {
			return err
		}
		if err := m.w.WriteU16LE(blockAlign); err != nil {
			return err
		}
		if err := m.w.WriteU16LE(bits); err != nil {
			return err
		}
	}

	strlEnd, err := m.w.Position()
	if err != nil {
		return err
	}
	return patchU32(m.w, strlSizePos+4, uint32(strlEnd-strlSizePos-8))
}

func (m *muxer) WritePacket(p *packet.Packet) error {
	if !m.wroteHdr {
		return mediaerr.NewInvalidArgument("avi: WriteHeader not called")
	}
	if p.StreamIndex < 0 || p.StreamIndex >= len(m.streams) {
		return mediaerr.NewStreamNotFound(p.StreamIndex)
	}
	os := m.streams[p.StreamIndex]

	chunkStart, err := m.w.Position()
	if err != nil {
		return err
	}
	if err := m.w.WriteTag(os.chunkID); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(uint32(p.Size())); err != nil {
		return err
	}
	if err := m.w.WriteBytes(p.Bytes()); err != nil {
		return err
	}
	if p.Size()%2 == 1 {
		if err := m.w.WriteBytes([]byte{0}); err != nil {
			return err
		}
	}

	flags := uint32(0)
	if p.IsKeyframe || !os.isVideo {
		flags = 0x10 // AVIIF_KEYFRAME
	}
	m.idx = append(m.idx, idxEntry{
		chunkID: os.chunkID,
		flags:   flags,
		offset:  uint32(chunkStart - m.moviStart),
		size:    uint32(p.Size()),
	})
	os.frameCnt++
	os.byteCnt += uint32(p.Size())
	return nil
}

func (m *muxer) WriteTrailer() error {
	moviEnd, err := m.w.Position()
	if err != nil {
		return err
	}
	moviListSizePos := m.moviStart - 8
	if err := patchU32(m.w, moviListSizePos, uint32(moviEnd-moviListSizePos-4)); err != nil {
		return err
	}

	if err := m.w.SeekTo(moviEnd); err != nil {
		return err
	}
	if err := m.w.WriteTag("idx1"); err != nil {
		return err
	}
	if err := m.w.WriteU32LE(uint32(len(m.idx) * 16)); err != nil {
		return err
	}
	for _, e := range m.idx {
		if err := m.w.WriteTag(e.chunkID); err != nil {
			return err
		}
		if err := m.w.WriteU32LE(e.flags); err != nil {
			return err
		}
		if err := m.w.WriteU32LE(e.offset); err != nil {
			return err
		}
		if err := m.w.WriteU32LE(e.size); err != nil {
			return err
		}
	}

	fileEnd, err := m.w.Position()
	if err != nil {
		return err
	}
	if err := patchU32(m.w, 4, uint32(fileEnd-8)); err != nil {
		return err
	}

	var maxFrames uint32
	for _, os := range m.streams {
		if os.frameCnt > maxFrames {
			maxFrames = os.frameCnt
		}
		if err := patchU32(m.w, os.strhPos, os.frameCnt); err != nil {
			return err
		}
	}
	// avih.dwTotalFrames sits at offset 4+4+4("RIFF"+size+"AVI ") +
	// 4+4+4("LIST"+size+"hdrl") + 4+4("avih"+size) + 4(microSecPerFrame) +
	// 4+4+4(maxBytesPerSec,paddingGranularity,flags) = 48.
	return patchU32(m.w, 48, maxFrames)
}

func (m *muxer) Close() error { return nil }

func patchU32(w *bytestream.Writer, pos int64, v uint32) error {
	back, err := w.Position()
	if err != nil {
		return err
	}
	if err := w.SeekTo(pos); err != nil {
		return err
	}
	if err := w.WriteU32LE(v); err != nil {
		return err
	}
	return w.SeekTo(back)
}

func videoFrameRate(streams []*outStream) rational.Rational {
	for _, os := range streams {
		if os.isVideo {
			return os.timeBase.Invert()
		}
	}
	return rational.Rational{}
}

func videoDims(streams []*outStream) (int, int) {
	for _, os := range streams {
		if os.isVideo {
			return os.par.Width, os.par.Height
		}
	}
	return 0, 0
}

func videoFourCC(id mediatype.CodecID) string {
	switch id {
	case mediatype.CodecH264:
		return fourccH264
	case mediatype.CodecMPEG4Part2:
		return fourccXVID
	case mediatype.CodecMJPEG:
		return "MJPG"
	default:
		return "\x00\x00\x00\x00"
	}
}

func wavFormatFor(id mediatype.CodecID) (uint16, uint16) {
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
	case mediatype.CodecMP3:
		return wavFormatMP3, 16
	case mediatype.CodecAAC:
		return wavFormatAAC, 16
	default:
		return wavFormatPCM, 16
	}
}
