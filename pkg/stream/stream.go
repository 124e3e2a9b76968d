// Package stream implements the container-level stream descriptor and
// codec parameters of spec.md §3, extended per the supplemental metadata
// fields described for this repository (language/title tagging, codec
// profile/level) that a complete implementation carries even though the
// distilled core model omits them.
package stream

import (
	"github.com/google/uuid"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/rational"
)

// CodecParameters describes the codec-specific configuration of one
// stream: its codec id, any out-of-band extra data (SPS/PPS, VorbisComment
// setup packets, FLAC STREAMINFO, esds/avcC), and the decoded geometry.
type CodecParameters struct {
	CodecID mediatype.CodecID

	// ExtraData carries codec-specific out-of-band configuration: H.264
	// SPS/PPS (as an avcC-style record or raw Annex-B, per the source
	// container), MPEG-4 Part 2 VOL header, Vorbis identification/setup
	// packets concatenated per Xiph lacing, or a FLAC STREAMINFO block.
	ExtraData []byte

	// Audio geometry; zero for video streams.
	SampleRate int
	Channels   int
	Layout     mediatype.ChannelLayout
	Format     mediatype.SampleFormat

	// Video geometry; zero for audio streams.
	Width             int
	Height            int
	PixelFormat       mediatype.PixelFormat
	SampleAspectRatio rational.Rational

	// Profile and Level are codec-specific (e.g. H.264 "High" profile at
	// level 4.1); left as free-form strings since each codec defines its
	// own vocabulary and numbering.
	Profile string
	Level   string

	BitRate int64
}

// Metadata carries stream-level tags a container's stream table can carry
// but which have no bearing on decode: language, a free-form title, and
// any other string tags the source container exposed.
type Metadata struct {
	Language string
	Title    string
	Extra    map[string]string
}

// Stream is one elementary stream within a container: its index, media
// type, codec parameters, timing, and descriptive metadata.
type Stream struct {
	Index     int
	MediaType mediatype.MediaType
	TimeBase  rational.Rational
	Duration  int64 // in TimeBase units, rational.NoPTS if unknown
	CodecPar  CodecParameters
	Metadata  Metadata

	// FrameRate is the nominal video frame rate, or the zero Rational for
	// audio/subtitle streams and variable-frame-rate video.
	FrameRate rational.Rational
}

// IsAudio reports whether this stream carries audio.
func (s Stream) IsAudio() bool { return s.MediaType == mediatype.Audio }

// IsVideo reports whether this stream carries video.
func (s Stream) IsVideo() bool { return s.MediaType == mediatype.Video }

// NewCorrelationID returns a fresh random id for tagging one stream's
// decode/encode pipeline in log output, so every log line for that
// stream within a run can be grepped out by a single field even though
// its goroutine interleaves with every other stream's.
func NewCorrelationID() string {
	return uuid.New().String()
}
