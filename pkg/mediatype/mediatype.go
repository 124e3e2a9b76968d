// Package mediatype implements the core enum types of spec.md §3:
// MediaType, SampleFormat, PixelFormat, and ChannelLayout. The
// string-backed-enum-with-String()-method idiom follows the teacher's
// internal/codec/codec.go constant blocks.
package mediatype

import "fmt"

// MediaType is the sum type {Video, Audio, Subtitle, Data, Unknown}.
type MediaType int

const (
	Unknown MediaType = iota
	Video
	Audio
	Subtitle
	Data
)

func (m MediaType) String() string {
	switch m {
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Subtitle:
		return "subtitle"
	case Data:
		return "data"
	default:
		return "unknown"
	}
}

// CodecID enumerates every decoder/encoder this core implements, plus a
// handful of recognised-but-unsupported ids used for diagnostics when a
// container points at a codec we don't decode.
type CodecID int

const (
	CodecUnknown CodecID = iota

	// Audio
	CodecPCMU8
	CodecPCMS16LE
	CodecPCMS16BE
	CodecPCMS24LE
	CodecPCMS32LE
	CodecPCMF32LE
	CodecMP3
	CodecVorbis
	CodecFLAC
	CodecAAC

	// Video
	CodecH264
	CodecMPEG4Part2
	CodecMJPEG

	// Recognised but not implemented — demuxers still surface the stream.
	CodecH265
	CodecVP8
	CodecVP9
	CodecAV1
	CodecAC3
	CodecOpus
)

func (c CodecID) String() string {
	switch c {
	case CodecPCMU8:
		return "pcm_u8"
	case CodecPCMS16LE:
		return "pcm_s16le"
	case CodecPCMS16BE:
		return "pcm_s16be"
	case CodecPCMS24LE:
		return "pcm_s24le"
	case CodecPCMS32LE:
		return "pcm_s32le"
	case CodecPCMF32LE:
		return "pcm_f32le"
	case CodecMP3:
		return "mp3"
	case CodecVorbis:
		return "vorbis"
	case CodecFLAC:
		return "flac"
	case CodecAAC:
		return "aac"
	case CodecH264:
		return "h264"
	case CodecMPEG4Part2:
		return "mpeg4"
	case CodecMJPEG:
		return "mjpeg"
	case CodecH265:
		return "h265"
	case CodecVP8:
		return "vp8"
	case CodecVP9:
		return "vp9"
	case CodecAV1:
		return "av1"
	case CodecAC3:
		return "ac3"
	case CodecOpus:
		return "opus"
	default:
		return "unknown"
	}
}

// ParseCodecID reverses CodecID.String, for CLI flags that name a target
// codec by its short name (e.g. "aac", "pcm_s16le").
func ParseCodecID(name string) (CodecID, error) {
	for id := CodecUnknown; id <= CodecOpus; id++ {
		if id != CodecUnknown && id.String() == name {
			return id, nil
		}
	}
	return CodecUnknown, fmt.Errorf("mediatype: unrecognised codec name %q", name)
}

// IsAudio reports whether this codec id decodes audio.
func (c CodecID) IsAudio() bool {
	switch c {
	case CodecPCMU8, CodecPCMS16LE, CodecPCMS16BE, CodecPCMS24LE, CodecPCMS32LE,
		CodecPCMF32LE, CodecMP3, CodecVorbis, CodecFLAC, CodecAAC, CodecAC3, CodecOpus:
		return true
	default:
		return false
	}
}

// IsVideo reports whether this codec id decodes video.
func (c CodecID) IsVideo() bool {
	switch c {
	case CodecH264, CodecMPEG4Part2, CodecMJPEG, CodecH265, CodecVP8, CodecVP9, CodecAV1:
		return true
	default:
		return false
	}
}

// SampleFormat enumerates decoded PCM sample encodings.
type SampleFormat int

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatU8
	SampleFormatS16
	SampleFormatS32
	SampleFormatF32
	SampleFormatF64
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatU8:
		return "u8"
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatF32:
		return "f32"
	case SampleFormatF64:
		return "f64"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the storage width of one sample in this format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8:
		return 1
	case SampleFormatS16:
		return 2
	case SampleFormatS32, SampleFormatF32:
		return 4
	case SampleFormatF64:
		return 8
	default:
		return 0
	}
}

// PixelFormat enumerates decoded image plane layouts.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatYUV420P
	PixelFormatYUV422P
	PixelFormatYUV444P
	PixelFormatRGB24
	PixelFormatRGBA
)

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatYUV420P:
		return "yuv420p"
	case PixelFormatYUV422P:
		return "yuv422p"
	case PixelFormatYUV444P:
		return "yuv444p"
	case PixelFormatRGB24:
		return "rgb24"
	case PixelFormatRGBA:
		return "rgba"
	default:
		return "unknown"
	}
}

// PlaneCount returns the number of independent planes for this format.
func (f PixelFormat) PlaneCount() int {
	switch f {
	case PixelFormatYUV420P, PixelFormatYUV422P, PixelFormatYUV444P:
		return 3
	case PixelFormatRGB24, PixelFormatRGBA:
		return 1
	default:
		return 0
	}
}

// ChromaSubsampling returns the horizontal and vertical chroma divisors
// relative to the luma plane (1,1 for 4:4:4 and packed formats).
func (f PixelFormat) ChromaSubsampling() (horiz, vert int) {
	switch f {
	case PixelFormatYUV420P:
		return 2, 2
	case PixelFormatYUV422P:
		return 2, 1
	default:
		return 1, 1
	}
}

// ChannelLayout describes the speaker arrangement of an audio frame.
type ChannelLayout int

const (
	ChannelLayoutUnknown ChannelLayout = iota
	ChannelLayoutMono
	ChannelLayoutStereo
	ChannelLayout5Point1
)

func (l ChannelLayout) String() string {
	switch l {
	case ChannelLayoutMono:
		return "mono"
	case ChannelLayoutStereo:
		return "stereo"
	case ChannelLayout5Point1:
		return "5.1"
	default:
		return "unknown"
	}
}

// Channels returns the channel count implied by the layout.
func (l ChannelLayout) Channels() int {
	switch l {
	case ChannelLayoutMono:
		return 1
	case ChannelLayoutStereo:
		return 2
	case ChannelLayout5Point1:
		return 6
	default:
		return 0
	}
}
