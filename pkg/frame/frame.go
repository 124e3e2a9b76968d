// Package frame implements the decoded-media tagged union of spec.md §3:
// Frame, which is either an AudioFrame or a VideoFrame. Go has no sum
// types, so — following the teacher's preference for explicit structs
// over interface-hidden variants in internal/models — Frame carries both
// payload structs with a Kind discriminant rather than hiding them behind
// an interface.
package frame

import (
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/rational"
)

// Kind discriminates which payload a Frame carries.
type Kind int

const (
	KindAudio Kind = iota
	KindVideo
)

// AudioFrame is a decoded block of PCM audio, planar or interleaved
// depending on Format and the decoder that produced it.
type AudioFrame struct {
	Format     mediatype.SampleFormat
	Layout     mediatype.ChannelLayout
	SampleRate int
	// Planes holds one []byte per channel for planar formats, or a single
	// element for interleaved formats. Decoders document which they emit.
	Planes     [][]byte
	NumSamples int
	PTS        int64
	TimeBase   rational.Rational
}

// VideoFrame is a decoded image, one []byte per plane with its own stride.
type VideoFrame struct {
	Format     mediatype.PixelFormat
	Width      int
	Height     int
	Planes     [][]byte
	Strides    []int
	PTS        int64
	TimeBase   rational.Rational
	IsKeyframe bool
}

// Frame is the decoder output: exactly one of Audio or Video is populated,
// selected by Kind.
type Frame struct {
	Kind  Kind
	Audio AudioFrame
	Video VideoFrame
}

// MediaType reports which media type this frame carries.
func (f Frame) MediaType() mediatype.MediaType {
	if f.Kind == KindAudio {
		return mediatype.Audio
	}
	return mediatype.Video
}

// NewAudio constructs an audio Frame.
func NewAudio(a AudioFrame) Frame {
	return Frame{Kind: KindAudio, Audio: a}
}

// NewVideo constructs a video Frame.
func NewVideo(v VideoFrame) Frame {
	return Frame{Kind: KindVideo, Video: v}
}
