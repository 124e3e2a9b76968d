// Package avi implements the RIFF/AVI container of spec.md §4.1.5: a
// "hdrl" LIST (avih + per-stream strl: strh + strf) followed by a "movi"
// LIST carrying interleaved "##wb"/"##dc"/"##db" stream chunks, with an
// optional trailing "idx1" chunk index. Grounded on
// `7216678b_charlescerisier-vdk__format-avi-demuxer.go.go` for the
// hdrl/strl walk and `8c102d58_anaray-fq__format-riff-avi.go.go` for the
// RIFF/LIST nesting shape.
package avi

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/format"
)

const (
	streamTypeVideo = "vids"
	streamTypeAudio = "auds"

	fourccH264 = "H264"
	fourccXVID = "XVID"
	fourccFMP4 = "FMP4"
	fourccMP4V = "mp4v"

	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
	wavFormatMP3       = 0x55
	wavFormatAAC       = 0xFF
)

// probe recognises "RIFF" with an "AVI " form type at offset 8, the same
// container family as WAV but disambiguated by the form tag.
func probe(peek []byte) int {
	if len(peek) >= 12 && string(peek[0:4]) == "RIFF" && string(peek[8:12]) == "AVI " {
		return 100
	}
	return 0
}

// Register wires the AVI demuxer and muxer into r.
func Register(r *format.Registry) {
	r.Register(format.FormatAVI, probe, []string{"avi"},
		func(s bytestream.ByteStream) (format.Demuxer, error) { return openDemuxer(s) },
		func(s bytestream.ByteStream) (format.Muxer, error) { return newMuxer(s), nil },
	)
}
