// Package mpegts implements the MPEG-2 Transport Stream container of
// spec.md §4.1.3: fixed 188-byte packets carrying PSI tables (PAT/PMT)
// and PES-framed elementary streams, addressed by 13-bit PID. Grounded
// in shape on the teacher's own `github.com/asticode/go-astits`
// PAT/PMT/PES dispatch (never imported here — this core never depends
// on a third-party container/codec library, only on its structuring
// idiom) and on `to_stream.go`'s PES→stream mapping, including MPEG-TS's
// fixed 90kHz PTS/DTS clock.
package mpegts

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/format"
)

const (
	packetSize = 188
	syncByte   = 0x47

	pidPAT  = 0x0000
	pidNull = 0x1FFF

	streamTypeMPEG1Video = 0x01
	streamTypeMPEG2Video = 0x02
	streamTypeMPEG4Video = 0x10
	streamTypeH264       = 0x1B
	streamTypeH265       = 0x24
	streamTypeMPEG1Audio = 0x03
	streamTypeMPEG2Audio = 0x04
	streamTypeAACADTS    = 0x0F
	streamTypeAC3        = 0x81

	// ptsClockHz is the fixed 90kHz clock every PTS/DTS in MPEG-TS is
	// expressed in, independent of the elementary stream's own sample
	// rate or frame rate.
	ptsClockHz = 90000
)

// probe scores a buffer by how many consecutive 188-byte-aligned sync
// bytes it finds at the start, since a Transport Stream has no magic
// number of its own.
func probe(peek []byte) int {
	if len(peek) < packetSize*2 {
		return 0
	}
	aligned := 0
	for off := 0; off+packetSize <= len(peek) && off < packetSize*8; off += packetSize {
		if peek[off] == syncByte {
			aligned++
		} else {
			break
		}
	}
	if aligned >= 3 {
		return 90
	}
	if peek[0] == syncByte {
		return 40
	}
	return 0
}

// Register wires the MPEG-TS demuxer and muxer into r.
func Register(r *format.Registry) {
	r.Register(format.FormatMPEGTS, probe, []string{"ts", "m2ts", "mts"},
		func(s bytestream.ByteStream) (format.Demuxer, error) { return openDemuxer(s) },
		func(s bytestream.ByteStream) (format.Muxer, error) { return newMuxer(s), nil },
	)
}

func streamTypeIsVideo(st byte) bool {
	switch st {
	case streamTypeMPEG1Video, streamTypeMPEG2Video, streamTypeMPEG4Video, streamTypeH264, streamTypeH265:
		return true
	default:
		return false
	}
}
