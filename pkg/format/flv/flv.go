// Package flv implements the FLV tag container of spec.md §4.1.4:
// a 9-byte file header followed by a sequence of Audio/Video/ScriptData
// tags, each preceded by an 11-byte tag header and followed by a 4-byte
// "previous tag size" trailer. Grounded on
// `6d15e6cd_ossrs-go-oryx-lib__flv-flv.go.go`'s ReadHeader/ReadTagHeader
// split and its AVC/AAC packet-type framing.
package flv

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/format"
)

const (
	tagTypeAudio      = 8
	tagTypeVideo      = 9
	tagTypeScriptData = 18

	// Video tag frame types (high nibble of the first body byte).
	frameTypeKeyframe     = 1
	frameTypeInter        = 2
	frameTypeDisposable   = 3
	frameTypeGeneratedKey = 4
	frameTypeInfoCommand  = 5

	videoCodecIDAVC = 7

	avcPacketTypeSeqHeader = 0
	avcPacketTypeNALU      = 1
	avcPacketTypeEndOfSeq  = 2

	soundFormatMP3      = 2
	soundFormatAAC      = 10
	soundFormatMP3_8kHz = 14

	aacPacketTypeSeqHeader = 0
	aacPacketTypeRaw       = 1
)

// probe recognises the "FLV" signature plus version byte; FLV has no
// other container convention that could collide with it.
func probe(peek []byte) int {
	if len(peek) >= 5 && peek[0] == 'F' && peek[1] == 'L' && peek[2] == 'V' && peek[3] == 0x01 {
		return 100
	}
	return 0
}

// Register wires the FLV demuxer and muxer into r.
func Register(r *format.Registry) {
	r.Register(format.FormatFLV, probe, []string{"flv"},
		func(s bytestream.ByteStream) (format.Demuxer, error) { return openDemuxer(s) },
		func(s bytestream.ByteStream) (format.Muxer, error) { return newMuxer(s), nil },
	)
}
