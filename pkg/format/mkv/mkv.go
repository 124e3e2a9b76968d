// Package mkv implements the Matroska/WebM (EBML) container of
// spec.md §4.1.2: a nested tree of variable-length-id/variable-length-
// size elements rooted at \EBML and \Segment, with per-Cluster
// SimpleBlocks carrying relative timestamps.
package mkv

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/format"
)

// Matroska/WebM EBML element IDs this package recognises, spelled out as
// their full encoded byte pattern (ID value includes the length-marker
// bits, per spec.md §4.1.2/§6).
const (
	idEBML          = 0x1A45DFA3
	idSegment       = 0x18538067
	idSeekHead      = 0x114D9B74
	idInfo          = 0x1549A966
	idTimecodeScale = 0x2AD7B1
	idDuration      = 0x4489
	idTracks        = 0x1654AE6B
	idTrackEntry    = 0xAE
	idTrackNumber   = 0xD7
	idTrackType     = 0x83
	idCodecID       = 0x86
	idCodecPrivate  = 0x63A2
	idDefaultDur    = 0x23E383
	idName          = 0x536E
	idLanguage      = 0x22B59C
	idVideo         = 0xE0
	idAudio         = 0xE1
	idPixelWidth    = 0xB0
	idPixelHeight   = 0xBA
	idSamplingFreq  = 0xB5
	idChannels      = 0x9F
	idBitDepth      = 0x6264
	idCluster       = 0x1F43B675
	idTimecode      = 0xE7
	idSimpleBlock   = 0xA3
	idBlockGroup    = 0xA0
	idBlock         = 0xA1
	idBlockDuration = 0x9B

	idEBMLVersion        = 0x4286
	idEBMLReadVersion    = 0x42F7
	idEBMLMaxIDLength    = 0x42F2
	idEBMLMaxSizeLength  = 0x42F3
	idDocType            = 0x4282
	idDocTypeVersion     = 0x4287
	idDocTypeReadVersion = 0x4285
)

func probe(peek []byte) int {
	if len(peek) >= 4 && peek[0] == 0x1A && peek[1] == 0x45 && peek[2] == 0xDF && peek[3] == 0xA3 {
		return 100
	}
	return 0
}

// Register wires the Matroska/WebM demuxer and muxer into r under both
// the Matroska and WebM format ids (WebM is a strict Matroska subset).
func Register(r *format.Registry) {
	r.Register(format.FormatMatroska, probe, []string{"mkv", "mka", "mks"},
		func(s bytestream.ByteStream) (format.Demuxer, error) { return openDemuxer(s) },
		func(s bytestream.ByteStream) (format.Muxer, error) { return newMuxer(s, false), nil },
	)
	r.Register(format.FormatWebM, probe, []string{"webm"},
		func(s bytestream.ByteStream) (format.Demuxer, error) { return openDemuxer(s) },
		func(s bytestream.ByteStream) (format.Muxer, error) { return newMuxer(s, true), nil },
	)
}

// matroskaCodecIDFor reports whether a Matroska CodecID string is one
// this package supports (ok) and whether it is a video codec (isVideo);
// codecParamsFor maps it to our CodecID, per spec.md §4.1.2.
func matroskaCodecIDFor(s string) (isVideo bool, ok bool) {
	switch s {
	case "V_MPEG4/ISO/AVC", "V_MPEG4/ISO/ASP", "V_VP8", "V_VP9", "V_AV1", "V_MPEG4/MS/V3":
		return true, true
	case "A_AAC", "A_MPEG/L3", "A_VORBIS", "A_FLAC", "A_PCM/INT/LIT", "A_PCM/INT/BIG", "A_PCM/FLOAT/IEEE":
		return false, true
	default:
		return false, false
	}
}
