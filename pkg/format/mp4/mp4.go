// Package mp4 implements the ISO-BMFF (MP4/M4A/MOV) container of
// spec.md §4.1.1: a tree of size-prefixed boxes rooted at ftyp/moov/mdat,
// with sample tables (stts/ctts/stsc/stsz/stco/stss) driving access-unit
// reconstruction.
package mp4

import (
	"unicode/utf8"

	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/format"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"golang.org/x/text/unicode/norm"
)

func probe(peek []byte) int {
	if len(peek) < 12 {
		return 0
	}
	if string(peek[4:8]) == "ftyp" {
		return 100
	}
	// Some MP4s (fragmented, or Free-box-first) lead with moov/free/mdat
	// directly; still score high since the 4-byte tag is unambiguous.
	switch string(peek[4:8]) {
	case "moov", "mdat", "free", "skip", "wide":
		return 90
	}
	return 0
}

// Register wires the MP4 demuxer and muxer into r.
func Register(r *format.Registry) {
	r.Register(format.FormatMP4, probe, []string{"mp4", "m4a", "m4v", "mov"},
		func(s bytestream.ByteStream) (format.Demuxer, error) { return openDemuxer(s) },
		func(s bytestream.ByteStream) (format.Muxer, error) { return newMuxer(s), nil },
	)
}

// box is one parsed ISO-BMFF box header: its 4-byte type tag, and the
// absolute byte range of its payload (after the 8/16-byte header).
type box struct {
	typ       string
	bodyStart int64
	bodyEnd   int64
}

func (b box) size() int64 { return b.bodyEnd - b.bodyStart }

// readBoxHeader reads one box header at the reader's current position,
// per spec.md §6: 32-bit size, size=1 => 64-bit largesize follows,
// size=0 => box extends to end of file.
func readBoxHeader(r *bytestream.Reader, fileEnd int64) (box, error) {
	start, err := r.Position()
	if err != nil {
		return box{}, err
	}
	size32, err := r.ReadU32BE()
	if err != nil {
		return box{}, err
	}
	typ, err := r.ReadTag()
	if err != nil {
		return box{}, err
	}
	headerLen := int64(8)
	var totalSize int64
	switch size32 {
	case 0:
		if fileEnd <= 0 {
			return box{}, mediaerr.NewUnsupported("mp4: size=0 box requires a known file length")
		}
		totalSize = fileEnd - start
	case 1:
		size64, err := r.ReadU64BE()
		if err != nil {
			return box{}, err
		}
		headerLen = 16
		totalSize = int64(size64)
	default:
		totalSize = int64(size32)
	}
	if totalSize < headerLen {
		return box{}, mediaerr.NewInvalidData("mp4: box %q has impossible size %d", typ, totalSize)
	}
	return box{typ: typ, bodyStart: start + headerLen, bodyEnd: start + totalSize}, nil
}

// fullBoxHeader reads the 1-byte version + 3-byte flags prefix shared by
// "full boxes" (mvhd, tkhd, mdhd, stts, ...).
func fullBoxHeader(r *bytestream.Reader) (version uint8, flags uint32, err error) {
	v, err := r.ReadU32BE()
	if err != nil {
		return 0, 0, err
	}
	return uint8(v >> 24), v & 0x00ffffff, nil
}

// sanitizeUTF8Tag normalizes a tag value ("©nam" and friends are required
// to be UTF-8 by the iTunes metadata convention) to NFC so two files
// using different combining-character forms for the same title compare
// equal, and drops it entirely if it isn't valid UTF-8 to begin with
// rather than surfacing mojibake.
func sanitizeUTF8Tag(raw []byte) string {
	if !utf8.Valid(raw) {
		return ""
	}
	return norm.NFC.String(string(raw))
}
