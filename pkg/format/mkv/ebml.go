package mkv

import (
	"math"
	"unicode/utf8"

	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"golang.org/x/text/unicode/norm"
)

// vintWidth returns the number of bytes an EBML variable-length integer
// occupies, read from its leading byte's length-indicator mask (spec.md
// §4.1.2: "1xxxxxxx = 1 byte, 01xxxxxx = 2 bytes, ...").
func vintWidth(first byte) int {
	for i := 0; i < 8; i++ {
		if first&(0x80>>uint(i)) != 0 {
			return i + 1
		}
	}
	return 0
}

// readElementID reads an EBML element ID: the ID's value includes the
// length-marker bits, matching libebml's convention so IDs compare
// directly against the constants in mkv.go.
func readElementID(r *bytestream.Reader) (uint32, error) {
	first, err := r.ReadU8()
	if err != nil {
		return 0, err
	}
	width := vintWidth(first)
	if width == 0 || width > 4 {
		return 0, mediaerr.NewInvalidData("mkv: invalid element id length marker 0x%02x", first)
	}
	v := uint32(first)
	for i := 1; i < width; i++ {
		b, err := r.ReadU8()
		if err != nil {
			return 0, err
		}
		v = v<<8 | uint32(b)
	}
	return v, nil
}

// unknownSize is the EBML "size not known" sentinel (spec.md §4.1.2).
const unknownSize = ^uint64(0)

// readElementSize reads an EBML element size: the length-marker bit is
// stripped from the result, and an all-ones payload means "unknown"
// (used by live-streamed Segments).
func readElementSize(r *bytestream.Reader) (uint64, int, error) {
	first, err := r.ReadU8()
	if err != nil {
		return 0, 0, err
	}
	width := vintWidth(first)
	if width == 0 {
		return 0, 0, mediaerr.NewInvalidData("mkv: invalid element size length marker 0x%02x", first)
	}
	v := uint64(first) &^ (0xff << uint(8-width))
	allOnes := v == (1<<uint(8-width))-1
	for i := 1; i < width; i++ {
		b, err := r.ReadU8()
		if err != nil {
			return 0, 0, err
		}
		v = v<<8 | uint64(b)
		if b != 0xff {
			allOnes = false
		}
	}
	if allOnes {
		return unknownSize, width, nil
	}
	return v, width, nil
}

// element is one parsed EBML element header plus the absolute byte range
// of its payload.
type element struct {
	id        uint32
	bodyStart int64
	bodyEnd   int64 // == bodyStart if size is unknown (caller must bound by parent/EOF)
	sizeKnown bool
}

func readElement(r *bytestream.Reader, parentEnd int64) (element, error) {
	id, err := readElementID(r)
	if err != nil {
		return element{}, err
	}
	size, _, err := readElementSize(r)
	if err != nil {
		return element{}, err
	}
	start, err := r.Position()
	if err != nil {
		return element{}, err
	}
	if size == unknownSize {
		return element{id: id, bodyStart: start, bodyEnd: parentEnd, sizeKnown: false}, nil
	}
	return element{id: id, bodyStart: start, bodyEnd: start + int64(size), sizeKnown: true}, nil
}

// readUint reads an element body as a big-endian unsigned integer of up
// to 8 bytes, the encoding Matroska uses for all its integer elements.
func readUint(r *bytestream.Reader, e element) (uint64, error) {
	n := int(e.bodyEnd - e.bodyStart)
	if n < 0 || n > 8 {
		return 0, mediaerr.NewInvalidData("mkv: uint element size %d out of range", n)
	}
	if n == 0 {
		return 0, nil
	}
	b, err := r.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// readString reads an EBML "string" element: Matroska's ASCII-only
// element type, used for things like the Language element's ISO 639-2
// code. Bytes pass through unvalidated since the spec constrains them to
// ASCII at the schema level.
func readString(r *bytestream.Reader, e element) (string, error) {
	b, err := r.ReadBytes(int(e.bodyEnd - e.bodyStart))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readUTF8String reads an EBML "utf-8" element (Name, Title, and other
// free-form text elements), normalizing it to NFC and discarding it if
// it isn't valid UTF-8 rather than surfacing mojibake from a malformed
// file.
func readUTF8String(r *bytestream.Reader, e element) (string, error) {
	b, err := r.ReadBytes(int(e.bodyEnd - e.bodyStart))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", nil
	}
	return norm.NFC.String(string(b)), nil
}

func readBytes(r *bytestream.Reader, e element) ([]byte, error) {
	return r.ReadBytes(int(e.bodyEnd - e.bodyStart))
}

// readFloat reads a Matroska float element: IEEE 754 binary32 or
// binary64, chosen by the element's body length (4 or 8 bytes).
func readFloat(r *bytestream.Reader, e element) (float64, error) {
	n := int(e.bodyEnd - e.bodyStart)
	switch n {
	case 4:
		v, err := r.ReadU32BE()
		if err != nil {
			return 0, err
		}
		return float64(math.Float32frombits(v)), nil
	case 8:
		v, err := r.ReadU64BE()
		if err != nil {
			return 0, err
		}
		return math.Float64frombits(v), nil
	default:
		return 0, mediaerr.NewInvalidData("mkv: float element size %d not 4 or 8", n)
	}
}

// bytesToInt16 decodes Matroska's SimpleBlock/Block relative timecode:
// a plain two's-complement big-endian 16-bit integer (not a vint).
func bytesToInt16(b []byte) int16 {
	return int16(uint16(b[0])<<8 | uint16(b[1]))
}

// writeElementID writes id verbatim (it already carries its own length
// marker bits, by this package's convention).
func writeElementID(id uint32) []byte {
	switch {
	case id <= 0xff:
		return []byte{byte(id)}
	case id <= 0xffff:
		return []byte{byte(id >> 8), byte(id)}
	case id <= 0xffffff:
		return []byte{byte(id >> 16), byte(id >> 8), byte(id)}
	default:
		return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	}
}

// writeElementSize encodes n in the smallest of the 1-, 2-, 3- and
// 4-byte vint widths that fits, or in 8 bytes for larger values.
func writeElementSize(n uint64) []byte {
	switch {
	case n < (1<<7)-1:
		return []byte{byte(n) | 0x80}
	case n < (1<<14)-1:
		return []byte{byte(n>>8) | 0x40, byte(n)}
	case n < (1<<21)-1:
		return []byte{byte(n>>16) | 0x20, byte(n >> 8), byte(n)}
	case n < (1<<28)-1:
		return []byte{byte(n>>24) | 0x10, byte(n >> 16), byte(n >> 8), byte(n)}
	default:
		return []byte{
			0x01, byte(n >> 48), byte(n >> 40), byte(n >> 32),
			byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n),
		}
	}
}

func writeUintElement(id uint32, v uint64) []byte {
	var vb []byte
	started := false
	for shift := 56; shift >= 0; shift -= 8 {
		b := byte(v >> uint(shift))
		if b != 0 {
			started = true
		}
		if started {
			vb = append(vb, b)
		}
	}
	if len(vb) == 0 {
		vb = []byte{0}
	}
	out := append([]byte{}, writeElementID(id)...)
	out = append(out, writeElementSize(uint64(len(vb)))...)
	out = append(out, vb...)
	return out
}

func writeStringElement(id uint32, s string) []byte {
	out := append([]byte{}, writeElementID(id)...)
	out = append(out, writeElementSize(uint64(len(s)))...)
	out = append(out, []byte(s)...)
	return out
}

func writeBinaryElement(id uint32, b []byte) []byte {
	out := append([]byte{}, writeElementID(id)...)
	out = append(out, writeElementSize(uint64(len(b)))...)
	out = append(out, b...)
	return out
}

func writeMasterElement(id uint32, body []byte) []byte {
	out := append([]byte{}, writeElementID(id)...)
	out = append(out, writeElementSize(uint64(len(body)))...)
	out = append(out, body...)
	return out
}
