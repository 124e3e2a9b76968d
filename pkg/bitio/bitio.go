// Package bitio provides MSB-first bit-level reading and writing, plus
// CRC-8/16/32 helpers, for the tao codec/container core (spec.md §3, §9).
//
// BitReader and BitWriter are value types holding a byte slice/buffer and
// explicit cursors — no generators, no iterator interfaces. Codecs that
// need "read until stop bit" write an explicit loop over the methods here.
package bitio

import (
	"github.com/jmylchreest/tao/pkg/mediaerr"
)

// BitReader reads bits MSB-first out of a byte slice.
type BitReader struct {
	data    []byte
	bytePos int
	bitPos  uint // 0..7, bits already consumed from data[bytePos], MSB first
}

// NewBitReader wraps data for MSB-first bit reading.
func NewBitReader(data []byte) *BitReader {
	return &BitReader{data: data}
}

// BitsRemaining returns the number of unread bits.
func (r *BitReader) BitsRemaining() int {
	return (len(r.data)-r.bytePos)*8 - int(r.bitPos)
}

// BytePosition returns the current byte offset (bits already consumed in
// the current byte are NOT counted).
func (r *BitReader) BytePosition() int { return r.bytePos }

// ByteAligned reports whether the cursor sits on a byte boundary.
func (r *BitReader) ByteAligned() bool { return r.bitPos == 0 }

// AlignByte advances to the next byte boundary, discarding any partial bits.
func (r *BitReader) AlignByte() {
	if r.bitPos != 0 {
		r.bitPos = 0
		r.bytePos++
	}
}

// ReadBit reads a single bit.
func (r *BitReader) ReadBit() (uint32, error) {
	if r.bytePos >= len(r.data) {
		return 0, mediaerr.NeedMoreData
	}
	b := (r.data[r.bytePos] >> (7 - r.bitPos)) & 1
	r.bitPos++
	if r.bitPos == 8 {
		r.bitPos = 0
		r.bytePos++
	}
	return uint32(b), nil
}

// ReadBits reads n (0..32) bits into an unsigned integer, MSB first.
func (r *BitReader) ReadBits(n int) (uint32, error) {
	if n < 0 || n > 32 {
		return 0, mediaerr.NewInvalidArgument("bitio: ReadBits n=%d out of range", n)
	}
	var v uint32
	for i := 0; i < n; i++ {
		bit, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		v = (v << 1) | bit
	}
	return v, nil
}

// ReadBits64 reads n (0..64) bits into an unsigned 64-bit integer.
func (r *BitReader) ReadBits64(n int) (uint64, error) {
	if n < 0 || n > 64 {
		return 0, mediaerr.NewInvalidArgument("bitio: ReadBits64 n=%d out of range", n)
	}
	var v uint64
	for i := 0; i < n; i++ {
		bit, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		v = (v << 1) | uint64(bit)
	}
	return v, nil
}

// ReadFlag reads a single bit as a bool.
func (r *BitReader) ReadFlag() (bool, error) {
	b, err := r.ReadBit()
	return b != 0, err
}

// PeekBits reads n bits without consuming them.
func (r *BitReader) PeekBits(n int) (uint32, error) {
	save := *r
	v, err := r.ReadBits(n)
	*r = save
	return v, err
}

// SkipBits advances the cursor by n bits without decoding a value.
func (r *BitReader) SkipBits(n int) error {
	if n < 0 {
		return mediaerr.NewInvalidArgument("bitio: SkipBits negative")
	}
	if n > r.BitsRemaining() {
		return mediaerr.NeedMoreData
	}
	total := int(r.bitPos) + n
	r.bytePos += total / 8
	r.bitPos = uint(total % 8)
	return nil
}

// ReadUnary reads a unary-coded value: the count of 1-bits before the
// first 0-bit, which is also consumed.
func (r *BitReader) ReadUnary() (int, error) {
	count := 0
	for {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		if b == 0 {
			return count, nil
		}
		count++
		if count > 1<<20 {
			return 0, mediaerr.NewInvalidData("bitio: unary code too long")
		}
	}
}

// ReadUE reads an unsigned Exp-Golomb code, as used by H.264/MPEG-4
// syntax elements (spec.md §4.2.6).
func (r *BitReader) ReadUE() (uint32, error) {
	leadingZeros := 0
	for {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		if b != 0 {
			break
		}
		leadingZeros++
		if leadingZeros > 31 {
			return 0, mediaerr.NewInvalidData("bitio: exp-golomb code too long")
		}
	}
	if leadingZeros == 0 {
		return 0, nil
	}
	suffix, err := r.ReadBits(leadingZeros)
	if err != nil {
		return 0, err
	}
	return (1 << uint(leadingZeros)) - 1 + suffix, nil
}

// ReadSE reads a signed Exp-Golomb code (H.264 7.4/se(v) mapping).
func (r *BitReader) ReadSE() (int32, error) {
	ue, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	if ue%2 == 0 {
		return -int32(ue / 2), nil
	}
	return int32((ue + 1) / 2), nil
}

// ReadBytesAligned reads n raw bytes; the cursor must be byte aligned.
func (r *BitReader) ReadBytesAligned(n int) ([]byte, error) {
	if !r.ByteAligned() {
		return nil, mediaerr.NewInvalidArgument("bitio: ReadBytesAligned requires byte alignment")
	}
	if r.bytePos+n > len(r.data) {
		return nil, mediaerr.NeedMoreData
	}
	out := r.data[r.bytePos : r.bytePos+n]
	r.bytePos += n
	return out, nil
}

// BitWriter accumulates bits MSB-first into a growable byte buffer.
type BitWriter struct {
	buf     []byte
	curByte byte
	nBits   uint // bits already placed into curByte, 0..7
}

// NewBitWriter returns an empty BitWriter.
func NewBitWriter() *BitWriter {
	return &BitWriter{}
}

// WriteBit writes a single bit (0 or 1 in the low bit of v).
func (w *BitWriter) WriteBit(v uint32) {
	w.curByte = (w.curByte << 1) | byte(v&1)
	w.nBits++
	if w.nBits == 8 {
		w.buf = append(w.buf, w.curByte)
		w.curByte = 0
		w.nBits = 0
	}
}

// WriteBits writes the low n bits of v, MSB first.
func (w *BitWriter) WriteBits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteBit((v >> uint(i)) & 1)
	}
}

// WriteBits64 writes the low n bits of a 64-bit value, MSB first.
func (w *BitWriter) WriteBits64(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(uint32((v >> uint(i)) & 1))
	}
}

// WriteUE writes an unsigned Exp-Golomb code.
func (w *BitWriter) WriteUE(v uint32) {
	x := v + 1
	nbits := 0
	for t := x; t > 1; t >>= 1 {
		nbits++
	}
	for i := 0; i < nbits; i++ {
		w.WriteBit(0)
	}
	w.WriteBits(x, nbits+1)
}

// WriteSE writes a signed Exp-Golomb code.
func (w *BitWriter) WriteSE(v int32) {
	var ue uint32
	if v <= 0 {
		ue = uint32(-v) * 2
	} else {
		ue = uint32(v)*2 - 1
	}
	w.WriteUE(ue)
}

// AlignByte pads the current byte with zero bits up to the next boundary.
func (w *BitWriter) AlignByte() {
	for w.nBits != 0 {
		w.WriteBit(0)
	}
}

// AlignByteWithStopBit pads with a single 1 bit followed by zero bits, the
// RBSP trailing-bits pattern used by H.264 (rbsp_stop_one_bit).
func (w *BitWriter) AlignByteWithStopBit() {
	w.WriteBit(1)
	w.AlignByte()
}

// Bytes returns the written bytes. Any partial trailing byte not yet
// aligned is NOT included; call AlignByte first if needed.
func (w *BitWriter) Bytes() []byte {
	return w.buf
}

// BitLength returns the total number of bits written so far.
func (w *BitWriter) BitLength() int {
	return len(w.buf)*8 + int(w.nBits)
}
