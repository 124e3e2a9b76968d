package bytestream

import "github.com/jmylchreest/tao/pkg/mediaerr"

// Writer wraps a ByteStream with buffered little/big-endian integer write
// helpers — the dual of Reader, used by muxers (spec.md §6).
type Writer struct {
	s ByteStream
}

// NewWriter wraps s for buffered writes.
func NewWriter(s ByteStream) *Writer {
	return &Writer{s: s}
}

// Stream returns the underlying ByteStream.
func (w *Writer) Stream() ByteStream { return w.s }

// WriteBytes writes p verbatim.
func (w *Writer) WriteBytes(p []byte) error {
	if err := w.s.WriteAll(p); err != nil {
		return mediaerr.NewIo(err)
	}
	return nil
}

// WriteTag writes a 4-byte container tag (e.g. "ftyp").
func (w *Writer) WriteTag(tag string) error {
	if len(tag) != 4 {
		return mediaerr.NewInvalidArgument("bytestream: tag %q must be 4 bytes", tag)
	}
	return w.WriteBytes([]byte(tag))
}

// WriteU8 writes an unsigned 8-bit integer.
func (w *Writer) WriteU8(v uint8) error {
	return w.WriteBytes([]byte{v})
}

// WriteU16LE writes a little-endian unsigned 16-bit integer.
func (w *Writer) WriteU16LE(v uint16) error {
	return w.WriteBytes([]byte{byte(v), byte(v >> 8)})
}

// WriteU16BE writes a big-endian unsigned 16-bit integer.
func (w *Writer) WriteU16BE(v uint16) error {
	return w.WriteBytes([]byte{byte(v >> 8), byte(v)})
}

// WriteU24BE writes a big-endian unsigned 24-bit integer.
func (w *Writer) WriteU24BE(v uint32) error {
	return w.WriteBytes([]byte{byte(v >> 16), byte(v >> 8), byte(v)})
}

// WriteU24LE writes a little-endian unsigned 24-bit integer.
func (w *Writer) WriteU24LE(v uint32) error {
	return w.WriteBytes([]byte{byte(v), byte(v >> 8), byte(v >> 16)})
}

// WriteU32LE writes a little-endian unsigned 32-bit integer.
func (w *Writer) WriteU32LE(v uint32) error {
	return w.WriteBytes([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

// WriteU32BE writes a big-endian unsigned 32-bit integer.
func (w *Writer) WriteU32BE(v uint32) error {
	return w.WriteBytes([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// WriteU64LE writes a little-endian unsigned 64-bit integer.
func (w *Writer) WriteU64LE(v uint64) error {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return w.WriteBytes(b)
}

// WriteU64BE writes a big-endian unsigned 64-bit integer.
func (w *Writer) WriteU64BE(v uint64) error {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * uint(i)))
	}
	return w.WriteBytes(b)
}

// Position returns the current absolute byte offset.
func (w *Writer) Position() (int64, error) {
	p, err := w.s.Position()
	if err != nil {
		return 0, mediaerr.NewIo(err)
	}
	return p, nil
}

// SeekTo seeks to an absolute offset (used to backpatch header fields once
// a trailer is known, e.g. RIFF/AVI size, MP4 stco offsets).
func (w *Writer) SeekTo(off int64) error {
	if !w.s.IsSeekable() {
		return mediaerr.NewUnsupported("bytestream: underlying stream is not seekable")
	}
	_, err := w.s.Seek(off, SeekStart)
	if err != nil {
		return mediaerr.NewIo(err)
	}
	return nil
}
