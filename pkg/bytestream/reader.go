package bytestream

import (
	"github.com/jmylchreest/tao/pkg/mediaerr"
)

// Reader wraps a ByteStream with buffered little/big-endian integer
// helpers, 4-byte tag reads, and Skip — the contract demuxers use
// (spec.md §6).
type Reader struct {
	s   ByteStream
	buf []byte // small reusable scratch buffer for fixed-width reads
}

// NewReader wraps s for buffered reads.
func NewReader(s ByteStream) *Reader {
	return &Reader{s: s, buf: make([]byte, 8)}
}

// Stream returns the underlying ByteStream.
func (r *Reader) Stream() ByteStream { return r.s }

// ReadFull reads exactly len(p) bytes or returns an error (mediaerr.Eof on
// a clean end of stream, mediaerr.Io otherwise).
func (r *Reader) ReadFull(p []byte) error {
	n := 0
	for n < len(p) {
		m, err := r.s.Read(p[n:])
		n += m
		if err != nil {
			if n == len(p) {
				return nil
			}
			if isEOF(err) {
				return mediaerr.Eof
			}
			return mediaerr.NewIo(err)
		}
		if m == 0 {
			return mediaerr.Eof
		}
	}
	return nil
}

func isEOF(err error) bool {
	return err != nil && err.Error() == "EOF"
}

// ReadBytes reads and returns exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := r.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Skip advances the stream by n bytes, seeking if possible and reading
// (discarding) otherwise.
func (r *Reader) Skip(n int64) error {
	if n == 0 {
		return nil
	}
	if r.s.IsSeekable() {
		_, err := r.s.Seek(n, SeekCurrent)
		if err != nil {
			return mediaerr.NewIo(err)
		}
		return nil
	}
	const chunk = 4096
	tmp := make([]byte, chunk)
	for n > 0 {
		m := int64(chunk)
		if n < m {
			m = n
		}
		if err := r.ReadFull(tmp[:m]); err != nil {
			return err
		}
		n -= m
	}
	return nil
}

// ReadTag reads 4 raw bytes as a container box/chunk tag (e.g. "ftyp",
// "RIFF").
func (r *Reader) ReadTag() (string, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadU8 reads an unsigned 8-bit integer.
func (r *Reader) ReadU8() (uint8, error) {
	if err := r.ReadFull(r.buf[:1]); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

// ReadU16LE reads a little-endian unsigned 16-bit integer.
func (r *Reader) ReadU16LE() (uint16, error) {
	if err := r.ReadFull(r.buf[:2]); err != nil {
		return 0, err
	}
	return uint16(r.buf[0]) | uint16(r.buf[1])<<8, nil
}

// ReadU16BE reads a big-endian unsigned 16-bit integer.
func (r *Reader) ReadU16BE() (uint16, error) {
	if err := r.ReadFull(r.buf[:2]); err != nil {
		return 0, err
	}
	return uint16(r.buf[1]) | uint16(r.buf[0])<<8, nil
}

// ReadU24BE reads a big-endian unsigned 24-bit integer (common in MP4/FLV).
func (r *Reader) ReadU24BE() (uint32, error) {
	if err := r.ReadFull(r.buf[:3]); err != nil {
		return 0, err
	}
	return uint32(r.buf[2]) | uint32(r.buf[1])<<8 | uint32(r.buf[0])<<16, nil
}

// ReadU24LE reads a little-endian unsigned 24-bit integer.
func (r *Reader) ReadU24LE() (uint32, error) {
	if err := r.ReadFull(r.buf[:3]); err != nil {
		return 0, err
	}
	return uint32(r.buf[0]) | uint32(r.buf[1])<<8 | uint32(r.buf[2])<<16, nil
}

// ReadU32LE reads a little-endian unsigned 32-bit integer.
func (r *Reader) ReadU32LE() (uint32, error) {
	if err := r.ReadFull(r.buf[:4]); err != nil {
		return 0, err
	}
	return uint32(r.buf[0]) | uint32(r.buf[1])<<8 | uint32(r.buf[2])<<16 | uint32(r.buf[3])<<24, nil
}

// ReadU32BE reads a big-endian unsigned 32-bit integer.
func (r *Reader) ReadU32BE() (uint32, error) {
	if err := r.ReadFull(r.buf[:4]); err != nil {
		return 0, err
	}
	return uint32(r.buf[3]) | uint32(r.buf[2])<<8 | uint32(r.buf[1])<<16 | uint32(r.buf[0])<<24, nil
}

// ReadU64LE reads a little-endian unsigned 64-bit integer.
func (r *Reader) ReadU64LE() (uint64, error) {
	if err := r.ReadFull(r.buf[:8]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(r.buf[i])
	}
	return v, nil
}

// ReadU64BE reads a big-endian unsigned 64-bit integer.
func (r *Reader) ReadU64BE() (uint64, error) {
	if err := r.ReadFull(r.buf[:8]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(r.buf[i])
	}
	return v, nil
}

// ReadS16LE reads a little-endian signed 16-bit integer.
func (r *Reader) ReadS16LE() (int16, error) {
	v, err := r.ReadU16LE()
	return int16(v), err
}

// ReadS16BE reads a big-endian signed 16-bit integer.
func (r *Reader) ReadS16BE() (int16, error) {
	v, err := r.ReadU16BE()
	return int16(v), err
}

// ReadS32LE reads a little-endian signed 32-bit integer.
func (r *Reader) ReadS32LE() (int32, error) {
	v, err := r.ReadU32LE()
	return int32(v), err
}

// ReadS32BE reads a big-endian signed 32-bit integer.
func (r *Reader) ReadS32BE() (int32, error) {
	v, err := r.ReadU32BE()
	return int32(v), err
}

// Position returns the current absolute byte offset.
func (r *Reader) Position() (int64, error) {
	p, err := r.s.Position()
	if err != nil {
		return 0, mediaerr.NewIo(err)
	}
	return p, nil
}

// SeekTo seeks to an absolute offset.
func (r *Reader) SeekTo(off int64) error {
	if !r.s.IsSeekable() {
		return mediaerr.NewUnsupported("bytestream: underlying stream is not seekable")
	}
	_, err := r.s.Seek(off, SeekStart)
	if err != nil {
		return mediaerr.NewIo(err)
	}
	return nil
}
