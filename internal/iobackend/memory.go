package iobackend

import (
	"io"

	"github.com/jmylchreest/tao/pkg/bytestream"
)

// MemoryStream is a growable in-memory ByteStream, used by callers that
// already hold a full buffer (HTTP bodies fetched up front, test fixtures)
// and don't want to round-trip through a temp file.
type MemoryStream struct {
	buf []byte
	pos int64
}

// NewMemoryStream wraps buf. Writes beyond len(buf) grow it.
func NewMemoryStream(buf []byte) *MemoryStream {
	return &MemoryStream{buf: buf}
}

func (m *MemoryStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *MemoryStream) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *MemoryStream) WriteAll(p []byte) error { _, err := m.Write(p); return err }

func (m *MemoryStream) Seek(offset int64, whence bytestream.SeekWhence) (int64, error) {
	switch whence {
	case bytestream.SeekStart:
		m.pos = offset
	case bytestream.SeekCurrent:
		m.pos += offset
	case bytestream.SeekEnd:
		m.pos = int64(len(m.buf)) + offset
	}
	return m.pos, nil
}

func (m *MemoryStream) Position() (int64, error) { return m.pos, nil }
func (m *MemoryStream) Size() (int64, bool)      { return int64(len(m.buf)), true }
func (m *MemoryStream) IsSeekable() bool         { return true }
func (m *MemoryStream) Close() error             { return nil }

// Bytes returns the stream's current backing buffer. The caller must not
// retain it past a subsequent Write.
func (m *MemoryStream) Bytes() []byte { return m.buf }

var _ bytestream.ByteStream = (*MemoryStream)(nil)
