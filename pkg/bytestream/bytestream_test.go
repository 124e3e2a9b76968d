package bytestream

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// memStream is a minimal in-memory ByteStream used only by this package's
// own tests; internal/iobackend ships the real collaborator backends.
type memStream struct {
	data []byte
	pos  int64
}

func (m *memStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memStream) Write(p []byte) (int, error) {
	if m.pos < int64(len(m.data)) {
		n := copy(m.data[m.pos:], p)
		m.pos += int64(n)
		if n < len(p) {
			m.data = append(m.data, p[n:]...)
			m.pos = int64(len(m.data))
		}
		return len(p), nil
	}
	m.data = append(m.data, p...)
	m.pos = int64(len(m.data))
	return len(p), nil
}

func (m *memStream) WriteAll(p []byte) error {
	_, err := m.Write(p)
	return err
}

func (m *memStream) Seek(offset int64, whence SeekWhence) (int64, error) {
	var base int64
	switch whence {
	case SeekStart:
		base = 0
	case SeekCurrent:
		base = m.pos
	case SeekEnd:
		base = int64(len(m.data))
	default:
		return 0, errors.New("bad whence")
	}
	m.pos = base + offset
	return m.pos, nil
}

func (m *memStream) Position() (int64, error) { return m.pos, nil }
func (m *memStream) Size() (int64, bool)      { return int64(len(m.data)), true }
func (m *memStream) IsSeekable() bool         { return true }

func TestReaderEndianHelpers(t *testing.T) {
	s := &memStream{}
	w := NewWriter(s)
	if err := w.WriteU32BE(0x01020304); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteU32LE(0x01020304); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteU16BE(0xABCD); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteTag("ftyp"); err != nil {
		t.Fatal(err)
	}

	s.pos = 0
	r := NewReader(s)
	be32, err := r.ReadU32BE()
	if err != nil || be32 != 0x01020304 {
		t.Fatalf("ReadU32BE = %x, %v", be32, err)
	}
	le32, err := r.ReadU32LE()
	if err != nil || le32 != 0x01020304 {
		t.Fatalf("ReadU32LE = %x, %v", le32, err)
	}
	be16, err := r.ReadU16BE()
	if err != nil || be16 != 0xABCD {
		t.Fatalf("ReadU16BE = %x, %v", be16, err)
	}
	tag, err := r.ReadTag()
	if err != nil || tag != "ftyp" {
		t.Fatalf("ReadTag = %q, %v", tag, err)
	}
}

func TestSkipSeekableAndNonSeekable(t *testing.T) {
	s := &memStream{data: bytes.Repeat([]byte{0xAA}, 16)}
	s.data = append(s.data, []byte("TAIL")...)
	r := NewReader(s)
	if err := r.Skip(16); err != nil {
		t.Fatal(err)
	}
	tag, err := r.ReadTag()
	if err != nil || tag != "TAIL" {
		t.Fatalf("tag=%q err=%v", tag, err)
	}
}

func TestReadFullEOF(t *testing.T) {
	s := &memStream{data: []byte{1, 2}}
	r := NewReader(s)
	if _, err := r.ReadBytes(4); err == nil {
		t.Fatal("expected error reading past end")
	}
}
