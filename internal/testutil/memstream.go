// Package testutil provides test fixtures shared across this
// repository's package-level tests: an in-memory bytestream.ByteStream
// for muxer/demuxer round-trip tests, and small synthetic media buffers
// (sine-wave PCM) standing in for real capture/encode output.
package testutil

import (
	"io"

	"github.com/jmylchreest/tao/pkg/bytestream"
)

// MemStream is a growable in-memory bytestream.ByteStream. Every
// pkg/format/* package's round-trip test muxes into one of these, then
// rewinds it and demuxes back out.
type MemStream struct {
	data []byte
	pos  int64
}

// NewMemStream returns an empty, rewound MemStream.
func NewMemStream() *MemStream { return &MemStream{} }

// NewMemStreamFromBytes wraps data directly, positioned at its start, for
// tests that want to hand a demuxer a byte layout without muxing it first.
func NewMemStreamFromBytes(data []byte) *MemStream { return &MemStream{data: data} }

func (m *MemStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *MemStream) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *MemStream) WriteAll(p []byte) error { _, err := m.Write(p); return err }

func (m *MemStream) Seek(offset int64, whence bytestream.SeekWhence) (int64, error) {
	switch whence {
	case bytestream.SeekStart:
		m.pos = offset
	case bytestream.SeekCurrent:
		m.pos += offset
	case bytestream.SeekEnd:
		m.pos = int64(len(m.data)) + offset
	}
	return m.pos, nil
}

func (m *MemStream) Position() (int64, error) { return m.pos, nil }
func (m *MemStream) Size() (int64, bool)      { return int64(len(m.data)), true }
func (m *MemStream) IsSeekable() bool         { return true }

// Rewind seeks back to the start, the way a round-trip test flips from
// writing a muxer's output to reading it back through a demuxer.
func (m *MemStream) Rewind() { m.pos = 0 }

// Bytes returns the stream's current backing buffer.
func (m *MemStream) Bytes() []byte { return m.data }

var _ bytestream.ByteStream = (*MemStream)(nil)
