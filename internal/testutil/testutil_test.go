package testutil

import (
	"bytes"
	"testing"

	"github.com/jmylchreest/tao/pkg/bytestream"
)

func TestMemStreamReadWriteSeek(t *testing.T) {
	m := NewMemStream()
	if err := m.WriteAll([]byte("abcdef")); err != nil {
		t.Fatal(err)
	}
	m.Rewind()

	got := make([]byte, 3)
	if n, err := m.Read(got); err != nil || n != 3 {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	if !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("got %q", got)
	}

	if _, err := m.Seek(-2, bytestream.SeekEnd); err != nil {
		t.Fatal(err)
	}
	rest := make([]byte, 2)
	if n, err := m.Read(rest); err != nil || n != 2 {
		t.Fatalf("Read after SeekEnd: n=%d err=%v", n, err)
	}
	if !bytes.Equal(rest, []byte("ef")) {
		t.Fatalf("got %q, want \"ef\"", rest)
	}
}

func TestSineWavePCMS16LEShapeAndBounds(t *testing.T) {
	buf := SineWavePCMS16LE(8000, 440, 100)
	if len(buf) != 200 {
		t.Fatalf("len = %d, want 200", len(buf))
	}
	// First sample at t=0 is sin(0) == 0.
	if buf[0] != 0 || buf[1] != 0 {
		t.Errorf("first sample = %d %d, want 0 0", buf[0], buf[1])
	}
}
