package iobackend

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
)

func TestMemoryStreamReadWriteSeek(t *testing.T) {
	m := NewMemoryStream(nil)
	if err := m.WriteAll([]byte("hello world")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Seek(0, bytestream.SeekStart); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 5)
	n, err := m.Read(got)
	if err != nil || n != 5 {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q", got)
	}
	if size, ok := m.Size(); !ok || size != 11 {
		t.Fatalf("Size: got %d,%v want 11,true", size, ok)
	}
}

func TestFileStreamRoundTrip(t *testing.T) {
	path := t.TempDir() + "/sample.bin"

	w, err := OpenFile(path, Create)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteAll([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenFile(path, ReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if size, ok := r.Size(); !ok || size != 7 {
		t.Fatalf("Size: got %d,%v want 7,true", size, ok)
	}
	if !r.IsSeekable() {
		t.Fatal("expected FileStream to report seekable")
	}

	buf, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte("payload")) {
		t.Fatalf("got %q", buf)
	}
}

func TestFileStreamOpenMissingFails(t *testing.T) {
	_, err := OpenFile("/nonexistent/path/that/does/not/exist.bin", ReadOnly)
	if err == nil {
		t.Fatal("expected an error opening a missing file")
	}
	if !errors.Is(err, mediaerr.Io) {
		t.Fatalf("expected a mediaerr.Io, got %v", err)
	}
}
