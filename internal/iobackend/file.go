// Package iobackend implements the concrete pkg/bytestream.ByteStream
// backends taoctl opens files/URLs through: a local-file backend, an
// in-memory backend for tests and small buffers, and an HTTP backend for
// ranged reads over a remote URL.
//
// Example usage:
//
//	s, err := iobackend.OpenFile("input.mkv", iobackend.ReadOnly)
//	if err != nil { ... }
//	defer s.Close()
//	dmx, err := registries.Formats.OpenInput(s)
package iobackend

import (
	"io"
	"os"

	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
)

// Mode selects how OpenFile opens the underlying file.
type Mode int

const (
	// ReadOnly opens an existing file for demuxing.
	ReadOnly Mode = iota
	// Create truncates or creates the file for muxing.
	Create
)

// FileStream adapts an *os.File to bytestream.ByteStream.
type FileStream struct {
	f    *os.File
	size int64
	know bool
}

// OpenFile opens name per mode and wraps it as a ByteStream.
func OpenFile(name string, mode Mode) (*FileStream, error) {
	var (
		f   *os.File
		err error
	)
	switch mode {
	case Create:
		f, err = os.Create(name)
	default:
		f, err = os.Open(name)
	}
	if err != nil {
		return nil, mediaerr.NewIo(err)
	}

	fs := &FileStream{f: f}
	if info, statErr := f.Stat(); statErr == nil {
		fs.size = info.Size()
		fs.know = true
	}
	return fs, nil
}

func (fs *FileStream) Read(p []byte) (int, error)  { return fs.f.Read(p) }
func (fs *FileStream) Write(p []byte) (int, error) { return fs.f.Write(p) }

func (fs *FileStream) WriteAll(p []byte) error {
	for len(p) > 0 {
		n, err := fs.f.Write(p)
		if err != nil {
			return mediaerr.NewIo(err)
		}
		p = p[n:]
	}
	return nil
}

func (fs *FileStream) Seek(offset int64, whence bytestream.SeekWhence) (int64, error) {
	n, err := fs.f.Seek(offset, seekWhenceToOS(whence))
	if err != nil {
		return 0, mediaerr.NewIo(err)
	}
	return n, nil
}

func (fs *FileStream) Position() (int64, error) {
	return fs.f.Seek(0, io.SeekCurrent)
}

// Size returns the file's size as of open time; it is not re-statted on
// every call since muxers grow the file as they write.
func (fs *FileStream) Size() (int64, bool) { return fs.size, fs.know }

func (fs *FileStream) IsSeekable() bool { return true }

// Close closes the underlying file.
func (fs *FileStream) Close() error { return fs.f.Close() }

func seekWhenceToOS(w bytestream.SeekWhence) int {
	switch w {
	case bytestream.SeekCurrent:
		return io.SeekCurrent
	case bytestream.SeekEnd:
		return io.SeekEnd
	default:
		return io.SeekStart
	}
}

var _ bytestream.ByteStream = (*FileStream)(nil)
