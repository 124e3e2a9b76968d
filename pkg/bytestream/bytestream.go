// Package bytestream defines the sole interface the tao core uses to touch
// the outside world for I/O (spec.md §6), plus buffered big/little-endian
// helpers demuxers and muxers build on.
//
// Concrete backends (file, memory, HTTP) are external collaborators; see
// internal/iobackend for this repository's implementations.
package bytestream

import "io"

// SeekWhence mirrors io.SeekStart/Current/End but is spelled out for
// clarity at call sites throughout the demuxers/muxers.
type SeekWhence int

const (
	SeekStart   SeekWhence = iota // offset is absolute
	SeekCurrent                   // offset is relative to current position
	SeekEnd                       // offset is relative to end of stream
)

// ByteStream is the abstract, blocking, seekable byte stream every demuxer
// and muxer consumes or produces (spec.md §6). Every call may block; this
// layer is not non-blocking. A caller wanting I/O overlap runs an
// independent pipeline on its own goroutine (spec.md §5).
type ByteStream interface {
	// Read reads into p, returning the number of bytes read. Like io.Reader,
	// a short read is not itself an error.
	Read(p []byte) (int, error)

	// Write writes p, returning the number of bytes written.
	Write(p []byte) (int, error)

	// WriteAll writes all of p or returns an error.
	WriteAll(p []byte) error

	// Seek moves the stream position per whence and returns the new
	// absolute position. Returns Unsupported if IsSeekable() is false.
	Seek(offset int64, whence SeekWhence) (int64, error)

	// Position returns the current absolute byte offset.
	Position() (int64, error)

	// Size returns the total stream size if known.
	Size() (int64, bool)

	// IsSeekable reports whether Seek is supported.
	IsSeekable() bool
}

// Compile-time assertions that io.Reader/io.Writer remain embeddable by
// adapters in internal/iobackend without surprises.
var (
	_ io.Reader = (ByteStream)(nil)
	_ io.Writer = (ByteStream)(nil)
)
