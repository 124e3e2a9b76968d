// Package mediaerr defines the single error sum type traversed by every
// layer of the tao codec/container core: byte-stream I/O, demuxers/muxers,
// decoders/encoders, and the registries.
//
// Every variant is distinguishable via errors.Is against the sentinel
// values below, or via errors.As against the wrapping types that carry
// extra context (InvalidDataError, UnsupportedError, ...).
package mediaerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to test for these; wrap with fmt.Errorf("%w: ...")
// or one of the *Error types below to attach context.
var (
	// Eof indicates the byte stream or decoder reached end of data.
	Eof = errors.New("mediaerr: eof")

	// NeedMoreData is non-fatal: the caller should feed more packets/frames.
	NeedMoreData = errors.New("mediaerr: need more data")

	// Io indicates the underlying byte stream failed.
	Io = errors.New("mediaerr: io error")

	// InvalidData indicates the bitstream or container violates its spec
	// with no defined recovery fallback.
	InvalidData = errors.New("mediaerr: invalid data")

	// InvalidArgument indicates the caller supplied wrong parameters.
	InvalidArgument = errors.New("mediaerr: invalid argument")

	// Unsupported indicates a recognised but unimplemented profile/option.
	Unsupported = errors.New("mediaerr: unsupported")

	// NotImplemented is a placeholder for future work.
	NotImplemented = errors.New("mediaerr: not implemented")

	// Codec indicates a decoder/encoder internal error not tied to input bits.
	Codec = errors.New("mediaerr: codec error")

	// CodecNotFound indicates a registry miss for a codec id.
	CodecNotFound = errors.New("mediaerr: codec not found")

	// StreamNotFound indicates no such stream index exists.
	StreamNotFound = errors.New("mediaerr: stream not found")
)

// InvalidDataError wraps InvalidData with a descriptive message.
type InvalidDataError struct {
	Msg string
}

func (e *InvalidDataError) Error() string { return fmt.Sprintf("mediaerr: invalid data: %s", e.Msg) }
func (e *InvalidDataError) Unwrap() error { return InvalidData }

// NewInvalidData builds an InvalidDataError from a format string.
func NewInvalidData(format string, args ...any) error {
	return &InvalidDataError{Msg: fmt.Sprintf(format, args...)}
}

// UnsupportedError wraps Unsupported with a descriptive message.
type UnsupportedError struct {
	Msg string
}

func (e *UnsupportedError) Error() string { return fmt.Sprintf("mediaerr: unsupported: %s", e.Msg) }
func (e *UnsupportedError) Unwrap() error { return Unsupported }

// NewUnsupported builds an UnsupportedError from a format string.
func NewUnsupported(format string, args ...any) error {
	return &UnsupportedError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidArgumentError wraps InvalidArgument with a descriptive message.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("mediaerr: invalid argument: %s", e.Msg)
}
func (e *InvalidArgumentError) Unwrap() error { return InvalidArgument }

// NewInvalidArgument builds an InvalidArgumentError from a format string.
func NewInvalidArgument(format string, args ...any) error {
	return &InvalidArgumentError{Msg: fmt.Sprintf(format, args...)}
}

// CodecError wraps Codec with a descriptive message.
type CodecError struct {
	Msg string
}

func (e *CodecError) Error() string { return fmt.Sprintf("mediaerr: codec error: %s", e.Msg) }
func (e *CodecError) Unwrap() error { return Codec }

// NewCodec builds a CodecError from a format string.
func NewCodec(format string, args ...any) error {
	return &CodecError{Msg: fmt.Sprintf(format, args...)}
}

// IoError wraps Io and an underlying cause.
type IoError struct {
	Cause error
}

func (e *IoError) Error() string        { return fmt.Sprintf("mediaerr: io error: %v", e.Cause) }
func (e *IoError) Unwrap() error        { return e.Cause }
func (e *IoError) Is(target error) bool { return target == Io }

// NewIo wraps an underlying I/O cause.
func NewIo(cause error) error {
	if cause == nil {
		return nil
	}
	return &IoError{Cause: cause}
}

// CodecNotFoundError names the missing codec id.
type CodecNotFoundError struct {
	ID string
}

func (e *CodecNotFoundError) Error() string {
	return fmt.Sprintf("mediaerr: codec not found: %s", e.ID)
}
func (e *CodecNotFoundError) Unwrap() error { return CodecNotFound }

// NewCodecNotFound builds a CodecNotFoundError.
func NewCodecNotFound(id string) error {
	return &CodecNotFoundError{ID: id}
}

// StreamNotFoundError names the missing stream index.
type StreamNotFoundError struct {
	Index int
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("mediaerr: stream not found: %d", e.Index)
}
func (e *StreamNotFoundError) Unwrap() error { return StreamNotFound }

// NewStreamNotFound builds a StreamNotFoundError.
func NewStreamNotFound(index int) error {
	return &StreamNotFoundError{Index: index}
}
