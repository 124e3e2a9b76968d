// Package codec defines the decoder/encoder contract and the codec
// registry of spec.md §4.2/§4.3, mirroring the container registry in
// pkg/format. Individual codecs live in subpackages (pkg/codec/pcm,
// pkg/codec/mp3, pkg/codec/vorbis, pkg/codec/flac, pkg/codec/aac,
// pkg/codec/h264, pkg/codec/mpeg4) and register themselves with a
// Registry via RegisterDecoder/RegisterEncoder, the same registration
// idiom the teacher used for codec.IdFromMimeType lookups.
package codec

import (
	"fmt"
	"sync"

	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/stream"
)

// Decoder turns compressed Packets of one stream into decoded Frames. A
// single Decoder instance is not safe for concurrent use; callers running
// concurrent pipelines create one Decoder per stream (spec.md §5).
type Decoder interface {
	// SendPacket submits one packet for decoding. A nil packet signals
	// end of stream and flushes any buffered reference frames.
	SendPacket(p *packet.Packet) error

	// ReceiveFrame returns the next decoded frame, or mediaerr.NeedMoreData
	// if the decoder needs another SendPacket call before it can produce
	// one, or mediaerr.Eof once a nil-packet flush is fully drained.
	ReceiveFrame() (frame.Frame, error)

	// Close releases any internal state (reference frame buffers, DPB).
	Close() error
}

// Encoder turns decoded Frames of one stream into compressed Packets.
type Encoder interface {
	// SendFrame submits one frame for encoding. A zero Frame (Kind is its
	// zero value and both payloads empty) signals end of stream.
	SendFrame(f frame.Frame) error

	// ReceivePacket returns the next encoded packet, or
	// mediaerr.NeedMoreData / mediaerr.Eof as with Decoder.ReceiveFrame.
	ReceivePacket() (*packet.Packet, error)

	Close() error
}

// DecoderFactory constructs a Decoder configured from a stream's codec
// parameters.
type DecoderFactory func(par stream.CodecParameters) (Decoder, error)

// EncoderFactory constructs an Encoder from the caller's desired output
// parameters.
type EncoderFactory func(par stream.CodecParameters) (Encoder, error)

// Registry maps mediatype.CodecID to the factories that construct decoders
// and encoders for it. The zero value is usable; RegisterAll in
// pkg/registry populates a shared instance for cmd/taoctl.
type Registry struct {
	mu       sync.RWMutex
	decoders map[mediatype.CodecID]DecoderFactory
	encoders map[mediatype.CodecID]EncoderFactory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[mediatype.CodecID]DecoderFactory),
		encoders: make(map[mediatype.CodecID]EncoderFactory),
	}
}

// RegisterDecoder registers a decoder factory for id, overwriting any
// prior registration — codec subpackages call this from an init() or
// from pkg/registry.RegisterAll.
func (r *Registry) RegisterDecoder(id mediatype.CodecID, f DecoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[id] = f
}

// RegisterEncoder registers an encoder factory for id.
func (r *Registry) RegisterEncoder(id mediatype.CodecID, f EncoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[id] = f
}

// NewDecoder constructs a decoder for par.CodecID, or returns
// mediaerr.CodecNotFound if nothing is registered for it.
func (r *Registry) NewDecoder(par stream.CodecParameters) (Decoder, error) {
	r.mu.RLock()
	f, ok := r.decoders[par.CodecID]
	r.mu.RUnlock()
	if !ok {
		return nil, mediaerr.NewCodecNotFound(par.CodecID.String())
	}
	return f(par)
}

// NewEncoder constructs an encoder for par.CodecID, or returns
// mediaerr.CodecNotFound if nothing is registered for it.
func (r *Registry) NewEncoder(par stream.CodecParameters) (Encoder, error) {
	r.mu.RLock()
	f, ok := r.encoders[par.CodecID]
	r.mu.RUnlock()
	if !ok {
		return nil, mediaerr.NewCodecNotFound(par.CodecID.String())
	}
	return f(par)
}

// HasDecoder reports whether a decoder is registered for id.
func (r *Registry) HasDecoder(id mediatype.CodecID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[id]
	return ok
}

// HasEncoder reports whether an encoder is registered for id.
func (r *Registry) HasEncoder(id mediatype.CodecID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.encoders[id]
	return ok
}

// String returns a human-readable summary, used by `taoctl probe -v`.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("codec.Registry{decoders=%d encoders=%d}", len(r.decoders), len(r.encoders))
}
