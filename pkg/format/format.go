// Package format defines the demuxer/muxer contract and the container
// format registry of spec.md §4.1. Individual containers live in
// subpackages (pkg/format/mp4, pkg/format/mkv, pkg/format/mpegts,
// pkg/format/flv, pkg/format/avi, pkg/format/wav, pkg/format/adts,
// pkg/format/m4v) and register a Probe/Demuxer/Muxer triple with a
// Registry, mirroring pkg/codec's registration idiom.
package format

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// FormatID identifies a container format.
type FormatID int

const (
	FormatUnknown FormatID = iota
	FormatMP4
	FormatMatroska
	FormatWebM
	FormatMPEGTS
	FormatFLV
	FormatAVI
	FormatWAV
	FormatADTS
	FormatM4V
)

func (f FormatID) String() string {
	switch f {
	case FormatMP4:
		return "mp4"
	case FormatMatroska:
		return "matroska"
	case FormatWebM:
		return "webm"
	case FormatMPEGTS:
		return "mpegts"
	case FormatFLV:
		return "flv"
	case FormatAVI:
		return "avi"
	case FormatWAV:
		return "wav"
	case FormatADTS:
		return "adts"
	case FormatM4V:
		return "m4v"
	default:
		return "unknown"
	}
}

// Demuxer reads packets out of one opened container instance.
type Demuxer interface {
	// Streams returns the container's stream table, populated once header
	// parsing completes (during Open).
	Streams() []stream.Stream

	// ReadPacket returns the next demuxed packet in file order, or
	// mediaerr.Eof once the container is exhausted.
	ReadPacket() (*packet.Packet, error)

	// SeekTo seeks the given stream to the first keyframe at or before
	// timestamp ts (in that stream's time base). Returns
	// mediaerr.Unsupported if the underlying stream is not seekable.
	SeekTo(streamIndex int, ts int64) error

	// Close releases any resources the demuxer holds open.
	Close() error
}

// Muxer writes packets into a container being built.
type Muxer interface {
	// AddStream registers an output stream, returning its assigned index.
	// All AddStream calls must happen before the first WritePacket.
	AddStream(par stream.CodecParameters, timeBase rational.Rational) (int, error)

	// WriteHeader finalizes the stream table and writes the container
	// header. Must be called once, after all AddStream calls.
	WriteHeader() error

	// WritePacket appends one packet to the stream it targets.
	WritePacket(p *packet.Packet) error

	// WriteTrailer finalizes any index/duration fields that require
	// knowing the full packet sequence (e.g. MP4 moov, AVI idx1).
	WriteTrailer() error

	Close() error
}

// DemuxerFactory opens a Demuxer over an already-probed ByteStream.
type DemuxerFactory func(s bytestream.ByteStream) (Demuxer, error)

// MuxerFactory opens a Muxer writing into a ByteStream.
type MuxerFactory func(s bytestream.ByteStream) (Muxer, error)

// ProbeFunc scores how confidently the leading bytes of a stream match a
// container format. 0 means no match; conventionally higher scores (up to
// 100) indicate stronger signature matches (e.g. an exact magic number
// beats a heuristic content scan).
type ProbeFunc func(peek []byte) int

// formatEntry bundles one container format's registration.
type formatEntry struct {
	id         FormatID
	probe      ProbeFunc
	extensions []string
	demuxer    DemuxerFactory
	muxer      MuxerFactory
}

// Registry maps FormatID to demuxer/muxer factories and supports probing
// a byte stream's leading bytes or a filename extension to identify it.
type Registry struct {
	mu      sync.RWMutex
	entries map[FormatID]*formatEntry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[FormatID]*formatEntry)}
}

// Register adds a container format. extensions are lower-case, without
// the leading dot (e.g. "mp4", "m4a").
func (r *Registry) Register(id FormatID, probe ProbeFunc, extensions []string, dm DemuxerFactory, mx MuxerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = &formatEntry{id: id, probe: probe, extensions: extensions, demuxer: dm, muxer: mx}
}

// ProbeBufferSize is the number of leading bytes Probe callers should read
// before calling Probe — enough for every registered format's signature
// check (the longest is MPEG-TS, which scans up to eight 188-byte packets).
const ProbeBufferSize = 4096

// Probe returns the FormatID whose ProbeFunc scores peek highest, or
// FormatUnknown if no registered format recognises it.
func (r *Registry) Probe(peek []byte) FormatID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := FormatUnknown
	bestScore := 0
	for id, e := range r.entries {
		if e.probe == nil {
			continue
		}
		if score := e.probe(peek); score > bestScore {
			bestScore = score
			best = id
		}
	}
	return best
}

// FromExtension maps a filename to a FormatID by its extension, or
// FormatUnknown if no registered format claims it.
func (r *Registry) FromExtension(filename string) FormatID {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return FormatUnknown
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, e := range r.entries {
		for _, want := range e.extensions {
			if want == ext {
				return id
			}
		}
	}
	return FormatUnknown
}

// OpenInput probes s's leading bytes and opens a Demuxer for the
// identified format. s must be seekable if a probe's demuxer requires
// backward reads (e.g. MP4's trailing moov).
func (r *Registry) OpenInput(s bytestream.ByteStream) (Demuxer, error) {
	peek := make([]byte, ProbeBufferSize)
	n, err := s.Read(peek)
	if err != nil && n == 0 {
		return nil, mediaerr.NewIo(err)
	}
	peek = peek[:n]

	id := r.Probe(peek)
	if id == FormatUnknown {
		return nil, mediaerr.NewUnsupported("format: no registered demuxer recognises this stream")
	}

	if s.IsSeekable() {
		if _, err := s.Seek(0, bytestream.SeekStart); err != nil {
			return nil, mediaerr.NewIo(err)
		}
	} else {
		s = newPrefixPrependStream(peek, s)
	}

	r.mu.RLock()
	e := r.entries[id]
	r.mu.RUnlock()
	if e == nil || e.demuxer == nil {
		return nil, mediaerr.NewUnsupported("format: %s has no demuxer registered", id)
	}
	return e.demuxer(s)
}

// NewMuxer constructs a Muxer for id writing into s.
func (r *Registry) NewMuxer(id FormatID, s bytestream.ByteStream) (Muxer, error) {
	r.mu.RLock()
	e := r.entries[id]
	r.mu.RUnlock()
	if e == nil || e.muxer == nil {
		return nil, mediaerr.NewUnsupported("format: %s has no muxer registered", id)
	}
	return e.muxer(s)
}

// MuxerFromFilename constructs a Muxer by guessing the format from
// filename's extension.
func (r *Registry) MuxerFromFilename(filename string, s bytestream.ByteStream) (Muxer, error) {
	id := r.FromExtension(filename)
	if id == FormatUnknown {
		return nil, mediaerr.NewUnsupported("format: no registered muxer for extension of %q", filename)
	}
	return r.NewMuxer(id, s)
}

// String returns a human-readable summary, used by `taoctl probe -v`.
func (r *Registry) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("format.Registry{formats=%d}", len(r.entries))
}
