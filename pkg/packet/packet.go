// Package packet implements the demuxed/to-be-muxed compressed data unit of
// spec.md §3: Packet. Data is held behind a refcounted buffer so Clone is
// O(1) and mutation triggers copy-on-write, matching the way the teacher's
// internal/models types favour small value-ish structs over deep copies.
package packet

import "github.com/jmylchreest/tao/pkg/rational"

// sharedData is the refcounted backing buffer multiple Packet clones may
// point at until one of them calls SetBytes.
type sharedData struct {
	buf  []byte
	refs *int32
}

func newSharedData(buf []byte) sharedData {
	refs := int32(1)
	return sharedData{buf: buf, refs: &refs}
}

func (s sharedData) retain() sharedData {
	*s.refs++
	return s
}

// Packet is one demuxed (or to-be-muxed) compressed access unit: an
// elementary-stream byte range tagged with stream index, timestamps, and
// keyframe/position metadata.
type Packet struct {
	data sharedData

	StreamIndex int
	PTS         int64
	DTS         int64
	Duration    int64
	TimeBase    rational.Rational
	IsKeyframe  bool
	Pos         int64 // byte offset in the source stream, -1 if unknown
}

// New wraps buf as a Packet's sole owner. PTS/DTS default to rational.NoPTS.
func New(streamIndex int, buf []byte, timeBase rational.Rational) *Packet {
	return &Packet{
		data:        newSharedData(buf),
		StreamIndex: streamIndex,
		PTS:         rational.NoPTS,
		DTS:         rational.NoPTS,
		Duration:    0,
		TimeBase:    timeBase,
		Pos:         -1,
	}
}

// Bytes returns the packet's payload. The returned slice must not be
// retained past a subsequent call to SetBytes on this or a cloned Packet
// unless the caller owns the sole reference (RefCount() == 1).
func (p *Packet) Bytes() []byte {
	return p.data.buf
}

// Size returns the payload length in bytes.
func (p *Packet) Size() int {
	return len(p.data.buf)
}

// RefCount returns the number of Packet values currently sharing this
// payload buffer, including this one.
func (p *Packet) RefCount() int32 {
	return *p.data.refs
}

// SetBytes replaces the payload. If this Packet is the sole owner the
// buffer is reused in place; otherwise a private copy is made first
// (copy-on-write) so sibling clones are unaffected.
func (p *Packet) SetBytes(buf []byte) {
	if p.RefCount() > 1 {
		*p.data.refs--
		p.data = newSharedData(nil)
	}
	p.data.buf = buf
}

// Clone returns a new Packet sharing this one's payload buffer at zero
// copy cost; the two share a refcount until either calls SetBytes.
func (p *Packet) Clone() *Packet {
	clone := *p
	clone.data = p.data.retain()
	return &clone
}

// Release decrements the refcount. Packets are ordinary garbage-collected
// values; Release exists so callers can make buffer-sharing lifetime
// explicit in long-lived pipelines (spec.md §5), not to free memory by hand.
func (p *Packet) Release() {
	if p.data.refs != nil && *p.data.refs > 0 {
		*p.data.refs--
	}
}
