package mp4

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// muxTrack accumulates one output track's sample table as packets arrive.
type muxTrack struct {
	par      stream.CodecParameters
	timeBase rational.Rational
	sizes    []uint32
	offsets  []int64
	dts      []int64
	sync     []bool
	allSync  bool
}

// muxer writes an MP4 with a single leading mdat (sizes/offsets/sync
// flags collected as packets stream through) and the moov box appended
// last, once every sample table is fully known (spec.md §3 "Muxer
// lifecycle": write_header -> write_packet* -> write_trailer may
// backpatch header fields or append index chunks — here the index
// chunk is the trailing moov).
type muxer struct {
	w         *bytestream.Writer
	tracks    []*muxTrack
	mdatStart int64 // absolute offset of mdat's first payload byte
	wroteHdr  bool
}

func newMuxer(s bytestream.ByteStream) *muxer {
	return &muxer{w: bytestream.NewWriter(s)}
}

func (m *muxer) AddStream(par stream.CodecParameters, timeBase rational.Rational) (int, error) {
	idx := len(m.tracks)
	m.tracks = append(m.tracks, &muxTrack{par: par, timeBase: timeBase, allSync: true})
	return idx, nil
}

func (m *muxer) WriteHeader() error {
	if err := m.writeFtyp(); err != nil {
		return err
	}
	if err := m.w.WriteU32BE(0); err != nil { // placeholder size, backpatched in WriteTrailer
		return err
	}
	if err := m.w.WriteTag("mdat"); err != nil {
		return err
	}
	mdatStart, err := m.w.Position()
	if err != nil {
		return err
	}
	m.mdatStart = mdatStart
	m.wroteHdr = true
	return nil
}

func (m *muxer) writeFtyp() error {
	if err := m.w.WriteU32BE(24); err != nil {
		return err
	}
	if err := m.w.WriteTag("ftyp"); err != nil {
		return err
	}
	if err := m.w.WriteTag("isom"); err != nil {
		return err
	}
	if err := m.w.WriteU32BE(512); err != nil {
		return err
	}
	if err := m.w.WriteTag("isom"); err != nil {
		return err
	}
	return m.w.WriteTag("mp41")
}

func (m *muxer) WritePacket(p *packet.Packet) error {
	if !m.wroteHdr {
		return mediaerr.NewInvalidArgument("mp4: WriteHeader not called")
	}
	if p.StreamIndex < 0 || p.StreamIndex >= len(m.tracks) {
		return mediaerr.NewStreamNotFound(p.StreamIndex)
	}
	t := m.tracks[p.StreamIndex]
	off, err := m.w.Position()
	if err != nil {
		return err
	}
	if err := m.w.WriteBytes(p.Bytes()); err != nil {
		return err
	}
	t.offsets = append(t.offsets, off)
	t.sizes = append(t.sizes, uint32(p.Size()))
	dts := p.DTS
	if dts == rational.NoPTS {
		dts = p.PTS
	}
	t.dts = append(t.dts, dts)
	t.sync = append(t.sync, p.IsKeyframe)
	if !p.IsKeyframe {
		t.allSync = false
	}
	return nil
}

func (m *muxer) WriteTrailer() error {
	endPos, err := m.w.Position()
	if err != nil {
		return err
	}
	mdatSize := endPos - (m.mdatStart - 8)
	if err := m.w.SeekTo(m.mdatStart - 8); err != nil {
		return err
	}
	if err := m.w.WriteU32BE(uint32(mdatSize)); err != nil {
		return err
	}
	if err := m.w.SeekTo(endPos); err != nil {
		return err
	}
	return writeMoov(m.w, m.tracks)
}

func (m *muxer) Close() error { return nil }
