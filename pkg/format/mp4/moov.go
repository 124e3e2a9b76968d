package mp4

import (
	"encoding/binary"

	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/stream"
)

// boxBuf accumulates a box's body in memory so its size can be computed
// before the size+tag header is emitted, mirroring how fragmented-MP4
// writers build moof/traf bottom-up.
type boxBuf struct{ b []byte }

func (w *boxBuf) u8(v uint8) { w.b = append(w.b, v) }
func (w *boxBuf) u16(v uint16) {
	var t [2]byte
	binary.BigEndian.PutUint16(t[:], v)
	w.b = append(w.b, t[:]...)
}
func (w *boxBuf) u24(v uint32) { w.b = append(w.b, byte(v>>16), byte(v>>8), byte(v)) }
func (w *boxBuf) u32(v uint32) {
	var t [4]byte
	binary.BigEndian.PutUint32(t[:], v)
	w.b = append(w.b, t[:]...)
}
func (w *boxBuf) u64(v uint64) {
	var t [8]byte
	binary.BigEndian.PutUint64(t[:], v)
	w.b = append(w.b, t[:]...)
}
func (w *boxBuf) raw(p []byte) { w.b = append(w.b, p...) }
func (w *boxBuf) tag(s string) { w.b = append(w.b, s...) }
func (w *boxBuf) zero(n int)   { w.b = append(w.b, make([]byte, n)...) }

// wrapBox wraps inner as a complete box: 4-byte size + 4-byte tag + inner.
func wrapBox(tag string, inner []byte) []byte {
	out := make([]byte, 8+len(inner))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(inner)))
	copy(out[4:8], tag)
	copy(out[8:], inner)
	return out
}

// fullBox prepends the full-box version/flags word to inner before
// wrapping with wrapBox.
func fullBox(tag string, version uint8, flags uint32, inner []byte) []byte {
	var b boxBuf
	b.u32(uint32(version)<<24 | (flags & 0x00ffffff))
	b.raw(inner)
	return wrapBox(tag, b.b)
}

const mp4Timescale = 90000

func writeMoov(w *bytestream.Writer, tracks []*muxTrack) error {
	var moov boxBuf

	var movieDuration uint32
	for _, t := range tracks {
		d := trackDurationIn(t, mp4Timescale)
		if d > movieDuration {
			movieDuration = d
		}
	}

	var mvhd boxBuf
	mvhd.u32(0) // creation_time
	mvhd.u32(0) // modification_time
	mvhd.u32(mp4Timescale)
	mvhd.u32(movieDuration)
	mvhd.u32(0x00010000) // rate 1.0
	mvhd.u16(0x0100)     // volume 1.0
	mvhd.u16(0)          // reserved
	mvhd.zero(8)         // reserved[2]
	writeIdentityMatrix(&mvhd)
	mvhd.zero(24) // pre_defined[6]
	mvhd.u32(uint32(len(tracks) + 1))
	moov.raw(fullBox("mvhd", 0, 0, mvhd.b))

	for i, t := range tracks {
		trak, err := buildTrak(i+1, t)
		if err != nil {
			return err
		}
		moov.raw(trak)
	}

	return w.WriteBytes(wrapBox("moov", moov.b))
}

func writeIdentityMatrix(b *boxBuf) {
	matrix := [9]uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, v := range matrix {
		b.u32(v)
	}
}

func trackDurationIn(t *muxTrack, targetTimescale uint32) uint32 {
	if len(t.dts) == 0 || !t.timeBase.IsValid() {
		return 0
	}
	lastDTS := t.dts[len(t.dts)-1]
	num := int64(t.timeBase.Num) * int64(targetTimescale)
	den := int64(t.timeBase.Den)
	if den == 0 {
		return 0
	}
	return uint32((lastDTS * num) / den)
}

func buildTrak(trackID int, t *muxTrack) ([]byte, error) {
	var trak boxBuf

	var tkhd boxBuf
	tkhd.u32(0) // creation_time
	tkhd.u32(0) // modification_time
	tkhd.u32(uint32(trackID))
	tkhd.u32(0) // reserved
	tkhd.u32(trackDurationIn(t, mp4Timescale))
	tkhd.zero(8) // reserved[2]
	tkhd.u16(0)  // layer
	tkhd.u16(0)  // alternate_group
	if t.par.CodecID.IsAudio() {
		tkhd.u16(0x0100) // volume 1.0
	} else {
		tkhd.u16(0)
	}
	tkhd.u16(0) // reserved
	writeIdentityMatrix(&tkhd)
	tkhd.u32(uint32(t.par.Width) << 16)
	tkhd.u32(uint32(t.par.Height) << 16)
	trak.raw(fullBox("tkhd", 0, 0x000007, tkhd.b)) // flags: enabled|in_movie|in_preview

	var mdia boxBuf

	var mdhd boxBuf
	mdhd.u32(0)
	mdhd.u32(0)
	mdhd.u32(uint32(t.timeBase.Den))
	mdhd.u32(trackDurationIn(t, uint32(t.timeBase.Den)))
	mdhd.u16(0x55c4) // language "und"
	mdhd.u16(0)
	mdia.raw(fullBox("mdhd", 0, 0, mdhd.b))

	var hdlr boxBuf
	hdlr.u32(0) // pre_defined
	if t.par.CodecID.IsAudio() {
		hdlr.tag("soun")
	} else {
		hdlr.tag("vide")
	}
	hdlr.zero(12)
	hdlr.raw([]byte("tao handler\x00"))
	mdia.raw(fullBox("hdlr", 0, 0, hdlr.b))

	minf, err := buildMinf(t)
	if err != nil {
		return nil, err
	}
	mdia.raw(minf)

	trak.raw(wrapBox("mdia", mdia.b))
	return wrapBox("trak", trak.b), nil
}

func buildMinf(t *muxTrack) ([]byte, error) {
	var minf boxBuf
	if t.par.CodecID.IsAudio() {
		var smhd boxBuf
		smhd.u16(0)
		smhd.u16(0)
		minf.raw(fullBox("smhd", 0, 0, smhd.b))
	} else {
		var vmhd boxBuf
		vmhd.u16(0)
		vmhd.zero(6)
		minf.raw(fullBox("vmhd", 0, 1, vmhd.b))
	}

	var dinf boxBuf
	var url boxBuf
	dinf.raw(fullBox("url ", 0, 1, url.b))
	drefInner := boxBuf{}
	drefInner.u32(1)
	drefInner.raw(dinf.b)
	minf.raw(wrapBox("dinf", wrapBox("dref", fullBoxPrefixed(0, 0, drefInner.b))))

	stbl, err := buildStbl(t)
	if err != nil {
		return nil, err
	}
	minf.raw(stbl)
	return wrapBox("minf", minf.b), nil
}

// fullBoxPrefixed prepends a version/flags word without wrapping — used
// when the caller (dref) already wraps the result itself.
func fullBoxPrefixed(version uint8, flags uint32, inner []byte) []byte {
	var b boxBuf
	b.u32(uint32(version)<<24 | (flags & 0x00ffffff))
	b.raw(inner)
	return b.b
}

func buildStbl(t *muxTrack) ([]byte, error) {
	var stbl boxBuf
	stbl.raw(buildStsd(t.par))
	stbl.raw(buildStts(t))
	stbl.raw(buildStsc(len(t.sizes)))
	stbl.raw(buildStsz(t.sizes))
	stbl.raw(buildStco(t.offsets))
	if !t.allSync {
		stbl.raw(buildStss(t.sync))
	}
	return wrapBox("stbl", stbl.b), nil
}

func buildStsd(par stream.CodecParameters) []byte {
	var inner boxBuf
	inner.u32(1) // entry_count
	inner.raw(buildSampleEntry(par))
	return fullBox("stsd", 0, 0, inner.b)
}

func buildSampleEntry(par stream.CodecParameters) []byte {
	switch par.CodecID {
	case mediatype.CodecH264:
		return buildAVC1(par)
	case mediatype.CodecAAC:
		return buildMP4A(par)
	case mediatype.CodecMPEG4Part2:
		return buildMP4V(par)
	default:
		return wrapBox("mp4s", nil)
	}
}

func buildAVC1(par stream.CodecParameters) []byte {
	var e boxBuf
	e.zero(6)
	e.u16(1) // data_reference_index
	e.u16(0) // pre_defined
	e.u16(0) // reserved
	e.zero(12)
	e.u16(uint16(par.Width))
	e.u16(uint16(par.Height))
	e.u32(0x00480000) // horizresolution 72dpi
	e.u32(0x00480000)
	e.u32(0) // reserved
	e.u16(1) // frame_count
	e.zero(32)
	e.u16(0x0018) // depth
	e.u16(0xffff) // pre_defined
	if len(par.ExtraData) > 0 {
		e.raw(wrapBox("avcC", par.ExtraData))
	}
	return wrapBox("avc1", e.b)
}

func buildMP4V(par stream.CodecParameters) []byte {
	var e boxBuf
	e.zero(6)
	e.u16(1)
	e.u16(0)
	e.u16(0)
	e.zero(12)
	e.u16(uint16(par.Width))
	e.u16(uint16(par.Height))
	e.u32(0x00480000)
	e.u32(0x00480000)
	e.u32(0)
	e.u16(1)
	e.zero(32)
	e.u16(0x0018)
	e.u16(0xffff)
	if len(par.ExtraData) > 0 {
		e.raw(wrapBox("esds", buildESDS(par.ExtraData, 0x20)))
	}
	return wrapBox("mp4v", e.b)
}

func buildMP4A(par stream.CodecParameters) []byte {
	var e boxBuf
	e.zero(6)
	e.u16(1)
	e.zero(8)
	e.u16(uint16(par.Channels))
	e.u16(16) // sample size
	e.u16(0)
	e.u16(0)
	e.u32(uint32(par.SampleRate) << 16)
	if len(par.ExtraData) > 0 {
		e.raw(wrapBox("esds", buildESDS(par.ExtraData, 0x40)))
	}
	return wrapBox("mp4a", e.b)
}

// buildESDS wraps a raw DecoderSpecificInfo payload (AudioSpecificConfig
// or VOL header) in a minimal ES_Descriptor/DecoderConfigDescriptor tree.
func buildESDS(dsi []byte, objectTypeIndication byte) []byte {
	var dsiDesc boxBuf
	dsiDesc.u8(0x05)
	writeDescLen(&dsiDesc, len(dsi))
	dsiDesc.raw(dsi)

	var decCfg boxBuf
	decCfg.u8(objectTypeIndication)
	decCfg.u8(0x15) // streamType=audio/visual(5)<<2 | upStream(0) | reserved(1)
	decCfg.u24(0)   // bufferSizeDB
	decCfg.u32(0)   // maxBitrate
	decCfg.u32(0)   // avgBitrate
	decCfg.raw(dsiDesc.b)

	var decCfgDesc boxBuf
	decCfgDesc.u8(0x04)
	writeDescLen(&decCfgDesc, len(decCfg.b))
	decCfgDesc.raw(decCfg.b)

	var slCfg boxBuf
	slCfg.u8(0x06)
	writeDescLen(&slCfg, 1)
	slCfg.u8(0x02)

	var es boxBuf
	es.u16(0) // ES_ID
	es.u8(0)  // flags
	es.raw(decCfgDesc.b)
	es.raw(slCfg.b)

	var esDesc boxBuf
	esDesc.u8(0x03)
	writeDescLen(&esDesc, len(es.b))
	esDesc.raw(es.b)

	return fullBoxPrefixed(0, 0, esDesc.b)
}

func writeDescLen(b *boxBuf, n int) {
	// Single-byte form is sufficient for our small descriptor payloads
	// (AudioSpecificConfig / VOL headers are well under 128 bytes in the
	// mainstream streams this core targets).
	if n < 0x80 {
		b.u8(uint8(n))
		return
	}
	b.u8(uint8(n>>21) | 0x80)
	b.u8(uint8(n>>14) | 0x80)
	b.u8(uint8(n>>7) | 0x80)
	b.u8(uint8(n & 0x7f))
}

func buildStts(t *muxTrack) []byte {
	var inner boxBuf
	type run struct {
		count uint32
		delta uint32
	}
	var runs []run
	for i := 0; i < len(t.dts); i++ {
		var delta uint32
		if i+1 < len(t.dts) {
			delta = uint32(t.dts[i+1] - t.dts[i])
		} else if len(runs) > 0 {
			delta = runs[len(runs)-1].delta
		}
		if len(runs) > 0 && runs[len(runs)-1].delta == delta {
			runs[len(runs)-1].count++
		} else {
			runs = append(runs, run{count: 1, delta: delta})
		}
	}
	inner.u32(uint32(len(runs)))
	for _, r := range runs {
		inner.u32(r.count)
		inner.u32(r.delta)
	}
	return fullBox("stts", 0, 0, inner.b)
}

func buildStsc(sampleCount int) []byte {
	var inner boxBuf
	if sampleCount == 0 {
		inner.u32(0)
		return fullBox("stsc", 0, 0, inner.b)
	}
	inner.u32(1)
	inner.u32(1) // first_chunk
	inner.u32(1) // samples_per_chunk (one sample per chunk)
	inner.u32(1) // sample_description_index
	return fullBox("stsc", 0, 0, inner.b)
}

func buildStsz(sizes []uint32) []byte {
	var inner boxBuf
	inner.u32(0) // sample_size=0 => explicit table follows
	inner.u32(uint32(len(sizes)))
	for _, s := range sizes {
		inner.u32(s)
	}
	return fullBox("stsz", 0, 0, inner.b)
}

func buildStco(offsets []int64) []byte {
	var inner boxBuf
	inner.u32(uint32(len(offsets)))
	for _, o := range offsets {
		inner.u32(uint32(o))
	}
	return fullBox("stco", 0, 0, inner.b)
}

func buildStss(sync []bool) []byte {
	var inner boxBuf
	idxs := make([]uint32, 0)
	for i, s := range sync {
		if s {
			idxs = append(idxs, uint32(i+1))
		}
	}
	inner.u32(uint32(len(idxs)))
	for _, i := range idxs {
		inner.u32(i)
	}
	return fullBox("stss", 0, 0, inner.b)
}
