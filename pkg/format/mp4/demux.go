package mp4

import (
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

// sampleEntry is one reconstructed access unit location in the file.
type sampleEntry struct {
	offset   int64
	size     uint32
	pts      int64 // in the track's time_base, dts plus ctts offset
	dts      int64 // in the track's time_base, cumulative stts
	keyframe bool
}

type track struct {
	id         uint32
	st         stream.Stream
	samples    []sampleEntry
	nalLenSize int // 0 = not length-prefixed (e.g. audio / Annex-B already)
}

type demuxer struct {
	r        *bytestream.Reader
	tracks   []*track
	streams  []stream.Stream
	cursors  []int // per-stream next sample index
	duration float64
	title    string // from moov/udta/meta/ilst's ©nam, if present

	// lastStbl holds the sample tables parsed for the most recently
	// walked minf/stbl box; parseTrak reads it immediately after
	// parseMdia returns since each track has exactly one stbl.
	lastStbl stblTables
}

func openDemuxer(s bytestream.ByteStream) (*demuxer, error) {
	if !s.IsSeekable() {
		return nil, mediaerr.NewUnsupported("mp4: demuxer requires a seekable stream")
	}
	r := bytestream.NewReader(s)
	fileEnd, _ := s.Size()

	d := &demuxer{r: r}

	var timescale uint32 = 1000
	var movDuration uint64

	// Top-level box walk: we need moov (for stbl+mdhd/mvhd); mdat's
	// absolute offsets are already resolved via stco/co64, so we don't
	// need to remember mdat's position specifically.
	for {
		b, err := readBoxHeader(r, fileEnd)
		if err != nil {
			if err == mediaerr.Eof {
				break
			}
			return nil, err
		}
		switch b.typ {
		case "moov":
			ts, dur, err := d.parseMoov(b)
			if err != nil {
				return nil, err
			}
			timescale, movDuration = ts, dur
		}
		if err := r.SeekTo(b.bodyEnd); err != nil {
			if err == mediaerr.Eof {
				break
			}
			return nil, err
		}
	}

	if len(d.tracks) == 0 {
		return nil, mediaerr.NewInvalidData("mp4: no tracks found in moov")
	}

	for _, t := range d.tracks {
		if d.title != "" {
			t.st.Metadata.Title = d.title
		}
		d.streams = append(d.streams, t.st)
		d.cursors = append(d.cursors, 0)
	}
	if timescale > 0 {
		d.duration = float64(movDuration) / float64(timescale)
	}
	return d, nil
}

// parseMoov walks mvhd + trak[] and returns the movie timescale/duration.
func (d *demuxer) parseMoov(moov box) (timescale uint32, duration uint64, err error) {
	if err := d.r.SeekTo(moov.bodyStart); err != nil {
		return 0, 0, err
	}
	for {
		pos, _ := d.r.Position()
		if pos >= moov.bodyEnd {
			break
		}
		b, err := readBoxHeader(d.r, moov.bodyEnd)
		if err != nil {
			return 0, 0, err
		}
		switch b.typ {
		case "mvhd":
			ver, _, err := fullBoxHeader(d.r)
			if err != nil {
				return 0, 0, err
			}
			if ver == 1 {
				if _, err := d.r.ReadU64BE(); err != nil { // creation
					return 0, 0, err
				}
				if _, err := d.r.ReadU64BE(); err != nil { // modification
					return 0, 0, err
				}
				timescale32, err := d.r.ReadU32BE()
				if err != nil {
					return 0, 0, err
				}
				timescale = timescale32
				dur, err := d.r.ReadU64BE()
				if err != nil {
					return 0, 0, err
				}
				duration = dur
			} else {
				if _, err := d.r.ReadU32BE(); err != nil {
					return 0, 0, err
				}
				if _, err := d.r.ReadU32BE(); err != nil {
					return 0, 0, err
				}
				timescale32, err := d.r.ReadU32BE()
				if err != nil {
					return 0, 0, err
				}
				timescale = timescale32
				dur32, err := d.r.ReadU32BE()
				if err != nil {
					return 0, 0, err
				}
				duration = uint64(dur32)
			}
		case "trak":
			t, err := d.parseTrak(b)
			if err != nil {
				return 0, 0, err
			}
			if t != nil {
				d.tracks = append(d.tracks, t)
			}
		case "udta":
			title, err := d.parseUdta(b)
			if err != nil {
				return 0, 0, err
			}
			d.title = title
		}
		if err := d.r.SeekTo(b.bodyEnd); err != nil {
			return 0, 0, err
		}
	}
	return timescale, duration, nil
}

// parseUdta walks a moov/udta box looking for the iTunes-style
// meta/ilst/©nam chain that carries a movie title, returning "" if none
// of that structure is present.
func (d *demuxer) parseUdta(udta box) (string, error) {
	if err := d.r.SeekTo(udta.bodyStart); err != nil {
		return "", err
	}
	for {
		pos, _ := d.r.Position()
		if pos >= udta.bodyEnd {
			return "", nil
		}
		b, err := readBoxHeader(d.r, udta.bodyEnd)
		if err != nil {
			return "", err
		}
		if b.typ == "meta" {
			title, err := d.parseMeta(b)
			if err != nil {
				return "", err
			}
			if title != "" {
				return title, nil
			}
		}
		if err := d.r.SeekTo(b.bodyEnd); err != nil {
			return "", err
		}
	}
}

// parseMeta walks udta/meta's children for an ilst box. meta is a full
// box (ISO/IEC 14496-12 §8.11.1): 4 bytes of version+flags precede its
// child box list.
func (d *demuxer) parseMeta(meta box) (string, error) {
	if err := d.r.SeekTo(meta.bodyStart); err != nil {
		return "", err
	}
	if _, _, err := fullBoxHeader(d.r); err != nil {
		return "", err
	}
	for {
		pos, _ := d.r.Position()
		if pos >= meta.bodyEnd {
			return "", nil
		}
		b, err := readBoxHeader(d.r, meta.bodyEnd)
		if err != nil {
			return "", err
		}
		if b.typ == "ilst" {
			return d.parseIlst(b)
		}
		if err := d.r.SeekTo(b.bodyEnd); err != nil {
			return "", err
		}
	}
}

// parseIlst reads meta/ilst's "©nam" entry: a box containing one "data"
// child, itself an 8-byte type+locale header followed by the tag value
// (UTF-8 text for type 1, the only type this package surfaces).
func (d *demuxer) parseIlst(ilst box) (string, error) {
	if err := d.r.SeekTo(ilst.bodyStart); err != nil {
		return "", err
	}
	for {
		pos, _ := d.r.Position()
		if pos >= ilst.bodyEnd {
			return "", nil
		}
		b, err := readBoxHeader(d.r, ilst.bodyEnd)
		if err != nil {
			return "", err
		}
		if b.typ != "\xa9nam" {
			if err := d.r.SeekTo(b.bodyEnd); err != nil {
				return "", err
			}
			continue
		}
		data, err := readBoxHeader(d.r, b.bodyEnd)
		if err != nil {
			return "", err
		}
		if data.typ != "data" || data.size() < 8 {
			return "", nil
		}
		if err := d.r.Skip(8); err != nil { // data type (4) + locale (4)
			return "", err
		}
		raw, err := d.r.ReadBytes(int(data.bodyEnd - data.bodyStart - 8))
		if err != nil {
			return "", err
		}
		return sanitizeUTF8Tag(raw), nil
	}
}

func (d *demuxer) parseTrak(trak box) (*track, error) {
	t := &track{}
	var mediaTimescale uint32
	var sttsEntries [][2]uint32 // sample_count, sample_delta
	var cttsEntries [][2]uint32 // sample_count, sample_offset
	var stscEntries [][3]uint32 // first_chunk, samples_per_chunk, sample_desc_index
	var stszSizes []uint32
	var stszDefault uint32
	var chunkOffsets []int64
	var syncSamples map[uint32]bool
	var haveStss bool
	var mediaType mediatype.MediaType = mediatype.Unknown
	var codecPar stream.CodecParameters
	var width, height int
	var lang string

	if err := d.r.SeekTo(trak.bodyStart); err != nil {
		return nil, err
	}
	for {
		pos, _ := d.r.Position()
		if pos >= trak.bodyEnd {
			break
		}
		b, err := readBoxHeader(d.r, trak.bodyEnd)
		if err != nil {
			return nil, err
		}
		switch b.typ {
		case "tkhd":
			ver, _, err := fullBoxHeader(d.r)
			if err != nil {
				return nil, err
			}
			if ver == 1 {
				d.r.Skip(8 + 8 + 4 + 4 + 8) // creation, mod, track_id, reserved, duration
			} else {
				d.r.Skip(4 + 4 + 4 + 4 + 4)
			}
			d.r.Skip(8)     // reserved[2]
			d.r.Skip(2 + 2) // layer, alternate_group
			d.r.Skip(2 + 2) // volume, reserved
			d.r.Skip(36)    // matrix
			w, _ := d.r.ReadU32BE()
			h, _ := d.r.ReadU32BE()
			width = int(w >> 16)
			height = int(h >> 16)
		case "mdia":
			mt, ts, c, lg, err := d.parseMdia(b)
			if err != nil {
				return nil, err
			}
			mediaType = mt
			mediaTimescale = ts
			codecPar = c
			lang = lg
		}
		if err := d.r.SeekTo(b.bodyEnd); err != nil {
			return nil, err
		}
	}

	sttsEntries, cttsEntries, stscEntries, stszSizes, stszDefault, chunkOffsets, syncSamples, haveStss = d.lastStbl.stts, d.lastStbl.ctts, d.lastStbl.stsc, d.lastStbl.stszSizes, d.lastStbl.stszDefault, d.lastStbl.chunkOffsets, d.lastStbl.syncSamples, d.lastStbl.haveStss

	if mediaType == mediatype.Unknown || mediaTimescale == 0 {
		return nil, nil // unsupported/empty track: skip rather than fail the whole file
	}

	tb, err := rational.New(1, int32(mediaTimescale))
	if err != nil {
		return nil, err
	}

	samples := buildSamples(stszSizes, stszDefault, stscEntries, chunkOffsets, sttsEntries, cttsEntries, syncSamples, haveStss)

	idx := len(d.tracks)
	st := stream.Stream{
		Index:     idx,
		MediaType: mediaType,
		TimeBase:  tb,
		Duration:  rational.NoPTS,
		CodecPar:  codecPar,
		Metadata:  stream.Metadata{Language: lang},
	}
	if mediaType == mediatype.Video {
		st.CodecPar.Width = width
		st.CodecPar.Height = height
	}
	if len(samples) > 0 {
		last := samples[len(samples)-1]
		st.Duration = last.pts + 1
	}
	t.st = st
	t.samples = samples
	if codecPar.CodecID == mediatype.CodecH264 {
		t.nalLenSize = d.lastStbl.nalLengthSize
	}
	return t, nil
}

// stblTables carries the sample-table contents parsed for the most
// recently processed minf/stbl so parseTrak can pick them up without
// threading a dozen return values through parseMdia/parseMinf/parseStbl.
type stblTables struct {
	stts          [][2]uint32
	ctts          [][2]uint32
	stsc          [][3]uint32
	stszSizes     []uint32
	stszDefault   uint32
	chunkOffsets  []int64
	syncSamples   map[uint32]bool
	haveStss      bool
	nalLengthSize int
}

func (d *demuxer) parseMdia(mdia box) (mt mediatype.MediaType, timescale uint32, par stream.CodecParameters, lang string, err error) {
	if err = d.r.SeekTo(mdia.bodyStart); err != nil {
		return
	}
	var hdlrType string
	for {
		pos, _ := d.r.Position()
		if pos >= mdia.bodyEnd {
			break
		}
		var b box
		b, err = readBoxHeader(d.r, mdia.bodyEnd)
		if err != nil {
			return
		}
		switch b.typ {
		case "mdhd":
			var ver uint8
			ver, _, err = fullBoxHeader(d.r)
			if err != nil {
				return
			}
			if ver == 1 {
				d.r.Skip(16)
				var ts uint32
				ts, err = d.r.ReadU32BE()
				if err != nil {
					return
				}
				timescale = ts
				d.r.Skip(8)
			} else {
				d.r.Skip(8)
				var ts uint32
				ts, err = d.r.ReadU32BE()
				if err != nil {
					return
				}
				timescale = ts
				d.r.Skip(4)
			}
			var langPacked uint16
			langPacked, err = d.r.ReadU16BE()
			if err != nil {
				return
			}
			lang = unpackLang(langPacked)
		case "hdlr":
			d.r.Skip(4) // version+flags
			d.r.Skip(4) // pre_defined
			var tag string
			tag, err = d.r.ReadTag()
			if err != nil {
				return
			}
			hdlrType = tag
		case "minf":
			switch hdlrType {
			case "vide":
				mt = mediatype.Video
			case "soun":
				mt = mediatype.Audio
			default:
				mt = mediatype.Data
			}
			par, err = d.parseMinf(b, mt)
			if err != nil {
				return
			}
		}
		if err = d.r.SeekTo(b.bodyEnd); err != nil {
			return
		}
	}
	return
}

func (d *demuxer) parseMinf(minf box, mt mediatype.MediaType) (stream.CodecParameters, error) {
	if err := d.r.SeekTo(minf.bodyStart); err != nil {
		return stream.CodecParameters{}, err
	}
	var par stream.CodecParameters
	for {
		pos, _ := d.r.Position()
		if pos >= minf.bodyEnd {
			break
		}
		b, err := readBoxHeader(d.r, minf.bodyEnd)
		if err != nil {
			return par, err
		}
		if b.typ == "stbl" {
			p, tbl, err := d.parseStbl(b, mt)
			if err != nil {
				return par, err
			}
			par = p
			d.lastStbl = tbl
		}
		if err := d.r.SeekTo(b.bodyEnd); err != nil {
			return par, err
		}
	}
	return par, nil
}

func (d *demuxer) parseStbl(stbl box, mt mediatype.MediaType) (stream.CodecParameters, stblTables, error) {
	var par stream.CodecParameters
	var tbl stblTables

	if err := d.r.SeekTo(stbl.bodyStart); err != nil {
		return par, tbl, err
	}
	for {
		pos, _ := d.r.Position()
		if pos >= stbl.bodyEnd {
			break
		}
		b, err := readBoxHeader(d.r, stbl.bodyEnd)
		if err != nil {
			return par, tbl, err
		}
		switch b.typ {
		case "stsd":
			p, nalLen, err := d.parseStsd(b, mt)
			if err != nil {
				return par, tbl, err
			}
			par = p
			tbl.nalLengthSize = nalLen
		case "stts":
			entries, err := d.parseTimeToSample(b)
			if err != nil {
				return par, tbl, err
			}
			tbl.stts = entries
		case "ctts":
			entries, err := d.parseTimeToSample(b)
			if err != nil {
				return par, tbl, err
			}
			tbl.ctts = entries
		case "stsc":
			entries, err := d.parseStsc(b)
			if err != nil {
				return par, tbl, err
			}
			tbl.stsc = entries
		case "stsz":
			sizes, def, err := d.parseStsz(b)
			if err != nil {
				return par, tbl, err
			}
			tbl.stszSizes, tbl.stszDefault = sizes, def
		case "stco":
			offs, err := d.parseStco(b, false)
			if err != nil {
				return par, tbl, err
			}
			tbl.chunkOffsets = offs
		case "co64":
			offs, err := d.parseStco(b, true)
			if err != nil {
				return par, tbl, err
			}
			tbl.chunkOffsets = offs
		case "stss":
			sync, err := d.parseStss(b)
			if err != nil {
				return par, tbl, err
			}
			tbl.syncSamples = sync
			tbl.haveStss = true
		}
		if err := d.r.SeekTo(b.bodyEnd); err != nil {
			return par, tbl, err
		}
	}
	return par, tbl, nil
}

func unpackLang(v uint16) string {
	if v == 0 {
		return ""
	}
	b := []byte{
		byte(((v >> 10) & 0x1f) + 0x60),
		byte(((v >> 5) & 0x1f) + 0x60),
		byte((v & 0x1f) + 0x60),
	}
	return string(b)
}

func (d *demuxer) parseTimeToSample(b box) ([][2]uint32, error) {
	if _, _, err := fullBoxHeader(d.r); err != nil {
		return nil, err
	}
	count, err := d.r.ReadU32BE()
	if err != nil {
		return nil, err
	}
	out := make([][2]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		sc, err := d.r.ReadU32BE()
		if err != nil {
			return nil, err
		}
		sd, err := d.r.ReadU32BE()
		if err != nil {
			return nil, err
		}
		out = append(out, [2]uint32{sc, sd})
	}
	return out, nil
}

func (d *demuxer) parseStsc(b box) ([][3]uint32, error) {
	if _, _, err := fullBoxHeader(d.r); err != nil {
		return nil, err
	}
	count, err := d.r.ReadU32BE()
	if err != nil {
		return nil, err
	}
	out := make([][3]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		fc, err := d.r.ReadU32BE()
		if err != nil {
			return nil, err
		}
		spc, err := d.r.ReadU32BE()
		if err != nil {
			return nil, err
		}
		sdi, err := d.r.ReadU32BE()
		if err != nil {
			return nil, err
		}
		out = append(out, [3]uint32{fc, spc, sdi})
	}
	return out, nil
}

func (d *demuxer) parseStsz(b box) ([]uint32, uint32, error) {
	if _, _, err := fullBoxHeader(d.r); err != nil {
		return nil, 0, err
	}
	sampleSize, err := d.r.ReadU32BE()
	if err != nil {
		return nil, 0, err
	}
	count, err := d.r.ReadU32BE()
	if err != nil {
		return nil, 0, err
	}
	if sampleSize != 0 {
		return nil, sampleSize, nil
	}
	out := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		sz, err := d.r.ReadU32BE()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sz)
	}
	return out, 0, nil
}

func (d *demuxer) parseStco(b box, is64 bool) ([]int64, error) {
	if _, _, err := fullBoxHeader(d.r); err != nil {
		return nil, err
	}
	count, err := d.r.ReadU32BE()
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, count)
	for i := uint32(0); i < count; i++ {
		if is64 {
			v, err := d.r.ReadU64BE()
			if err != nil {
				return nil, err
			}
			out = append(out, int64(v))
		} else {
			v, err := d.r.ReadU32BE()
			if err != nil {
				return nil, err
			}
			out = append(out, int64(v))
		}
	}
	return out, nil
}

func (d *demuxer) parseStss(b box) (map[uint32]bool, error) {
	if _, _, err := fullBoxHeader(d.r); err != nil {
		return nil, err
	}
	count, err := d.r.ReadU32BE()
	if err != nil {
		return nil, err
	}
	out := make(map[uint32]bool, count)
	for i := uint32(0); i < count; i++ {
		sn, err := d.r.ReadU32BE()
		if err != nil {
			return nil, err
		}
		out[sn] = true
	}
	return out, nil
}

// buildSamples reconstructs the per-sample offset/size/pts/dts/keyframe
// table from the parsed stbl sub-boxes, per spec.md §4.1.1.
func buildSamples(sizes []uint32, defaultSize uint32, stsc [][3]uint32, chunkOffsets []int64, stts [][2]uint32, ctts [][2]uint32, sync map[uint32]bool, haveStss bool) []sampleEntry {
	nChunks := len(chunkOffsets)
	if nChunks == 0 {
		return nil
	}

	// Expand stsc into, for each chunk index (1-based), samples-per-chunk
	// and sample-description index.
	samplesPerChunk := make([]uint32, nChunks+1)
	for i, e := range stsc {
		firstChunk := e[0]
		spc := e[1]
		var lastChunk uint32
		if i+1 < len(stsc) {
			lastChunk = stsc[i+1][0] - 1
		} else {
			lastChunk = uint32(nChunks)
		}
		for c := firstChunk; c <= lastChunk && int(c) <= nChunks; c++ {
			samplesPerChunk[c] = spc
		}
	}

	// Expand stts into a flat per-sample duration slice, lazily (we only
	// need cumulative sums, done inline below).
	var totalSamples int
	if len(sizes) > 0 {
		totalSamples = len(sizes)
	} else {
		for c := 1; c <= nChunks; c++ {
			totalSamples += int(samplesPerChunk[c])
		}
	}

	out := make([]sampleEntry, 0, totalSamples)

	// stts cursor
	sttsIdx, sttsRemaining := 0, uint32(0)
	if len(stts) > 0 {
		sttsRemaining = stts[0][0]
	}
	var cumPTS int64

	nextSTTS := func() uint32 {
		for sttsRemaining == 0 && sttsIdx+1 < len(stts) {
			sttsIdx++
			sttsRemaining = stts[sttsIdx][0]
		}
		if sttsRemaining == 0 || sttsIdx >= len(stts) {
			return 0
		}
		d := stts[sttsIdx][1]
		sttsRemaining--
		return d
	}

	// ctts cursor
	cttsIdx, cttsRemaining := 0, uint32(0)
	if len(ctts) > 0 {
		cttsRemaining = ctts[0][0]
	}
	nextCTTS := func() int32 {
		if len(ctts) == 0 {
			return 0
		}
		for cttsRemaining == 0 && cttsIdx+1 < len(ctts) {
			cttsIdx++
			cttsRemaining = ctts[cttsIdx][0]
		}
		if cttsRemaining == 0 {
			return 0
		}
		off := int32(ctts[cttsIdx][1])
		cttsRemaining--
		return off
	}

	sampleIdx := 0
	for c := 1; c <= nChunks; c++ {
		chunkOff := chunkOffsets[c-1]
		var off int64 = chunkOff
		n := samplesPerChunk[c]
		for i := uint32(0); i < n; i++ {
			var sz uint32
			if len(sizes) > 0 {
				if sampleIdx >= len(sizes) {
					break
				}
				sz = sizes[sampleIdx]
			} else {
				sz = defaultSize
			}
			dur := nextSTTS()
			ctOff := nextCTTS()
			dts := cumPTS
			pts := dts + int64(ctOff)
			keyframe := true
			if haveStss {
				keyframe = sync[uint32(sampleIdx+1)]
			}
			out = append(out, sampleEntry{offset: off, size: sz, pts: pts, dts: dts, keyframe: keyframe})
			off += int64(sz)
			cumPTS += int64(dur)
			sampleIdx++
		}
	}

	// Chunks are walked in ascending chunk-index order, which is already
	// decode order, so no further sort is needed here.
	return out
}

func (d *demuxer) Streams() []stream.Stream { return d.streams }

func (d *demuxer) ReadPacket() (*packet.Packet, error) {
	// Pick the track whose next sample has the lowest file offset, so
	// packets come out in on-disk (interleave) order per spec.md §5.
	best := -1
	var bestOff int64
	for i, t := range d.tracks {
		if d.cursors[i] >= len(t.samples) {
			continue
		}
		off := t.samples[d.cursors[i]].offset
		if best == -1 || off < bestOff {
			best = i
			bestOff = off
		}
	}
	if best == -1 {
		return nil, mediaerr.Eof
	}
	t := d.tracks[best]
	se := t.samples[d.cursors[best]]
	d.cursors[best]++

	if err := d.r.SeekTo(se.offset); err != nil {
		return nil, err
	}
	data, err := d.r.ReadBytes(int(se.size))
	if err != nil {
		return nil, err
	}

	p := packet.New(best, data, t.st.TimeBase)
	p.PTS = se.pts
	p.DTS = se.dts
	p.IsKeyframe = se.keyframe
	p.Pos = se.offset
	return p, nil
}

func (d *demuxer) SeekTo(streamIndex int, ts int64) error {
	if streamIndex < 0 || streamIndex >= len(d.tracks) {
		return mediaerr.NewStreamNotFound(streamIndex)
	}
	t := d.tracks[streamIndex]
	target := 0
	for i, se := range t.samples {
		if se.dts <= ts {
			target = i
		} else {
			break
		}
	}
	// Walk backward to the nearest preceding keyframe.
	for target > 0 && !t.samples[target].keyframe {
		target--
	}
	d.cursors[streamIndex] = target
	return nil
}

func (d *demuxer) Duration() (float64, bool) {
	if d.duration <= 0 {
		return 0, false
	}
	return d.duration, true
}

func (d *demuxer) Close() error { return nil }
