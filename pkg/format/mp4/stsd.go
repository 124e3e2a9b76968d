package mp4

import (
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/stream"
)

// parseStsd reads the sample description box and returns this track's
// CodecParameters plus, for H.264, the avcC NAL length size.
func (d *demuxer) parseStsd(stsd box, mt mediatype.MediaType) (stream.CodecParameters, int, error) {
	if _, _, err := fullBoxHeader(d.r); err != nil {
		return stream.CodecParameters{}, 0, err
	}
	count, err := d.r.ReadU32BE()
	if err != nil {
		return stream.CodecParameters{}, 0, err
	}
	if count == 0 {
		return stream.CodecParameters{}, 0, mediaerr.NewInvalidData("mp4: stsd has no sample entries")
	}
	entry, err := readBoxHeader(d.r, stsd.bodyEnd)
	if err != nil {
		return stream.CodecParameters{}, 0, err
	}

	var par stream.CodecParameters
	nalLen := 0

	switch entry.typ {
	case "avc1", "avc3":
		par.CodecID = mediatype.CodecH264
		par.PixelFormat = mediatype.PixelFormatYUV420P
		if err := d.r.Skip(6 + 2); err != nil { // reserved, data_reference_index
			return par, 0, err
		}
		if err := d.r.Skip(2 + 2 + 12); err != nil { // pre_defined/reserved/pre_defined[3]
			return par, 0, err
		}
		w, err := d.r.ReadU16BE()
		if err != nil {
			return par, 0, err
		}
		h, err := d.r.ReadU16BE()
		if err != nil {
			return par, 0, err
		}
		par.Width, par.Height = int(w), int(h)
		if err := d.r.Skip(4 + 4 + 4 + 2 + 32 + 2 + 2); err != nil {
			return par, 0, err
		}
		// Walk child boxes looking for avcC.
		for {
			pos, _ := d.r.Position()
			if pos >= entry.bodyEnd {
				break
			}
			child, err := readBoxHeader(d.r, entry.bodyEnd)
			if err != nil {
				return par, 0, err
			}
			if child.typ == "avcC" {
				data, err := d.r.ReadBytes(int(child.size()))
				if err != nil {
					return par, 0, err
				}
				par.ExtraData = data
				if len(data) >= 5 {
					nalLen = int(data[4]&0x03) + 1
					par.Profile, par.Level = h264ProfileLevelString(data)
				}
			}
			if err := d.r.SeekTo(child.bodyEnd); err != nil {
				return par, 0, err
			}
		}

	case "mp4a":
		par.CodecID = mediatype.CodecAAC
		par.Format = mediatype.SampleFormatF32
		if err := d.r.Skip(6 + 2); err != nil {
			return par, 0, err
		}
		if err := d.r.Skip(4 + 4); err != nil { // reserved[2] (two uint32)
			return par, 0, err
		}
		ch, err := d.r.ReadU16BE()
		if err != nil {
			return par, 0, err
		}
		par.Channels = int(ch)
		par.Layout = layoutForChannels(int(ch))
		if err := d.r.Skip(2 + 2 + 2); err != nil { // samplesize, pre_defined, reserved
			return par, 0, err
		}
		sr, err := d.r.ReadU32BE()
		if err != nil {
			return par, 0, err
		}
		par.SampleRate = int(sr >> 16)
		for {
			pos, _ := d.r.Position()
			if pos >= entry.bodyEnd {
				break
			}
			child, err := readBoxHeader(d.r, entry.bodyEnd)
			if err != nil {
				return par, 0, err
			}
			if child.typ == "esds" {
				data, err := d.r.ReadBytes(int(child.size()))
				if err != nil {
					return par, 0, err
				}
				par.ExtraData = extractAudioSpecificConfig(data)
			}
			if err := d.r.SeekTo(child.bodyEnd); err != nil {
				return par, 0, err
			}
		}

	case "mp4v":
		par.CodecID = mediatype.CodecMPEG4Part2
		par.PixelFormat = mediatype.PixelFormatYUV420P
		if err := d.r.Skip(6 + 2 + 2 + 2 + 12); err != nil {
			return par, 0, err
		}
		w, err := d.r.ReadU16BE()
		if err != nil {
			return par, 0, err
		}
		h, err := d.r.ReadU16BE()
		if err != nil {
			return par, 0, err
		}
		par.Width, par.Height = int(w), int(h)
		if err := d.r.Skip(4 + 4 + 4 + 2 + 32 + 2 + 2); err != nil {
			return par, 0, err
		}
		for {
			pos, _ := d.r.Position()
			if pos >= entry.bodyEnd {
				break
			}
			child, err := readBoxHeader(d.r, entry.bodyEnd)
			if err != nil {
				return par, 0, err
			}
			if child.typ == "esds" {
				data, err := d.r.ReadBytes(int(child.size()))
				if err != nil {
					return par, 0, err
				}
				par.ExtraData = extractVOLConfig(data)
			}
			if err := d.r.SeekTo(child.bodyEnd); err != nil {
				return par, 0, err
			}
		}

	case "mp4s":
		par.CodecID = mediatype.CodecUnknown

	default:
		par.CodecID = mediatype.CodecUnknown
	}

	if err := d.r.SeekTo(entry.bodyEnd); err != nil {
		return par, nalLen, err
	}
	return par, nalLen, nil
}

func layoutForChannels(n int) mediatype.ChannelLayout {
	switch n {
	case 1:
		return mediatype.ChannelLayoutMono
	case 2:
		return mediatype.ChannelLayoutStereo
	case 6:
		return mediatype.ChannelLayout5Point1
	default:
		return mediatype.ChannelLayoutUnknown
	}
}

// descriptorLength reads an MPEG-4 variable-length descriptor size: each
// byte's top bit signals continuation, low 7 bits contribute to the value
// (ISO/IEC 14496-1 §8.3.3).
func descriptorLength(b []byte, pos int) (length int, next int, ok bool) {
	v := 0
	for i := 0; i < 4; i++ {
		if pos >= len(b) {
			return 0, pos, false
		}
		c := b[pos]
		pos++
		v = (v << 7) | int(c&0x7f)
		if c&0x80 == 0 {
			return v, pos, true
		}
	}
	return v, pos, true
}

// extractAudioSpecificConfig walks the esds box's descriptor tree
// (ES_Descriptor -> DecoderConfigDescriptor -> DecoderSpecificInfo) and
// returns the raw AudioSpecificConfig bytes, per spec.md §6.
func extractAudioSpecificConfig(esds []byte) []byte {
	pos := 4 // skip version+flags
	tag, p, ok := readTag(esds, pos)
	if !ok || tag != 0x03 {
		return nil
	}
	length, p, ok := descriptorLength(esds, p)
	if !ok {
		return nil
	}
	_ = length
	p += 2 + 1 // ES_ID, flags

	tag, p, ok = readTag(esds, p)
	if !ok || tag != 0x04 {
		return nil
	}
	_, p, ok = descriptorLength(esds, p)
	if !ok {
		return nil
	}
	p += 1 + 1 + 3 + 4 + 4 // objectType, streamType, bufferSizeDB, maxBitrate, avgBitrate

	tag, p, ok = readTag(esds, p)
	if !ok || tag != 0x05 {
		return nil
	}
	dsiLen, p, ok := descriptorLength(esds, p)
	if !ok || p+dsiLen > len(esds) {
		return nil
	}
	out := make([]byte, dsiLen)
	copy(out, esds[p:p+dsiLen])
	return out
}

// extractVOLConfig returns the DecoderSpecificInfo payload for an
// MPEG-4 Part 2 mp4v track: the VOL/VO/VOS header bytes preceding the
// first VOP, per spec.md §4.1.7/§6.
func extractVOLConfig(esds []byte) []byte {
	return extractAudioSpecificConfig(esds)
}

func readTag(b []byte, pos int) (tag byte, next int, ok bool) {
	if pos >= len(b) {
		return 0, pos, false
	}
	return b[pos], pos + 1, true
}

func h264ProfileLevelString(avcC []byte) (profile, level string) {
	if len(avcC) < 4 {
		return "", ""
	}
	p := avcC[1]
	l := avcC[3]
	switch p {
	case 66:
		profile = "Baseline"
	case 77:
		profile = "Main"
	case 88:
		profile = "Extended"
	case 100:
		profile = "High"
	default:
		profile = "Unknown"
	}
	level = levelString(l)
	return
}

func levelString(l uint8) string {
	major := l / 10
	minor := l % 10
	if minor == 0 {
		return itoa(int(major))
	}
	return itoa(int(major)) + "." + itoa(int(minor))
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [8]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
