package mediatype

import "testing"

func TestMediaTypeString(t *testing.T) {
	cases := map[MediaType]string{
		Video:    "video",
		Audio:    "audio",
		Subtitle: "subtitle",
		Data:     "data",
		Unknown:  "unknown",
	}
	for mt, want := range cases {
		if got := mt.String(); got != want {
			t.Errorf("MediaType(%d).String() = %q, want %q", mt, got, want)
		}
	}
}

func TestCodecIDClassification(t *testing.T) {
	audio := []CodecID{CodecPCMU8, CodecMP3, CodecVorbis, CodecFLAC, CodecAAC, CodecAC3, CodecOpus}
	for _, c := range audio {
		if !c.IsAudio() || c.IsVideo() {
			t.Errorf("%v: expected IsAudio=true IsVideo=false", c)
		}
	}
	video := []CodecID{CodecH264, CodecMPEG4Part2, CodecMJPEG, CodecH265, CodecVP8, CodecVP9, CodecAV1}
	for _, c := range video {
		if !c.IsVideo() || c.IsAudio() {
			t.Errorf("%v: expected IsVideo=true IsAudio=false", c)
		}
	}
	if CodecUnknown.IsAudio() || CodecUnknown.IsVideo() {
		t.Error("CodecUnknown should be neither audio nor video")
	}
}

func TestParseCodecIDRoundTrip(t *testing.T) {
	for id := CodecPCMU8; id <= CodecOpus; id++ {
		got, err := ParseCodecID(id.String())
		if err != nil {
			t.Errorf("ParseCodecID(%q): %v", id.String(), err)
			continue
		}
		if got != id {
			t.Errorf("ParseCodecID(%q) = %v, want %v", id.String(), got, id)
		}
	}
	if _, err := ParseCodecID("not-a-codec"); err == nil {
		t.Error("expected an error for an unrecognised codec name")
	}
	if _, err := ParseCodecID("unknown"); err == nil {
		t.Error("expected ParseCodecID(\"unknown\") to fail since CodecUnknown is not a nameable target")
	}
}

func TestSampleFormatBytesPerSample(t *testing.T) {
	cases := map[SampleFormat]int{
		SampleFormatU8:  1,
		SampleFormatS16: 2,
		SampleFormatS32: 4,
		SampleFormatF32: 4,
		SampleFormatF64: 8,
	}
	for f, want := range cases {
		if got := f.BytesPerSample(); got != want {
			t.Errorf("%v.BytesPerSample() = %d, want %d", f, got, want)
		}
	}
}

func TestPixelFormatPlaneCountAndSubsampling(t *testing.T) {
	if PixelFormatYUV420P.PlaneCount() != 3 {
		t.Fatal("yuv420p should have 3 planes")
	}
	h, v := PixelFormatYUV420P.ChromaSubsampling()
	if h != 2 || v != 2 {
		t.Fatalf("yuv420p chroma subsampling = %d,%d want 2,2", h, v)
	}
	h, v = PixelFormatYUV444P.ChromaSubsampling()
	if h != 1 || v != 1 {
		t.Fatalf("yuv444p chroma subsampling = %d,%d want 1,1", h, v)
	}
	if PixelFormatRGBA.PlaneCount() != 1 {
		t.Fatal("rgba should be single-plane")
	}
}

func TestChannelLayoutChannels(t *testing.T) {
	cases := map[ChannelLayout]int{
		ChannelLayoutMono:    1,
		ChannelLayoutStereo:  2,
		ChannelLayout5Point1: 6,
		ChannelLayoutUnknown: 0,
	}
	for l, want := range cases {
		if got := l.Channels(); got != want {
			t.Errorf("%v.Channels() = %d, want %d", l, got, want)
		}
	}
}
