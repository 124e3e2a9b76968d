package stream

import (
	"testing"

	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/rational"
)

func TestIsAudioIsVideo(t *testing.T) {
	tb, _ := rational.New(1, 48000)
	audio := Stream{MediaType: mediatype.Audio, TimeBase: tb}
	video := Stream{MediaType: mediatype.Video, TimeBase: tb}

	if !audio.IsAudio() || audio.IsVideo() {
		t.Error("audio stream misclassified")
	}
	if !video.IsVideo() || video.IsAudio() {
		t.Error("video stream misclassified")
	}
}

func TestCodecParametersHoldsExtraData(t *testing.T) {
	cp := CodecParameters{
		CodecID:   mediatype.CodecH264,
		ExtraData: []byte{0x01, 0x42, 0x00, 0x1f},
		Width:     1920,
		Height:    1080,
		Profile:   "High",
		Level:     "4.1",
	}
	if cp.Width != 1920 || cp.Height != 1080 {
		t.Fatal("geometry not preserved")
	}
	if len(cp.ExtraData) != 4 {
		t.Fatal("extradata not preserved")
	}
}

func TestStreamMetadataExtra(t *testing.T) {
	s := Stream{
		Metadata: Metadata{
			Language: "eng",
			Title:    "Commentary",
			Extra:    map[string]string{"encoder": "tao"},
		},
	}
	if s.Metadata.Extra["encoder"] != "tao" {
		t.Fatal("extra metadata not preserved")
	}
}
