package mkv

import (
	"bytes"
	"testing"

	"github.com/jmylchreest/tao/internal/testutil"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

func TestMuxThenDemuxRoundTrip(t *testing.T) {
	s := testutil.NewMemStream()
	mx := newMuxer(s, false)

	videoExtra := []byte{0x01, 0x42, 0x00, 0x1E}
	videoPar := stream.CodecParameters{CodecID: mediatype.CodecH264, Width: 64, Height: 48, ExtraData: videoExtra}
	videoTB := rational.Rational{Num: 1, Den: 1000}
	videoIdx, err := mx.AddStream(videoPar, videoTB)
	if err != nil {
		t.Fatal(err)
	}

	audioPar := stream.CodecParameters{CodecID: mediatype.CodecPCMS16LE, SampleRate: 8000, Channels: 1}
	audioTB := rational.Rational{Num: 1, Den: 1000}
	audioIdx, err := mx.AddStream(audioPar, audioTB)
	if err != nil {
		t.Fatal(err)
	}

	if err := mx.WriteHeader(); err != nil {
		t.Fatal(err)
	}

	videoPayload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	vp := packet.New(videoIdx, videoPayload, videoTB)
	vp.PTS = 0
	vp.IsKeyframe = true
	if err := mx.WritePacket(vp); err != nil {
		t.Fatal(err)
	}

	audioPayload := []byte{0xAA, 0xBB, 0xCC}
	ap := packet.New(audioIdx, audioPayload, audioTB)
	ap.PTS = 40
	if err := mx.WritePacket(ap); err != nil {
		t.Fatal(err)
	}

	if err := mx.WriteTrailer(); err != nil {
		t.Fatal(err)
	}

	s.Rewind()
	dmx, err := openDemuxer(s)
	if err != nil {
		t.Fatalf("openDemuxer: %v", err)
	}
	streams := dmx.Streams()
	if len(streams) != 2 {
		t.Fatalf("got %d streams, want 2", len(streams))
	}
	if streams[0].CodecPar.Width != 64 || streams[0].CodecPar.Height != 48 {
		t.Errorf("video dims: got %dx%d, want 64x48", streams[0].CodecPar.Width, streams[0].CodecPar.Height)
	}
	if !bytes.Equal(streams[0].CodecPar.ExtraData, videoExtra) {
		t.Errorf("video ExtraData mismatch: got %v, want %v", streams[0].CodecPar.ExtraData, videoExtra)
	}
	if streams[1].CodecPar.SampleRate != 8000 || streams[1].CodecPar.Channels != 1 {
		t.Errorf("audio params: got %+v", streams[1].CodecPar)
	}

	p1, err := dmx.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket 1: %v", err)
	}
	if !bytes.Equal(p1.Bytes(), videoPayload) {
		t.Errorf("video payload mismatch: got %v, want %v", p1.Bytes(), videoPayload)
	}
	if !p1.IsKeyframe {
		t.Error("expected the video packet to be flagged as a keyframe")
	}

	p2, err := dmx.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket 2: %v", err)
	}
	if !bytes.Equal(p2.Bytes(), audioPayload) {
		t.Errorf("audio payload mismatch: got %v, want %v", p2.Bytes(), audioPayload)
	}
	if p2.PTS != 40_000_000 {
		t.Errorf("audio PTS: got %d, want 40000000 ns", p2.PTS)
	}

	if _, err := dmx.ReadPacket(); err != mediaerr.Eof {
		t.Errorf("expected Eof after both packets, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	if probe([]byte{0x1A, 0x45, 0xDF, 0xA3}) != 100 {
		t.Fatal("expected probe match on the EBML signature")
	}
	if probe([]byte{0x00, 0x00, 0x00, 0x00}) != 0 {
		t.Fatal("expected probe mismatch on non-EBML bytes")
	}
}

func TestVintWidth(t *testing.T) {
	cases := []struct {
		b    byte
		want int
	}{
		{0x80, 1},
		{0x40, 2},
		{0x20, 3},
		{0x10, 4},
	}
	for _, c := range cases {
		if got := vintWidth(c.b); got != c.want {
			t.Errorf("vintWidth(0x%02x): got %d, want %d", c.b, got, c.want)
		}
	}
}

func TestWriteElementSizeRoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 100, 10000, 2_000_000} {
		b := writeElementSize(n)
		width := vintWidth(b[0])
		if width != len(b) {
			t.Fatalf("writeElementSize(%d): width marker %d != encoded length %d", n, width, len(b))
		}
		v := uint64(b[0]) &^ (0xff << uint(8-width))
		for i := 1; i < width; i++ {
			v = v<<8 | uint64(b[i])
		}
		if v != n {
			t.Errorf("writeElementSize(%d) round trip: got %d", n, v)
		}
	}
}
