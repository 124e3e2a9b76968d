package flv

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
	mx := newMuxer(s)

	videoTB := rational.Rational{Num: 1, Den: 1000}
	videoExtra := []byte{0x01, 0x42, 0x00, 0x1E}
	videoPar := stream.CodecParameters{CodecID: mediatype.CodecH264, ExtraData: videoExtra}
	videoIdx, err := mx.AddStream(videoPar, videoTB)
	if err != nil {
		t.Fatal(err)
	}

	audioTB := rational.Rational{Num: 1, Den: 1000}
	audioExtra := []byte{0x12, 0x10}
	audioPar := stream.CodecParameters{CodecID: mediatype.CodecAAC, ExtraData: audioExtra}
	audioIdx, err := mx.AddStream(audioPar, audioTB)
	if err != nil {
		t.Fatal(err)
	}

	if err := mx.WriteHeader(); err != nil {
		t.Fatal(err)
	}

	videoPayload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	vp := packet.New(videoIdx, videoPayload, videoTB)
	vp.PTS, vp.DTS = 40, 40
	vp.IsKeyframe = true
	if err := mx.WritePacket(vp); err != nil {
		t.Fatal(err)
	}

	audioPayload := []byte{0xAA, 0xBB, 0xCC}
	ap := packet.New(audioIdx, audioPayload, audioTB)
	ap.PTS, ap.DTS = 23, 23
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
	var gotVideo, gotAudio bool
	for _, st := range streams {
		switch st.CodecPar.CodecID {
		case mediatype.CodecH264:
			gotVideo = true
			if !bytes.Equal(st.CodecPar.ExtraData, videoExtra) {
				t.Errorf("video ExtraData mismatch: got %v, want %v", st.CodecPar.ExtraData, videoExtra)
			}
		case mediatype.CodecAAC:
			gotAudio = true
			if !bytes.Equal(st.CodecPar.ExtraData, audioExtra) {
				t.Errorf("audio ExtraData mismatch: got %v, want %v", st.CodecPar.ExtraData, audioExtra)
			}
		}
	}
	if !gotVideo || !gotAudio {
		t.Fatalf("missing a stream kind: %+v", streams)
	}

	seenVideo, seenAudio := false, false
	for i := 0; i < 2; i++ {
		p, err := dmx.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket %d: %v", i, err)
		}
		if bytes.Equal(p.Bytes(), videoPayload) {
			seenVideo = true
			if !p.IsKeyframe {
				t.Error("expected the video sample to be flagged as a keyframe")
			}
			if p.DTS != 40 {
				t.Errorf("video DTS: got %d, want 40", p.DTS)
			}
		} else if bytes.Equal(p.Bytes(), audioPayload) {
			seenAudio = true
			if p.DTS != 23 {
				t.Errorf("audio DTS: got %d, want 23", p.DTS)
			}
		} else {
			t.Errorf("unexpected packet payload: %v", p.Bytes())
		}
	}
	if !seenVideo || !seenAudio {
		t.Fatal("did not see both video and audio packets")
	}

	if _, err := dmx.ReadPacket(); err != mediaerr.Eof {
		t.Errorf("expected Eof after both packets, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	if probe([]byte{'F', 'L', 'V', 0x01, 0x05, 0, 0, 0, 9}) != 100 {
		t.Fatal("expected probe match on FLV signature")
	}
	if probe([]byte{'R', 'I', 'F', 'F'}) != 0 {
		t.Fatal("expected probe mismatch on non-FLV bytes")
	}
}
