package mpegts

import (
	"bytes"
	"testing"

	"github.com/jmylchreest/tao/internal/testutil"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/stream"
)

func TestMuxThenDemuxRoundTrip(t *testing.T) {
	s := testutil.NewMemStream()
	mx := newMuxer(s)

	videoPar := stream.CodecParameters{CodecID: mediatype.CodecH264}
	videoIdx, err := mx.AddStream(videoPar, tb90k)
	if err != nil {
		t.Fatal(err)
	}
	audioPar := stream.CodecParameters{CodecID: mediatype.CodecAAC}
	audioIdx, err := mx.AddStream(audioPar, tb90k)
	if err != nil {
		t.Fatal(err)
	}

	if err := mx.WriteHeader(); err != nil {
		t.Fatal(err)
	}

	videoPayload := []byte{0x00, 0x00, 0x01, 0x65, 0xAA, 0xBB} // NAL type 5 (IDR)
	vp := packet.New(videoIdx, videoPayload, tb90k)
	vp.PTS, vp.DTS = 90000, 90000
	vp.IsKeyframe = true
	if err := mx.WritePacket(vp); err != nil {
		t.Fatal(err)
	}

	audioPayload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	ap := packet.New(audioIdx, audioPayload, tb90k)
	ap.PTS, ap.DTS = 90000, 90000
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
		case mediatype.CodecAAC:
			gotAudio = true
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
				t.Error("expected the IDR access unit to be flagged as a keyframe")
			}
			if p.PTS != 90000 {
				t.Errorf("video PTS: got %d, want 90000", p.PTS)
			}
		} else if bytes.Equal(p.Bytes(), audioPayload) {
			seenAudio = true
			if !p.IsKeyframe {
				t.Error("expected the audio access unit to be flagged as a keyframe")
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
	buf := make([]byte, packetSize*4)
	for i := range buf {
		if i%packetSize == 0 {
			buf[i] = syncByte
		}
	}
	if probe(buf) != 90 {
		t.Fatal("expected a high probe score on repeated 188-byte-aligned sync bytes")
	}
	if probe([]byte{0x00, 0x01, 0x02, 0x03}) != 0 {
		t.Fatal("expected probe mismatch on non-TS bytes")
	}
}

func TestPSICRC32(t *testing.T) {
	pat := buildPAT()
	if len(pat) < 4 {
		t.Fatal("buildPAT produced too short a section")
	}
	body := pat[:len(pat)-4]
	got := psiCRC32(body)
	want := uint32(pat[len(pat)-4])<<24 | uint32(pat[len(pat)-3])<<16 | uint32(pat[len(pat)-2])<<8 | uint32(pat[len(pat)-1])
	if got != want {
		t.Errorf("psiCRC32 mismatch: got 0x%08x, want 0x%08x", got, want)
	}
}
