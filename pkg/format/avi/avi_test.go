package avi

import (
	"bytes"
	"testing"

	"github.com/jmylchreest/tao/internal/testutil"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

func TestMuxThenDemuxRoundTrip(t *testing.T) {
	s := testutil.NewMemStream()
	mx := newMuxer(s)

	videoPar := stream.CodecParameters{CodecID: mediatype.CodecH264, Width: 64, Height: 48}
	videoIdx, err := mx.AddStream(videoPar, rational.Rational{Num: 1, Den: 25})
	if err != nil {
		t.Fatal(err)
	}
	audioPar := stream.CodecParameters{CodecID: mediatype.CodecPCMS16LE, SampleRate: 8000, Channels: 1}
	audioIdx, err := mx.AddStream(audioPar, rational.Rational{Num: 1, Den: 8000})
	if err != nil {
		t.Fatal(err)
	}

	if err := mx.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	videoPayload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	vp := packet.New(videoIdx, videoPayload, rational.Rational{})
	vp.IsKeyframe = true
	if err := mx.WritePacket(vp); err != nil {
		t.Fatal(err)
	}
	audioPayload := []byte{0xAA, 0xBB, 0xCC}
	if err := mx.WritePacket(packet.New(audioIdx, audioPayload, rational.Rational{})); err != nil {
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

	p2, err := dmx.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket 2: %v", err)
	}
	if !bytes.Equal(p2.Bytes(), audioPayload) {
		t.Errorf("audio payload mismatch: got %v, want %v", p2.Bytes(), audioPayload)
	}
}

func TestProbe(t *testing.T) {
	if probe([]byte("RIFF\x00\x00\x00\x00AVI ")) != 100 {
		t.Fatal("expected probe match on RIFF/AVI signature")
	}
	if probe([]byte("RIFF\x00\x00\x00\x00WAVE")) != 0 {
		t.Fatal("expected probe mismatch on a RIFF/WAVE signature")
	}
}
