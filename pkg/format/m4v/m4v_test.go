package m4v

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
	vol := []byte{0, 0, 1, startCodeVOL, 0x01, 0x02}
	par := stream.CodecParameters{CodecID: mediatype.CodecMPEG4Part2, ExtraData: vol}
	if _, err := mx.AddStream(par, rational.Rational{Num: 1, Den: 25}); err != nil {
		t.Fatal(err)
	}
	if err := mx.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	vop := []byte{0, 0, 1, startCodeVOP, 0x00, 0xAA, 0xBB}
	if err := mx.WritePacket(packet.New(0, vop, rational.Rational{})); err != nil {
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
	if len(streams) != 1 || streams[0].CodecPar.CodecID != mediatype.CodecMPEG4Part2 {
		t.Fatalf("unexpected streams: %+v", streams)
	}
	if !bytes.Equal(streams[0].CodecPar.ExtraData, vol) {
		t.Errorf("ExtraData mismatch: got %v, want %v", streams[0].CodecPar.ExtraData, vol)
	}

	p, err := dmx.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if !bytes.Equal(p.Bytes(), vop) {
		t.Errorf("payload mismatch: got %v, want %v", p.Bytes(), vop)
	}
	if !p.IsKeyframe {
		t.Error("expected the I-VOP to be flagged as a keyframe")
	}

	if _, err := dmx.ReadPacket(); err != mediaerr.Eof {
		t.Errorf("expected Eof after the only VOP, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	if probe([]byte{0, 0, 1, startCodeVOS, 0}) == 0 {
		t.Fatal("expected probe match on a leading VOS start code")
	}
	if probe([]byte{0x12, 0x34, 0x56, 0x78}) != 0 {
		t.Fatal("expected probe mismatch on non-start-code bytes")
	}
}
