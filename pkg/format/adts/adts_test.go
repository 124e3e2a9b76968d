package adts

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
	par := stream.CodecParameters{CodecID: mediatype.CodecAAC, SampleRate: 44100, Channels: 2}
	if _, err := mx.AddStream(par, rational.Rational{}); err != nil {
		t.Fatal(err)
	}
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	if err := mx.WritePacket(packet.New(0, payload, rational.Rational{})); err != nil {
		t.Fatal(err)
	}

	s.Rewind()
	dmx, err := openDemuxer(s)
	if err != nil {
		t.Fatalf("openDemuxer: %v", err)
	}
	streams := dmx.Streams()
	if len(streams) != 1 || streams[0].CodecPar.SampleRate != 44100 || streams[0].CodecPar.Channels != 2 {
		t.Fatalf("unexpected streams: %+v", streams)
	}

	p, err := dmx.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if !bytes.Equal(p.Bytes(), payload) {
		t.Fatalf("payload mismatch: %v != %v", p.Bytes(), payload)
	}
}

func TestProbe(t *testing.T) {
	if probe([]byte{0xff, 0xf1, 0, 0}) != 70 {
		t.Fatal("expected probe match")
	}
	if probe([]byte{0x00, 0x00}) != 0 {
		t.Fatal("expected probe mismatch")
	}
}
