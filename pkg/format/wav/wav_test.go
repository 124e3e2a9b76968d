package wav

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
	par := stream.CodecParameters{CodecID: mediatype.CodecPCMS16LE, SampleRate: 8000, Channels: 1}
	if _, err := mx.AddStream(par, rational.Rational{}); err != nil {
		t.Fatal(err)
	}
	if err := mx.WriteHeader(); err != nil {
		t.Fatal(err)
	}
	tb, _ := rational.New(1, 8000)
	samples := []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00}
	if err := mx.WritePacket(packet.New(0, samples, tb)); err != nil {
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
	if len(streams) != 1 || streams[0].CodecPar.CodecID != mediatype.CodecPCMS16LE {
		t.Fatalf("unexpected streams: %+v", streams)
	}
	if streams[0].CodecPar.SampleRate != 8000 {
		t.Fatalf("sample rate mismatch: %+v", streams[0].CodecPar)
	}

	p, err := dmx.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket: %v", err)
	}
	if !bytes.Equal(p.Bytes(), samples) {
		t.Fatalf("payload mismatch: %v != %v", p.Bytes(), samples)
	}

	if _, err := dmx.ReadPacket(); err != mediaerr.Eof {
		t.Fatalf("expected Eof, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	good := append([]byte("RIFF"), append([]byte{0, 0, 0, 0}, []byte("WAVE")...)...)
	if probe(good) != 100 {
		t.Fatal("expected probe match")
	}
	if probe([]byte("not a riff")) != 0 {
		t.Fatal("expected probe mismatch")
	}
}
