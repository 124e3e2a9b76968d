package pcm

import (
	"testing"

	"github.com/jmylchreest/tao/pkg/codec"
	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/rational"
	"github.com/jmylchreest/tao/pkg/stream"
)

func TestRegisterWiresAllVariants(t *testing.T) {
	r := codec.NewRegistry()
	Register(r)
	for _, id := range []mediatype.CodecID{
		mediatype.CodecPCMU8, mediatype.CodecPCMS16LE, mediatype.CodecPCMS16BE,
		mediatype.CodecPCMS24LE, mediatype.CodecPCMS32LE, mediatype.CodecPCMF32LE,
	} {
		if !r.HasDecoder(id) || !r.HasEncoder(id) {
			t.Errorf("%s: expected decoder and encoder registered", id)
		}
	}
}

func TestS16LEDecodePassthrough(t *testing.T) {
	tb, _ := rational.New(1, 44100)
	par := stream.CodecParameters{CodecID: mediatype.CodecPCMS16LE, SampleRate: 44100, Channels: 1}
	dec, err := newDecoder(mediatype.CodecPCMS16LE, par)
	if err != nil {
		t.Fatal(err)
	}
	raw := []byte{0x01, 0x00, 0x02, 0x00} // two s16le samples: 1, 2
	p := packet.New(0, raw, tb)
	if err := dec.SendPacket(p); err != nil {
		t.Fatal(err)
	}
	f, err := dec.ReceiveFrame()
	if err != nil {
		t.Fatal(err)
	}
	if f.Audio.NumSamples != 2 {
		t.Fatalf("expected 2 samples, got %d", f.Audio.NumSamples)
	}
	if string(f.Audio.Planes[0]) != string(raw) {
		t.Fatalf("s16le passthrough mismatch: %v != %v", f.Audio.Planes[0], raw)
	}
}

func TestS16BEByteSwap(t *testing.T) {
	tb, _ := rational.New(1, 44100)
	par := stream.CodecParameters{CodecID: mediatype.CodecPCMS16BE, SampleRate: 44100, Channels: 1}
	dec, err := newDecoder(mediatype.CodecPCMS16BE, par)
	if err != nil {
		t.Fatal(err)
	}
	raw := []byte{0x00, 0x01} // big-endian 1
	if err := dec.SendPacket(packet.New(0, raw, tb)); err != nil {
		t.Fatal(err)
	}
	f, err := dec.ReceiveFrame()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0x00} // little-endian 1
	if string(f.Audio.Planes[0]) != string(want) {
		t.Fatalf("got %v want %v", f.Audio.Planes[0], want)
	}
}

func TestS24LESignExtend(t *testing.T) {
	tb, _ := rational.New(1, 44100)
	par := stream.CodecParameters{CodecID: mediatype.CodecPCMS24LE, SampleRate: 44100, Channels: 1}
	dec, err := newDecoder(mediatype.CodecPCMS24LE, par)
	if err != nil {
		t.Fatal(err)
	}
	raw := []byte{0xff, 0xff, 0xff} // -1 as s24le
	if err := dec.SendPacket(packet.New(0, raw, tb)); err != nil {
		t.Fatal(err)
	}
	f, err := dec.ReceiveFrame()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0xff, 0xff, 0xff, 0xff} // -1 as s32le
	if string(f.Audio.Planes[0]) != string(want) {
		t.Fatalf("got %v want %v", f.Audio.Planes[0], want)
	}
}

func TestEncoderEOFSignal(t *testing.T) {
	par := stream.CodecParameters{CodecID: mediatype.CodecPCMS16LE, SampleRate: 8000, Channels: 1}
	enc, err := newEncoder(mediatype.CodecPCMS16LE, par)
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.SendFrame(frame.Frame{}); err != nil {
		t.Fatal(err)
	}
	if _, err := enc.ReceivePacket(); err == nil {
		t.Fatal("expected Eof on empty encoder flush")
	}
}
