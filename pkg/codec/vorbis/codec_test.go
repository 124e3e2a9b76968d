package vorbis

import (
	"testing"

	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/stream"
)

func makeTestAudioFrame(channels, numSamples int) frame.AudioFrame {
	buf := make([]byte, numSamples*channels*2)
	for i := 0; i < numSamples; i++ {
		for ch := 0; ch < channels; ch++ {
			v := int16((i%220 - 110) * 40)
			off := (i*channels + ch) * 2
			buf[off] = byte(v)
			buf[off+1] = byte(v >> 8)
		}
	}
	return frame.AudioFrame{
		Format:     mediatype.SampleFormatS16,
		Layout:     layoutFor(channels),
		SampleRate: 44100,
		Planes:     [][]byte{buf},
		NumSamples: numSamples,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	par := stream.CodecParameters{CodecID: mediatype.CodecVorbis, SampleRate: 44100, Channels: 2}
	enc, err := newEncoder(par)
	if err != nil {
		t.Fatalf("newEncoder: %v", err)
	}
	dec, err := newDecoder(stream.CodecParameters{CodecID: mediatype.CodecVorbis, ExtraData: enc.ExtraData()})
	if err != nil {
		t.Fatalf("newDecoder: %v", err)
	}

	for i := 0; i < 2; i++ {
		af := makeTestAudioFrame(2, defaultBlockSize)
		if err := enc.SendFrame(frame.NewAudio(af)); err != nil {
			t.Fatalf("frame %d: SendFrame: %v", i, err)
		}
		pkt, err := enc.ReceivePacket()
		if err != nil {
			t.Fatalf("frame %d: ReceivePacket: %v", i, err)
		}
		if err := dec.SendPacket(pkt); err != nil {
			t.Fatalf("frame %d: decoder SendPacket: %v", i, err)
		}
		out, err := dec.ReceiveFrame()
		if err != nil {
			t.Fatalf("frame %d: ReceiveFrame: %v", i, err)
		}
		if out.Audio.SampleRate != 44100 {
			t.Errorf("frame %d: got sample rate %d, want 44100", i, out.Audio.SampleRate)
		}
	}
}

func TestDecoderRejectsMissingExtraData(t *testing.T) {
	t.Parallel()
	if _, err := newDecoder(stream.CodecParameters{CodecID: mediatype.CodecVorbis}); err == nil {
		t.Fatal("expected an error for missing ExtraData")
	}
}
