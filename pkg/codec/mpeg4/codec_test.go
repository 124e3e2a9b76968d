package mpeg4

import (
	"testing"

	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/stream"
)

func makeTestVideoFrame(width, height int, fill byte) frame.VideoFrame {
	luma := make([]byte, width*height)
	for i := range luma {
		luma[i] = fill
	}
	cw, ch := width/2, height/2
	cb := make([]byte, cw*ch)
	cr := make([]byte, cw*ch)
	for i := range cb {
		cb[i] = 128
		cr[i] = 128
	}
	return frame.VideoFrame{
		Format:  mediatype.PixelFormatYUV420P,
		Width:   width,
		Height:  height,
		Planes:  [][]byte{luma, cb, cr},
		Strides: []int{width, cw, cw},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	par := stream.CodecParameters{CodecID: mediatype.CodecMPEG4Part2, Width: 32, Height: 16}
	enc, err := newEncoder(par)
	if err != nil {
		t.Fatalf("newEncoder: %v", err)
	}

	dec, err := newDecoder(stream.CodecParameters{CodecID: mediatype.CodecMPEG4Part2, ExtraData: enc.ExtraData()})
	if err != nil {
		t.Fatalf("newDecoder: %v", err)
	}

	for i, fill := range []byte{40, 80} {
		vf := makeTestVideoFrame(32, 16, fill)
		if err := enc.SendFrame(frame.NewVideo(vf)); err != nil {
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
		if out.Video.Width != 32 || out.Video.Height != 16 {
			t.Errorf("frame %d: got %dx%d, want 32x16", i, out.Video.Width, out.Video.Height)
		}
		if i == 0 && !out.Video.IsKeyframe {
			t.Errorf("frame 0: expected IsKeyframe")
		}
	}
}

func TestEncoderRejectsZeroDimensions(t *testing.T) {
	t.Parallel()
	if _, err := newEncoder(stream.CodecParameters{CodecID: mediatype.CodecMPEG4Part2}); err == nil {
		t.Fatal("expected an error for missing Width/Height")
	}
}
