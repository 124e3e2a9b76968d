package codec

import (
	"testing"

	"github.com/jmylchreest/tao/pkg/frame"
	"github.com/jmylchreest/tao/pkg/mediaerr"
	"github.com/jmylchreest/tao/pkg/mediatype"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/stream"
)

type nopDecoder struct{}

func (nopDecoder) SendPacket(*packet.Packet) error    { return nil }
func (nopDecoder) ReceiveFrame() (frame.Frame, error) { return frame.Frame{}, mediaerr.Eof }
func (nopDecoder) Close() error                       { return nil }

func TestRegisterAndLookupDecoder(t *testing.T) {
	r := NewRegistry()
	r.RegisterDecoder(mediatype.CodecFLAC, func(stream.CodecParameters) (Decoder, error) {
		return nopDecoder{}, nil
	})

	if !r.HasDecoder(mediatype.CodecFLAC) {
		t.Fatal("expected decoder registered")
	}
	d, err := r.NewDecoder(stream.CodecParameters{CodecID: mediatype.CodecFLAC})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.ReceiveFrame(); err != mediaerr.Eof {
		t.Fatalf("expected Eof, got %v", err)
	}
}

func TestNewDecoderNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.NewDecoder(stream.CodecParameters{CodecID: mediatype.CodecAV1})
	if err == nil {
		t.Fatal("expected error for unregistered codec")
	}
}
