package format

import (
	"bytes"
	"testing"

	"github.com/jmylchreest/tao/internal/testutil"
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/packet"
	"github.com/jmylchreest/tao/pkg/stream"
)

type fakeDemuxer struct{ streams []stream.Stream }

func (f *fakeDemuxer) Streams() []stream.Stream               { return f.streams }
func (f *fakeDemuxer) ReadPacket() (*packet.Packet, error)    { return nil, nil }
func (f *fakeDemuxer) SeekTo(streamIndex int, ts int64) error { return nil }
func (f *fakeDemuxer) Close() error                           { return nil }

func TestRegisterProbeAndOpenInput(t *testing.T) {
	r := NewRegistry()
	r.Register(FormatWAV,
		func(peek []byte) int {
			if bytes.HasPrefix(peek, []byte("RIFF")) {
				return 100
			}
			return 0
		},
		[]string{"wav"},
		func(s bytestream.ByteStream) (Demuxer, error) { return &fakeDemuxer{}, nil },
		nil,
	)

	s := testutil.NewMemStreamFromBytes(append([]byte("RIFF"), []byte{0, 0, 0, 0}...))
	d, err := r.OpenInput(s)
	if err != nil {
		t.Fatalf("OpenInput: %v", err)
	}
	if d == nil {
		t.Fatal("expected demuxer")
	}
}

func TestFromExtension(t *testing.T) {
	r := NewRegistry()
	r.Register(FormatMP4, nil, []string{"mp4", "m4v"}, nil, nil)
	if got := r.FromExtension("movie.MP4"); got != FormatMP4 {
		t.Fatalf("got %v, want FormatMP4", got)
	}
	if got := r.FromExtension("movie.avi"); got != FormatUnknown {
		t.Fatalf("got %v, want FormatUnknown", got)
	}
}

func TestOpenInputUnrecognised(t *testing.T) {
	r := NewRegistry()
	s := testutil.NewMemStreamFromBytes([]byte("not a container"))
	if _, err := r.OpenInput(s); err == nil {
		t.Fatal("expected error for unrecognised stream")
	}
}
