package h264

import (
	"testing"

	"github.com/jmylchreest/tao/pkg/bitio"
)

func TestSplitAnnexB(t *testing.T) {
	t.Parallel()
	data := []byte{
		0, 0, 0, 1, 0x67, 0xAA, 0xBB,
		0, 0, 1, 0x68, 0xCC,
		0, 0, 1, 0x65, 0xDD, 0xEE, 0, 0,
	}
	units := splitAnnexB(data)
	if len(units) != 3 {
		t.Fatalf("got %d units, want 3", len(units))
	}
	if nalType(units[0]) != nalSPS {
		t.Errorf("unit 0 type: got %d, want %d", nalType(units[0]), nalSPS)
	}
	if nalType(units[1]) != nalPPS {
		t.Errorf("unit 1 type: got %d, want %d", nalType(units[1]), nalPPS)
	}
	if len(units[2]) != 3 || units[2][0] != 0x65 {
		t.Errorf("unit 2: got %v, want trailing zero padding stripped", units[2])
	}
}

func TestSPSRoundTrip(t *testing.T) {
	t.Parallel()
	want := sps{profileIDC: 66, levelIDC: 30, id: 0, log2MaxFrame: 8, picOrderType: 2, width: 176, height: 144}
	encoded := want.encode()
	got, err := parseSPS(bitio.NewBitReader(encoded))
	if err != nil {
		t.Fatalf("parseSPS: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestPPSRoundTrip(t *testing.T) {
	t.Parallel()
	want := pps{id: 0, spsID: 0, initQP: 28}
	encoded := want.encode()
	got, err := parsePPS(bitio.NewBitReader(encoded))
	if err != nil {
		t.Fatalf("parsePPS: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSPSRejectsUnsupportedPicOrderType(t *testing.T) {
	t.Parallel()
	bw := bitio.NewBitWriter()
	bw.WriteBits(66, 8)
	bw.WriteBits(0, 8)
	bw.WriteBits(30, 8)
	bw.WriteUE(0)
	bw.WriteUE(4) // log2_max_frame_num_minus4
	bw.WriteUE(0) // pic_order_cnt_type 0, unsupported
	bw.AlignByteWithStopBit()
	if _, err := parseSPS(bitio.NewBitReader(bw.Bytes())); err == nil {
		t.Fatal("expected an error for pic_order_cnt_type 0")
	}
}
