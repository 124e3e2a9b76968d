package mpeg4

import (
	"testing"

	"github.com/jmylchreest/tao/pkg/bitio"
)

func TestScanStartCodes(t *testing.T) {
	t.Parallel()
	data := []byte{
		0, 0, 1, startCodeVOLMin, 0xFF, 0xFF,
		0, 0, 1, startCodeVOP, 0x00, 0x10,
	}
	entries := scanStartCodes(data)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].code != startCodeVOLMin {
		t.Errorf("entry 0 code: got 0x%02X, want 0x%02X", entries[0].code, startCodeVOLMin)
	}
	if entries[1].code != startCodeVOP {
		t.Errorf("entry 1 code: got 0x%02X, want 0x%02X", entries[1].code, startCodeVOP)
	}
}

func TestSplitVOPsMultiple(t *testing.T) {
	t.Parallel()
	data := []byte{
		0, 0, 1, startCodeVOLMin, 0xFF, 0xFF,
		0, 0, 1, startCodeVOP, 0x00, 0x10, 0x20,
		0, 0, 1, startCodeVOP, 0x40, 0x50,
	}
	vops := splitVOPs(data)
	if len(vops) != 2 {
		t.Fatalf("got %d VOPs, want 2", len(vops))
	}
	if vops[0][3] != startCodeVOLMin {
		t.Errorf("first VOP should retain the preceding VOL header")
	}
	if vops[1][3] != startCodeVOP {
		t.Errorf("second VOP should start at its own VOP code")
	}
}

func TestVOLRoundTrip(t *testing.T) {
	t.Parallel()
	want := vol{width: 176, height: 144, timeIncrementBits: log2Ceil(30)}
	got, err := parseVOL(bitio.NewBitReader(want.encode()))
	if err != nil {
		t.Fatalf("parseVOL: %v", err)
	}
	if got.width != want.width || got.height != want.height {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestVOPHeaderRoundTrip(t *testing.T) {
	t.Parallel()
	v := vol{width: 176, height: 144, timeIncrementBits: log2Ceil(30)}
	want := vop{codingType: vopTypeI, quant: 12}
	got, err := parseVOPHeader(bitio.NewBitReader(want.encode(v)), v)
	if err != nil {
		t.Fatalf("parseVOPHeader: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestLog2Ceil(t *testing.T) {
	t.Parallel()
	cases := map[int]int{1: 1, 2: 1, 3: 2, 30: 5, 32: 5, 33: 6}
	for n, want := range cases {
		if got := log2Ceil(n); got != want {
			t.Errorf("log2Ceil(%d): got %d, want %d", n, got, want)
		}
	}
}
