package mp3

import "testing"

func TestFrameHeaderRoundTrip(t *testing.T) {
	t.Parallel()
	want := frameHeader{version: 3, layer: 1, protection: 1, bitrateIdx: 5, sampleRate: 44100, mode: 0}
	got, err := parseFrameHeader(want.encode())
	if err != nil {
		t.Fatalf("parseFrameHeader: %v", err)
	}
	if got.sampleRate != want.sampleRate || got.mode != want.mode || got.bitrateIdx != want.bitrateIdx {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFrameHeaderRejectsBadSync(t *testing.T) {
	t.Parallel()
	if _, err := parseFrameHeader([]byte{0x00, 0x00, 0x00, 0x00}); err == nil {
		t.Fatal("expected an error for a bad frame sync")
	}
}

func TestFrameSizeAndChannels(t *testing.T) {
	t.Parallel()
	h := frameHeader{bitrateIdx: 10, sampleRate: 44100, mode: 3}
	if h.channels() != 1 {
		t.Errorf("mono mode: got %d channels, want 1", h.channels())
	}
	if size := h.frameSize(); size <= 0 {
		t.Errorf("frameSize: got %d, want > 0", size)
	}
}

func TestQuantizeBandRoundTrip(t *testing.T) {
	t.Parallel()
	values := make([]float64, bandWidth)
	for i := range values {
		values[i] = float64(i*13-80) * 2.5
	}
	sf, q := quantizeBand(values)
	got := dequantizeBand(sf, q)
	for i, v := range values {
		diff := got[i] - v
		if diff < 0 {
			diff = -diff
		}
		if diff > v*0.2+50 {
			t.Errorf("coefficient %d: got %.2f, want approximately %.2f", i, got[i], v)
		}
	}
}

func TestTrimReservoir(t *testing.T) {
	t.Parallel()
	big := make([]byte, maxReservoir+100)
	trimmed := trimReservoir(big)
	if len(trimmed) != maxReservoir {
		t.Errorf("got %d bytes, want %d", len(trimmed), maxReservoir)
	}
	small := make([]byte, maxReservoir-1)
	if trimmed := trimReservoir(small); len(trimmed) != len(small) {
		t.Errorf("short reservoir should pass through unchanged, got %d bytes", len(trimmed))
	}
}
