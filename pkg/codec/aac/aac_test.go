package aac

import "testing"

func TestASCRoundTrip(t *testing.T) {
	t.Parallel()
	want := audioSpecificConfig{objectType: 2, sampleRateIdx: sampleRateIndexFor(44100), sampleRate: 44100, channels: 2}
	got, err := parseASC(want.encode())
	if err != nil {
		t.Fatalf("parseASC: %v", err)
	}
	if got.sampleRate != want.sampleRate || got.channels != want.channels {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestSampleRateIndexFor(t *testing.T) {
	t.Parallel()
	if idx := sampleRateIndexFor(48000); sampleRates[idx] != 48000 {
		t.Errorf("sampleRateIndexFor(48000) = %d, sampleRates[%d] = %d", idx, idx, sampleRates[idx])
	}
}

func TestSfbOffsets(t *testing.T) {
	t.Parallel()
	offs := sfbOffsets(numBands)
	if len(offs) != numBands+1 {
		t.Fatalf("got %d offsets, want %d", len(offs), numBands+1)
	}
	if offs[0] != 0 || offs[numBands] != frameLength {
		t.Errorf("band bounds: got [%d, %d], want [0, %d]", offs[0], offs[numBands], frameLength)
	}
}

func TestQuantizeBandRoundTrip(t *testing.T) {
	t.Parallel()
	values := make([]float64, bandWidth)
	for i := range values {
		values[i] = float64(i*17-120) * 3.5
	}
	sf, q := quantizeBand(values)
	got := dequantizeBand(sf, q)
	for i, v := range values {
		diff := got[i] - v
		if diff < 0 {
			diff = -diff
		}
		tol := v*0.2 + 50
		if v < 0 {
			tol = -v*0.2 + 50
		}
		if diff > tol {
			t.Errorf("coefficient %d: got %.2f, want approximately %.2f", i, got[i], v)
		}
	}
}

func TestQuantizeBandSilence(t *testing.T) {
	t.Parallel()
	sf, q := quantizeBand(make([]float64, bandWidth))
	if sf != 100 {
		t.Errorf("silent band scale factor: got %d, want 100", sf)
	}
	for _, qi := range q {
		if qi != 0 {
			t.Errorf("silent band coefficient: got %d, want 0", qi)
		}
	}
}
