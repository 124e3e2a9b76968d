package flac

import "testing"

func TestStreamInfoRoundTrip(t *testing.T) {
	t.Parallel()
	want := streamInfo{
		minBlockSize: 4096, maxBlockSize: 4096,
		sampleRate: 44100, channels: 2, bitsPerSample: 16,
		totalSamples: 123456,
	}
	got, err := parseStreamInfo(want.encode())
	if err != nil {
		t.Fatalf("parseStreamInfo: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestStreamInfoRejectsShortInput(t *testing.T) {
	t.Parallel()
	if _, err := parseStreamInfo(make([]byte, 10)); err == nil {
		t.Fatal("expected an error for a truncated STREAMINFO block")
	}
}

func TestBlockSizeCodeFor(t *testing.T) {
	t.Parallel()
	code, extraBits, _ := blockSizeCodeFor(4096)
	if code != 12 || extraBits != 0 {
		t.Errorf("blockSizeCodeFor(4096): got code=%d extraBits=%d, want code=12 extraBits=0", code, extraBits)
	}
	code, extraBits, extraVal := blockSizeCodeFor(5000)
	if code != 7 || extraBits != 16 || extraVal != 4999 {
		t.Errorf("blockSizeCodeFor(5000): got code=%d extraBits=%d extraVal=%d", code, extraBits, extraVal)
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	t.Parallel()
	for _, v := range []int32{0, 1, -1, 1000, -1000} {
		u := zigzag(v)
		var back int32
		if u%2 == 0 {
			back = int32(u / 2)
		} else {
			back = -int32((u + 1) / 2)
		}
		if back != v {
			t.Errorf("zigzag(%d) = %d, round trip got %d", v, u, back)
		}
	}
}

func TestFixedResidualOrderZeroIsIdentity(t *testing.T) {
	t.Parallel()
	samples := []int32{10, 20, -5, 7}
	residual := fixedResidual(samples, 0)
	for i, v := range residual {
		if v != samples[i] {
			t.Errorf("order-0 residual[%d]: got %d, want %d", i, v, samples[i])
		}
	}
}
