package vorbis

import "testing"

func TestIdentHeaderRoundTrip(t *testing.T) {
	t.Parallel()
	want := identHeader{channels: 2, sampleRate: 44100, blockSize0: 256, blockSize1: 2048}
	got, err := parseIdentHeader(want.encode())
	if err != nil {
		t.Fatalf("parseIdentHeader: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestIdentHeaderRejectsBadMagic(t *testing.T) {
	t.Parallel()
	b := identHeader{channels: 2, sampleRate: 44100, blockSize0: 256, blockSize1: 2048}.encode()
	b[1] = 'x'
	if _, err := parseIdentHeader(b); err == nil {
		t.Fatal("expected an error for a bad magic string")
	}
}

func TestPackUnpackHeaders(t *testing.T) {
	t.Parallel()
	ident := identHeader{channels: 2, sampleRate: 48000, blockSize0: 256, blockSize1: 2048}.encode()
	comment := minimalCommentHeader()
	setup := minimalSetupHeader()
	packed := packHeaders(ident, comment, setup)

	gotIdent, gotComment, gotSetup, err := unpackHeaders(packed)
	if err != nil {
		t.Fatalf("unpackHeaders: %v", err)
	}
	if string(gotIdent) != string(ident) || string(gotComment) != string(comment) || string(gotSetup) != string(setup) {
		t.Error("unpacked headers do not match the packed originals")
	}
}

func TestLog2Exp(t *testing.T) {
	t.Parallel()
	cases := map[int]int{1: 0, 2: 1, 256: 8, 2048: 11}
	for n, want := range cases {
		if got := log2Exp(n); got != want {
			t.Errorf("log2Exp(%d): got %d, want %d", n, got, want)
		}
	}
}
