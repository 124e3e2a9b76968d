package rational

import (
	"math"
	"testing"
)

func TestReduce(t *testing.T) {
	r := Rational{Num: 100, Den: 200}.Reduce()
	if r.Num != 1 || r.Den != 2 {
		t.Fatalf("got %+v, want 1/2", r)
	}
}

func TestMulApproximatesFloat(t *testing.T) {
	// P3: for any valid rationals a, b, to_f64(a*b) ~= to_f64(a)*to_f64(b)
	cases := []struct{ a, b Rational }{
		{Rational{1, 3}, Rational{2, 5}},
		{Rational{90000, 1}, Rational{1, 90000}},
		{Rational{33, 1001}, Rational{1001, 30}},
	}
	for _, c := range cases {
		got := c.a.Mul(c.b).ToFloat64()
		want := c.a.ToFloat64() * c.b.ToFloat64()
		if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
			t.Errorf("%+v * %+v = %v, want ~%v", c.a, c.b, got, want)
		}
	}
}

func TestRescaleIdentity(t *testing.T) {
	tb := Rational{1, 90000}
	ts := Timestamp{PTS: 123456, TimeBase: tb}
	got := ts.Rescale(tb)
	if got.PTS != ts.PTS {
		t.Fatalf("rescale to same base changed pts: %d -> %d", ts.PTS, got.PTS)
	}
}

func TestRescaleRoundTrip(t *testing.T) {
	// P3: rescale(t, b) then back recovers t within integer truncation.
	a := Rational{1, 1000}
	b := Rational{1, 90000}
	ts := Timestamp{PTS: 1000, TimeBase: a} // 1 second
	rb := ts.Rescale(b)
	if rb.PTS != 90000 {
		t.Fatalf("1000ms @ 1/1000 -> %d @ 1/90000, want 90000", rb.PTS)
	}
	back := rb.Rescale(a)
	if back.PTS != ts.PTS {
		t.Fatalf("round trip: got %d want %d", back.PTS, ts.PTS)
	}
}

func TestRescaleNoPTS(t *testing.T) {
	ts := Timestamp{PTS: NoPTS, TimeBase: Rational{1, 1000}}
	got := ts.Rescale(Rational{1, 90000})
	if !got.IsNoPTS() {
		t.Fatalf("NoPTS should rescale to NoPTS, got %d", got.PTS)
	}
}

func TestMulDivRoundLargeValues(t *testing.T) {
	// Values large enough that a naive int64 a*b would overflow.
	got := mulDivRound(1<<40, 1<<40, 1<<20)
	want := int64(1) << 60
	if got != want {
		t.Fatalf("got %d want %d", got, want)
	}
}

func TestMulDivRoundNegative(t *testing.T) {
	got := mulDivRound(-100, 3, 2)
	if got != -150 {
		t.Fatalf("got %d want -150", got)
	}
}
