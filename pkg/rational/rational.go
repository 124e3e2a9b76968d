// Package rational implements exact rational-number time bases and
// timestamps for the tao codec/container core, per spec.md §3.
//
// All packet/frame times are integers in the owning stream's time_base;
// rescaling between time bases uses 128-bit intermediate multiplication
// so no floating point ever enters the timing path.
package rational

import (
	"math/bits"

	"github.com/jmylchreest/tao/pkg/mediaerr"
)

// Rational is a pair (Num, Den), Den must be non-zero. Used for time
// bases and frame rates.
type Rational struct {
	Num int32
	Den int32
}

// New constructs a Rational, returning an error if Den is zero.
func New(num, den int32) (Rational, error) {
	if den == 0 {
		return Rational{}, mediaerr.NewInvalidArgument("rational: zero denominator")
	}
	return Rational{Num: num, Den: den}, nil
}

// Reduce returns r reduced to lowest terms with a positive denominator.
func (r Rational) Reduce() Rational {
	if r.Den == 0 {
		return r
	}
	n, d := int64(r.Num), int64(r.Den)
	if d < 0 {
		n, d = -n, -d
	}
	g := gcd(abs64(n), d)
	if g == 0 {
		return Rational{Num: 0, Den: int32(d)}
	}
	return Rational{Num: int32(n / g), Den: int32(d / g)}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Mul multiplies two rationals and reduces the result.
func (r Rational) Mul(o Rational) Rational {
	return Rational{Num: r.Num * o.Num, Den: r.Den * o.Den}.Reduce()
}

// Invert returns 1/r.
func (r Rational) Invert() Rational {
	return Rational{Num: r.Den, Den: r.Num}
}

// ToFloat64 converts r to a float64 approximation. Used only for
// diagnostics/logging and frame-rate display — never on the integer
// rescale hot path.
func (r Rational) ToFloat64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// IsValid reports whether the rational has a non-zero denominator.
func (r Rational) IsValid() bool {
	return r.Den != 0
}

// NoPTS is the sentinel pts value meaning "undefined" (spec.md §3).
const NoPTS int64 = -1 << 63 // i64::MIN

// Timestamp pairs a signed 64-bit pts with the Rational time_base it is
// expressed in.
type Timestamp struct {
	PTS      int64
	TimeBase Rational
}

// IsNoPTS reports whether t carries the NoPTS sentinel.
func (t Timestamp) IsNoPTS() bool {
	return t.PTS == NoPTS
}

// Rescale computes pts * TimeBase / newBase via 128-bit intermediate
// multiplication (no float), per spec.md §3. NoPTS rescales to NoPTS.
func (t Timestamp) Rescale(newBase Rational) Timestamp {
	if t.IsNoPTS() || !t.TimeBase.IsValid() || !newBase.IsValid() {
		return Timestamp{PTS: NoPTS, TimeBase: newBase}
	}
	if t.TimeBase == newBase {
		return Timestamp{PTS: t.PTS, TimeBase: newBase}
	}
	// pts' = pts * (t.TimeBase.Num * newBase.Den) / (t.TimeBase.Den * newBase.Num)
	num := int64(t.TimeBase.Num) * int64(newBase.Den)
	den := int64(t.TimeBase.Den) * int64(newBase.Num)
	return Timestamp{PTS: mulDivRound(t.PTS, num, den), TimeBase: newBase}
}

// RescalePTS rescales a bare pts value between two time bases, as used by
// packet/frame rescale helpers that don't want to allocate a Timestamp.
func RescalePTS(pts int64, from, to Rational) int64 {
	if pts == NoPTS || !from.IsValid() || !to.IsValid() {
		return NoPTS
	}
	if from == to {
		return pts
	}
	num := int64(from.Num) * int64(to.Den)
	den := int64(from.Den) * int64(to.Num)
	return mulDivRound(pts, num, den)
}

// mulDivRound computes round(a*b/c) using a 128-bit intermediate product
// so that a*b never silently overflows int64, matching spec.md §3's
// "128-bit intermediate multiplication" requirement.
func mulDivRound(a, b, c int64) int64 {
	if c < 0 {
		a, c = -a, -c
	}
	neg := false
	if a < 0 {
		a, neg = -a, !neg
	}
	if b < 0 {
		b, neg = -b, !neg
	}

	hi, lo := bits.Mul64(uint64(a), uint64(b))
	// Add c/2 for round-to-nearest before dividing, watching for overflow
	// of the low 64 bits.
	half := uint64(c) / 2
	newLo, carry := bits.Add64(lo, half, 0)
	hi += carry

	var q uint64
	if hi == 0 {
		q = newLo / uint64(c)
	} else {
		q, _ = bits.Div64(hi, newLo, uint64(c))
	}
	result := int64(q)
	if neg {
		result = -result
	}
	return result
}
