package packet

import (
	"testing"

	"github.com/jmylchreest/tao/pkg/rational"
)

func tb() rational.Rational {
	r, _ := rational.New(1, 1000)
	return r
}

func TestNewDefaultsNoPTS(t *testing.T) {
	p := New(0, []byte{1, 2, 3}, tb())
	ts := rational.Timestamp{PTS: p.PTS}
	if !ts.IsNoPTS() {
		t.Fatalf("expected default PTS to be NoPTS, got %d", p.PTS)
	}
	if p.Pos != -1 {
		t.Fatalf("expected default Pos -1, got %d", p.Pos)
	}
	if p.RefCount() != 1 {
		t.Fatalf("expected refcount 1, got %d", p.RefCount())
	}
}

func TestCloneSharesBufferUntilWrite(t *testing.T) {
	p := New(0, []byte{1, 2, 3}, tb())
	c := p.Clone()

	if p.RefCount() != 2 || c.RefCount() != 2 {
		t.Fatalf("expected refcount 2 on both, got p=%d c=%d", p.RefCount(), c.RefCount())
	}
	if &p.Bytes()[0] != &c.Bytes()[0] {
		t.Fatalf("expected shared backing array")
	}

	c.SetBytes([]byte{9, 9, 9})
	if p.Bytes()[0] != 1 {
		t.Fatalf("mutating clone must not affect original, got %v", p.Bytes())
	}
	if p.RefCount() != 1 {
		t.Fatalf("expected original refcount to drop to 1 after COW split, got %d", p.RefCount())
	}
}

func TestSetBytesSoleOwnerReusesSlot(t *testing.T) {
	p := New(0, []byte{1, 2, 3}, tb())
	p.SetBytes([]byte{4, 5})
	if p.Size() != 2 {
		t.Fatalf("expected size 2, got %d", p.Size())
	}
	if p.RefCount() != 1 {
		t.Fatalf("expected refcount to remain 1, got %d", p.RefCount())
	}
}
