package hyperloglog

import "testing"

func TestEmptyCountsZero(t *testing.T) {
	h := New()
	if got := h.Count(); got != 0 {
		t.Fatalf("empty estimator counts %d", got)
	}
}

func TestDuplicatesCountOnce(t *testing.T) {
	h := New()
	for i := 0; i < 1000; i++ {
		h.Insert(42)
	}
	if got := h.Count(); got < 1 || got > 2 {
		t.Fatalf("1000 duplicate inserts estimate %d, want about 1", got)
	}
}

func TestCountAccuracy(t *testing.T) {
	for _, n := range []uint64{100, 1000, 10000} {
		h := New()
		for i := uint64(0); i < n; i++ {
			h.Insert(i)
		}
		got := h.Count()
		lo := n - n/20
		hi := n + n/20
		if got < lo || got > hi {
			t.Fatalf("estimate for %d distinct values is %d, want within 5%%", n, got)
		}
	}
}

func TestUnion(t *testing.T) {
	a := New()
	b := New()
	for i := uint64(0); i < 1000; i++ {
		a.Insert(i)
	}
	for i := uint64(500); i < 1500; i++ {
		b.Insert(i)
	}
	a.Union(b)
	got := a.Count()
	if got < 1400 || got > 1600 {
		t.Fatalf("union estimate %d, want about 1500", got)
	}
}

func TestUnionMonotone(t *testing.T) {
	a := New()
	for i := uint64(0); i < 500; i++ {
		a.Insert(i)
	}
	before := a.Count()

	sub := New()
	for i := uint64(0); i < 100; i++ {
		sub.Insert(i)
	}
	a.Union(sub)
	if got := a.Count(); got < before {
		t.Fatalf("union with subset shrank estimate from %d to %d", before, got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	h := New()
	for i := uint64(0); i < 100; i++ {
		h.Insert(i)
	}
	before := h.Count()

	clone := h.Clone()
	for i := uint64(100); i < 10100; i++ {
		clone.Insert(i)
	}
	if got := h.Count(); got != before {
		t.Fatalf("insert into clone changed original from %d to %d", before, got)
	}
	if clone.Count() <= before {
		t.Fatalf("clone estimate %d did not grow past %d", clone.Count(), before)
	}
}

func TestRegistersRoundTrip(t *testing.T) {
	h := New()
	for i := uint64(0); i < 1000; i++ {
		h.Insert(i)
	}

	restored := New()
	if err := restored.SetRegisters(h.Registers()); err != nil {
		t.Fatal(err)
	}
	if restored.Count() != h.Count() {
		t.Fatalf("restored estimate %d, want %d", restored.Count(), h.Count())
	}

	if err := New().SetRegisters(make([]uint8, 7)); err == nil {
		t.Fatal("short register array accepted")
	}
}
