package hamt_test

import (
	"math/rand"
	"testing"

	"github.com/stytri/oboe/pkg/hamt"
)

func TestMapIndexIdempotent(t *testing.T) {
	a := hamt.New[string]()
	i := a.Push("alpha")
	a.MapIndex(42, i)
	a.MapIndex(42, i) // re-inserting the same pair must be a no-op

	found, ok := a.GetIndex(42, func(idx int) bool { return a.At(idx) == "alpha" })
	if !ok || found != i {
		t.Fatalf("expected to find index %d, got %d (ok=%v)", i, found, ok)
	}
}

func TestCollisionChainResolvedByCmp(t *testing.T) {
	a := hamt.New[string]()
	i0 := a.Push("first")
	i1 := a.Push("second")

	const sameHash = 0xDEADBEEFCAFEBABE
	a.MapIndex(sameHash, i0)
	a.MapIndex(sameHash, i1)

	found, ok := a.GetIndex(sameHash, func(idx int) bool { return a.At(idx) == "second" })
	if !ok || found != i1 {
		t.Fatalf("expected cmp to disambiguate to index %d, got %d (ok=%v)", i1, found, ok)
	}

	found, ok = a.GetIndex(sameHash, func(idx int) bool { return a.At(idx) == "first" })
	if !ok || found != i0 {
		t.Fatalf("expected cmp to disambiguate to index %d, got %d (ok=%v)", i0, found, ok)
	}
}

func TestGetIndexReturnsFirstInsertionOrderMatch(t *testing.T) {
	a := hamt.New[int]()
	idxA := a.Push(1)
	idxB := a.Push(1) // same logical "value", different vector slot

	a.MapIndex(7, idxA)
	a.MapIndex(7, idxB)

	found, ok := a.GetIndex(7, func(idx int) bool { return a.At(idx) == 1 })
	if !ok || found != idxA {
		t.Fatalf("expected first-inserted index %d, got %d", idxA, found)
	}
}

func TestRandomKeysRoundTrip(t *testing.T) {
	const n = 20000
	a := hamt.New[int]()
	rng := rand.New(rand.NewSource(1))
	hashes := make([]uint64, n)

	for i := 0; i < n; i++ {
		idx := a.Push(i)
		h := rng.Uint64()
		hashes[i] = h
		a.MapIndex(h, idx)
	}

	for i := 0; i < n; i++ {
		found, ok := a.GetIndex(hashes[i], func(idx int) bool { return a.At(idx) == i })
		if !ok || found != i {
			t.Fatalf("entry %d: expected to find itself, got %d (ok=%v)", i, found, ok)
		}
	}
}

func TestMissingHashNotFound(t *testing.T) {
	a := hamt.New[int]()
	a.MapIndex(1, a.Push(1))

	if _, ok := a.GetIndex(2, func(int) bool { return true }); ok {
		t.Fatalf("expected hash 2 to be absent")
	}
}
