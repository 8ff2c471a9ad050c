package engine

import (
	"math/rand/v2"
	"reflect"
	"sort"
	"testing"
)

func TestGenerateOrderIsPermutation(t *testing.T) {
	ids := []int{1, 2, 3, 4}
	r := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 200; i++ {
		o := GenerateOrder(ids, r.IntN)
		got := append([]int(nil), o...)
		sort.Ints(got)
		if !reflect.DeepEqual(got, ids) {
			t.Fatalf("not a permutation: %v", o)
		}
	}
	if !reflect.DeepEqual(ids, []int{1, 2, 3, 4}) {
		t.Fatalf("input slice was modified: %v", ids)
	}
}

func TestGenerateOrderScriptedSource(t *testing.T) {
	// Always picking 0 rotates each element to the front in turn.
	o := GenerateOrder([]int{1, 2, 3, 4}, func(int) int { return 0 })
	if !reflect.DeepEqual(o, Order{2, 3, 4, 1}) {
		t.Fatalf("unexpected order %v", o)
	}

	// Picking i leaves the slice untouched.
	o = GenerateOrder([]int{1, 2, 3, 4}, func(n int) int { return n - 1 })
	if !reflect.DeepEqual(o, Order{1, 2, 3, 4}) {
		t.Fatalf("unexpected order %v", o)
	}
}

func TestGenerateOrderCoversAllPermutations(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	seen := make(map[[4]int]bool)
	for i := 0; i < 5000; i++ {
		o := GenerateOrder([]int{1, 2, 3, 4}, r.IntN)
		seen[[4]int{o[0], o[1], o[2], o[3]}] = true
	}
	if len(seen) != 24 {
		t.Fatalf("expected all 24 permutations, saw %d", len(seen))
	}
}

func TestOrderNext(t *testing.T) {
	o := Order{3, 1, 4, 2}

	if first, ok := o.First(); !ok || first != 3 {
		t.Fatalf("expected first 3, got %d %v", first, ok)
	}
	if next, ok := o.Next(1); !ok || next != 4 {
		t.Fatalf("expected 4 after 1, got %d %v", next, ok)
	}
	if _, ok := o.Next(2); ok {
		t.Fatalf("last entry must report end of run")
	}
	if _, ok := o.Next(9); ok {
		t.Fatalf("unknown entry must report end of run")
	}
	if _, ok := (Order{}).First(); ok {
		t.Fatalf("empty order has no first entry")
	}
}
