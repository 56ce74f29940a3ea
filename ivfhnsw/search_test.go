package ivfhnsw

import (
	"container/heap"
	"testing"
)

func TestPushBoundedKeepsKSmallest(t *testing.T) {
	h := &candidateMaxHeap{}
	heap.Init(h)
	dists := []float32{5, 1, 9, 3, 7, 2}
	for i, d := range dists {
		pushBounded(h, candidate{id: uint32(i), dist: d}, 3)
	}
	if h.Len() != 3 {
		t.Fatalf("heap len = %d, want 3", h.Len())
	}
	var kept []float32
	for h.Len() > 0 {
		kept = append(kept, heap.Pop(h).(candidate).dist)
	}
	want := map[float32]bool{1: true, 2: true, 3: true}
	for _, d := range kept {
		if !want[d] {
			t.Fatalf("kept distances = %v, want the 3 smallest of %v", kept, dists)
		}
	}
}

func TestPushBoundedZeroK(t *testing.T) {
	h := &candidateMaxHeap{}
	heap.Init(h)
	pushBounded(h, candidate{id: 0, dist: 1}, 0)
	if h.Len() != 0 {
		t.Fatalf("heap len = %d, want 0 when k=0", h.Len())
	}
}

func TestPushBoundedTieBreaksByID(t *testing.T) {
	h := &candidateMaxHeap{}
	heap.Init(h)
	pushBounded(h, candidate{id: 5, dist: 1}, 1)
	pushBounded(h, candidate{id: 2, dist: 1}, 1)
	top := heap.Pop(h).(candidate)
	if top.id != 2 {
		t.Fatalf("kept id = %d, want 2 (lower id wins equal-distance tie)", top.id)
	}
}
