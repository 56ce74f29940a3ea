package ivfhnsw

import (
	"container/heap"
	"fmt"

	"github.com/patrikhermansson/ivfhnsw/core"
	"github.com/patrikhermansson/ivfhnsw/pqcodec"
	"github.com/patrikhermansson/ivfhnsw/vecmath"
)

// candidate is one scored search result held in the bounded top-k heap.
type candidate struct {
	id   uint32
	dist float32
}

// candidateMaxHeap keeps its largest-distance element at the top so Search
// can evict it the moment a smaller-distance candidate arrives, bounding the
// heap at k entries (spec §4.8.3 — an explicit min-preserving heap, not the
// sign-inverted max-heap original_source/hnswIndexPQ_new.h uses and then
// forgets to re-negate on read-back).
type candidateMaxHeap []candidate

func (h candidateMaxHeap) Len() int { return len(h) }
func (h candidateMaxHeap) Less(i, j int) bool {
	if h[i].dist == h[j].dist {
		return h[i].id > h[j].id
	}
	return h[i].dist > h[j].dist
}
func (h candidateMaxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateMaxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func pushBounded(h *candidateMaxHeap, c candidate, k int) {
	if h.Len() < k {
		heap.Push(h, c)
		return
	}
	if k == 0 {
		return
	}
	top := (*h)[0]
	if c.dist < top.dist || (c.dist == top.dist && c.id < top.id) {
		(*h)[0] = c
		heap.Fix(h, 0)
	}
}

// Search returns the k approximate nearest neighbors of query, probing the
// NProbe closest coarse centroids (clamped to NC) and, within each, every
// sub-list's PQ-ADC scored candidates, with an early stop once the running
// scanned-candidate count exceeds MaxCodes (0 disables the cap). Distances
// follow the resolved decomposition
//
//	dist = (alpha-1)*q_c + alpha*q_s - 2*q_r + norm
//
// (spec §4.8.2's corrected sign convention; the original subtracts alpha*q_s
// instead of adding it, a bug this index does not reproduce).
func (idx *Index) Search(query []float32, k int) ([]core.Neighbor, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) != idx.D {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", core.ErrDimensionMismatch, len(query), idx.D)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k=%d must be positive", core.ErrParameterOutOfRange, k)
	}
	if idx.MaxCodes > 0 && k > idx.MaxCodes {
		return nil, fmt.Errorf("%w: k=%d exceeds max_codes=%d", core.ErrParameterOutOfRange, k, idx.MaxCodes)
	}
	if !idx.ResidualPQ.Trained() || !idx.NormPQ.Trained() {
		return nil, core.ErrPQNotTrained
	}
	if !idx.built {
		return nil, fmt.Errorf("%w: index has no neighbor table; call BuildQuantizer and Add first", core.ErrCorruptIndex)
	}

	table, err := idx.ResidualPQ.InnerProductTable(query)
	if err != nil {
		return nil, err
	}

	nprobe := idx.NProbe
	if nprobe <= 0 {
		nprobe = 1
	}
	if nprobe > idx.NC {
		nprobe = idx.NC
	}
	coarse, err := idx.Quantizer.SearchKNN(query, nprobe)
	if err != nil {
		return nil, err
	}

	h := &candidateMaxHeap{}
	heap.Init(h)
	scanned := 0
	for _, c := range coarse {
		scanned += idx.scoreList(query, int(c.ID), c.Dist, table, h, k)
		if idx.MaxCodes > 0 && scanned > idx.MaxCodes {
			break
		}
	}

	out := make([]core.Neighbor, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		top := heap.Pop(h).(candidate)
		out[i] = core.Neighbor{ID: top.id, Dist: top.dist}
	}
	return out, nil
}

// scoreList scans every point in coarse centroid c's nsubc sub-lists,
// pushing each candidate's PQ-ADC score into h, and returns how many
// candidates were scanned (the unit idx.MaxCodes bounds).
func (idx *Index) scoreList(query []float32, c int, qc float32, table []float32, h *candidateMaxHeap, k int) int {
	alpha := idx.alphas[c]
	nnIDs := idx.nnIDs[c]
	ksub := idx.ResidualPQ.Ksub
	m := idx.ResidualPQ.M

	scanned := 0
	for s := 0; s < idx.NSubC; s++ {
		list := idx.lists[c][s]
		g := len(list.IDs)
		if g == 0 {
			continue
		}
		neighbor, ok := idx.Quantizer.GetCentroid(int(nnIDs[s]))
		if !ok {
			continue
		}
		qs := vecmath.L2Sqr(query, neighbor)

		norms, err := idx.NormPQ.Decode(list.NCodes, g)
		if err != nil {
			continue
		}
		for i := 0; i < g; i++ {
			code := list.Codes[i*m : (i+1)*m]
			qr := pqcodec.InnerProduct(table, ksub, code)
			dist := (alpha-1)*qc + alpha*qs - 2*qr + norms[i]
			pushBounded(h, candidate{id: list.IDs[i], dist: dist}, k)
		}
		scanned += g
	}
	return scanned
}
