// Package quantizer implements the coarse quantizer the index's inverted
// lists are built around: a navigable small-world proximity graph over the
// nc coarse centroids, queried for the top-k nearest centroids to a probe
// vector. It is the spec §6.1 black box — the ivfhnsw package only calls
// AddPoint, SearchKNN, SearchKNNExcludingID, and GetCentroid, never reaching
// into the graph's internal node/link representation.
//
// Grounded on the teacher's hnsw/index.go: the same candidate-heap greedy
// descent and randomLevel machinery, stripped of Delete/Update/cosine
// normalization (coarse centroids are static once built) and fixed to
// squared Euclidean distance via vecmath.L2Sqr.
package quantizer

import (
	"bytes"
	"container/heap"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/patrikhermansson/ivfhnsw/core"
	"github.com/patrikhermansson/ivfhnsw/vecmath"
	"github.com/rs/zerolog/log"
)

var seededRand = rand.New(rand.NewSource(core.GetSeed()))
var seededRandMu sync.Mutex

// maxLevelCap bounds a node's randomly assigned level.
const maxLevelCap = 32

// candidate pairs a node id with its squared distance to the active query.
type candidate struct {
	id   int
	dist float32
}

type candidateMinHeap []candidate

func (h candidateMinHeap) Len() int { return len(h) }
func (h candidateMinHeap) Less(i, j int) bool {
	if h[i].dist == h[j].dist {
		return h[i].id < h[j].id
	}
	return h[i].dist < h[j].dist
}
func (h candidateMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateMinHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type candidateMaxHeap []candidate

func (h candidateMaxHeap) Len() int { return len(h) }
func (h candidateMaxHeap) Less(i, j int) bool {
	if h[i].dist == h[j].dist {
		return h[i].id < h[j].id
	}
	return h[i].dist > h[j].dist
}
func (h candidateMaxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateMaxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// node is a single coarse centroid in the graph.
type node struct {
	id     int
	vector []float32
	level  int
	links  map[int][]int // neighbor ids, per level
}

// Graph is the navigable small-world proximity graph over coarse centroids.
type Graph struct {
	mu         sync.RWMutex
	Dimension  int
	M          int
	Ef         int
	entryPoint int
	hasEntry   bool
	maxLevel   int
	nodes      map[int]*node
}

// NewGraph creates an empty graph quantizer over vectors of the given
// dimension. M bounds the per-level neighbor count; Ef controls search
// breadth (both during construction and query).
func NewGraph(dimension, M, ef int) *Graph {
	log.Info().Msgf("Creating new quantizer graph with dimension=%d, M=%d, ef=%d", dimension, M, ef)
	return &Graph{
		Dimension: dimension,
		M:         M,
		Ef:        ef,
		maxLevel:  -1,
		nodes:     make(map[int]*node),
	}
}

func (g *Graph) randomLevel() int {
	if g.M <= 1 {
		return 0
	}
	seededRandMu.Lock()
	r := seededRand.Float64()
	seededRandMu.Unlock()
	level := int(-math.Log(r) / math.Log(float64(g.M)))
	if level > maxLevelCap {
		level = maxLevelCap
	}
	return level
}

func (g *Graph) dist(a, b []float32) float32 {
	return vecmath.L2Sqr(a, b)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func selectM(candidates []candidate, M int) []candidate {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist == candidates[j].dist {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].dist < candidates[j].dist
	})
	if len(candidates) > M {
		return candidates[:M]
	}
	return candidates
}

func (g *Graph) selectNodes(ids []int, vec []float32, M int) []int {
	type idWithDist struct {
		id   int
		dist float32
	}
	arr := make([]idWithDist, len(ids))
	for i, id := range ids {
		arr[i] = idWithDist{id, g.dist(vec, g.nodes[id].vector)}
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].dist == arr[j].dist {
			return arr[i].id < arr[j].id
		}
		return arr[i].dist < arr[j].dist
	})
	selected := make([]int, minInt(len(arr), M))
	for i := range selected {
		selected[i] = arr[i].id
	}
	return selected
}

func removeFromSlice(ids []int, target int) []int {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func (g *Graph) trimNeighborLinks(id, level, M int) {
	n := g.nodes[id]
	trimmed := g.selectNodes(n.links[level], n.vector, M)
	n.links[level] = trimmed
}

// AddPoint inserts a coarse centroid vector under the given integer id. Ids
// must be unique and assigned once; the graph is write-once per centroid,
// matching the index's "static after construction" lifecycle.
func (g *Graph) AddPoint(v []float32, id int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(v) != g.Dimension {
		return fmt.Errorf("%w: vector dimension %d does not match quantizer dimension %d",
			core.ErrDimensionMismatch, len(v), g.Dimension)
	}
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("ivfhnsw: quantizer id %d already exists", id)
	}
	level := g.randomLevel()
	vec := make([]float32, len(v))
	copy(vec, v)
	n := &node{id: id, vector: vec, level: level, links: make(map[int][]int)}
	g.nodes[id] = n
	g.insertNode(n)
	return nil
}

func (g *Graph) insertNode(n *node) {
	if !g.hasEntry {
		g.entryPoint = n.id
		g.hasEntry = true
		g.maxLevel = n.level
		return
	}
	if n.level > g.maxLevel {
		g.entryPoint = n.id
		g.maxLevel = n.level
	}
	current := g.entryPoint
	for L := g.maxLevel; L > n.level; L-- {
		changed := true
		for changed {
			changed = false
			for _, nb := range g.nodes[current].links[L] {
				if g.dist(n.vector, g.nodes[nb].vector) < g.dist(n.vector, g.nodes[current].vector) {
					current = nb
					changed = true
				}
			}
		}
	}
	for L := minInt(n.level, g.maxLevel); L >= 0; L-- {
		candList := g.searchLayer(n.vector, current, L, g.Ef)
		selected := selectM(candList, g.M)
		ids := make([]int, len(selected))
		for i, c := range selected {
			ids[i] = c.id
		}
		n.links[L] = ids
		for _, nbID := range ids {
			nb := g.nodes[nbID]
			nb.links[L] = append(nb.links[L], n.id)
			if len(nb.links[L]) > g.M {
				g.trimNeighborLinks(nbID, L, g.M)
			}
		}
		if len(candList) > 0 {
			current = candList[0].id
		}
	}
}

func (g *Graph) searchLayer(query []float32, entrypoint int, level, ef int) []candidate {
	visited := map[int]bool{entrypoint: true}
	d0 := g.dist(query, g.nodes[entrypoint].vector)
	candQueue := candidateMinHeap{{entrypoint, d0}}
	heap.Init(&candQueue)
	resultQueue := candidateMaxHeap{{entrypoint, d0}}
	heap.Init(&resultQueue)
	for candQueue.Len() > 0 {
		current := candQueue[0]
		worst := resultQueue[0]
		if current.dist > worst.dist {
			break
		}
		heap.Pop(&candQueue)
		for _, nbID := range g.nodes[current.id].links[level] {
			if visited[nbID] {
				continue
			}
			visited[nbID] = true
			d := g.dist(query, g.nodes[nbID].vector)
			if resultQueue.Len() < ef || d < resultQueue[0].dist {
				cand := candidate{nbID, d}
				heap.Push(&candQueue, cand)
				heap.Push(&resultQueue, cand)
				if resultQueue.Len() > ef {
					heap.Pop(&resultQueue)
				}
			}
		}
	}
	results := make([]candidate, resultQueue.Len())
	for i := range results {
		results[i] = heap.Pop(&resultQueue).(candidate)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].dist == results[j].dist {
			return results[i].id < results[j].id
		}
		return results[i].dist < results[j].dist
	})
	return results
}

// SearchKNN returns up to k nearest centroids to query, ascending by squared
// L2 distance with id as the tie-breaker — matching spec §6.1's "max-heap of
// (dist², id)" contract, exposed here already unwound into ascending order
// since every caller (§4.3, §4.8) consumes it that way.
func (g *Graph) SearchKNN(query []float32, k int) ([]core.Neighbor, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(query) != g.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d does not match quantizer dimension %d",
			core.ErrDimensionMismatch, len(query), g.Dimension)
	}
	if !g.hasEntry {
		return nil, fmt.Errorf("ivfhnsw: quantizer is empty")
	}

	current := g.entryPoint
	for L := g.maxLevel; L > 0; L-- {
		changed := true
		for changed {
			changed = false
			for _, nbID := range g.nodes[current].links[L] {
				if g.dist(query, g.nodes[nbID].vector) < g.dist(query, g.nodes[current].vector) {
					current = nbID
					changed = true
				}
			}
		}
	}
	ef := g.Ef
	if k > ef {
		ef = k
	}
	candidates := g.searchLayer(query, current, 0, ef)
	if len(candidates) < k {
		candidates = g.fallbackScan(query, k, candidates)
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]core.Neighbor, k)
	for i := 0; i < k; i++ {
		results[i] = core.Neighbor{ID: uint32(candidates[i].id), Dist: candidates[i].dist}
	}
	return results, nil
}

// fallbackScan extends a too-small candidate set with a parallel exhaustive
// scan over the remaining nodes, grounded on the teacher's hnsw fallback
// search (runtime.NumCPU worker chunks merged through per-worker max-heaps).
func (g *Graph) fallbackScan(query []float32, k int, have []candidate) []candidate {
	haveIDs := make(map[int]bool, len(have))
	for _, c := range have {
		haveIDs[c.id] = true
	}
	remaining := make([]int, 0, len(g.nodes))
	for id := range g.nodes {
		if !haveIDs[id] {
			remaining = append(remaining, id)
		}
	}
	sort.Ints(remaining)

	need := k - len(have)
	numWorkers := runtime.NumCPU()
	if numWorkers > len(remaining) {
		numWorkers = len(remaining)
	}
	if numWorkers == 0 {
		return have
	}
	chunkSize := (len(remaining) + numWorkers - 1) / numWorkers
	resultsCh := make(chan candidateMaxHeap, numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(remaining) {
			end = len(remaining)
		}
		wg.Add(1)
		go func(chunk []int) {
			defer wg.Done()
			localHeap := candidateMaxHeap{}
			heap.Init(&localHeap)
			for _, id := range chunk {
				d := g.dist(query, g.nodes[id].vector)
				cand := candidate{id, d}
				if localHeap.Len() < need {
					heap.Push(&localHeap, cand)
				} else if localHeap.Len() > 0 && d < localHeap[0].dist {
					heap.Pop(&localHeap)
					heap.Push(&localHeap, cand)
				}
			}
			resultsCh <- localHeap
		}(remaining[start:end])
	}
	wg.Wait()
	close(resultsCh)

	finalHeap := candidateMaxHeap{}
	heap.Init(&finalHeap)
	for partial := range resultsCh {
		for partial.Len() > 0 {
			cand := heap.Pop(&partial).(candidate)
			if finalHeap.Len() < need {
				heap.Push(&finalHeap, cand)
			} else if finalHeap.Len() > 0 && cand.dist < finalHeap[0].dist {
				heap.Pop(&finalHeap)
				heap.Push(&finalHeap, cand)
			}
		}
	}
	extra := make([]candidate, finalHeap.Len())
	for i := range extra {
		extra[i] = heap.Pop(&finalHeap).(candidate)
	}
	all := append(have, extra...)
	sort.Slice(all, func(i, j int) bool {
		if all[i].dist == all[j].dist {
			return all[i].id < all[j].id
		}
		return all[i].dist < all[j].dist
	})
	return all
}

// SearchKNNExcludingID requests k+1 neighbors and discards the entry with
// the given id (the self-hit), returning the remaining k ascending by
// distance. Implements spec §4.3's "request nsubc+1, discard the self-hit"
// contract: matches by id equality first; if the excluded id is absent from
// the result, the smallest-distance entry is dropped instead, per the
// quantizer's §6.1 "does not guarantee a self-hit" fallback clause.
func (g *Graph) SearchKNNExcludingID(query []float32, excludeID, k int) ([]core.Neighbor, error) {
	raw, err := g.SearchKNN(query, k+1)
	if err != nil {
		return nil, err
	}
	if len(raw) < k+1 {
		return nil, fmt.Errorf("%w: requested %d, quantizer returned %d", core.ErrInsufficientCentroids, k+1, len(raw))
	}
	out := make([]core.Neighbor, 0, k)
	removed := false
	for _, r := range raw {
		if !removed && r.ID == uint32(excludeID) {
			removed = true
			continue
		}
		out = append(out, r)
	}
	if !removed {
		// No self-hit present; drop the smallest-distance entry instead.
		out = raw[1:]
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// GetCentroid returns a read-only view of the vector stored under id.
func (g *Graph) GetCentroid(id int) ([]float32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.vector, true
}

// Len returns the number of centroids stored in the graph.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// gobNode and gobGraphInfo/gobGraphEdges mirror the teacher's serializedNode/
// serializedIndex split, but across two files (SaveInfo/SaveEdges) instead
// of one, matching spec §6.1's two-artifact quantizer persistence contract.
type gobNode struct {
	ID     int
	Vector []float32
	Level  int
}

type gobGraphInfo struct {
	Dimension  int
	M          int
	Ef         int
	EntryPoint int
	HasEntry   bool
	MaxLevel   int
	Nodes      []gobNode
}

type gobGraphEdges struct {
	Links map[int]map[int][]int // node id -> level -> neighbor ids
}

// SaveInfo persists dimension, parameters, and per-node vectors/levels.
func (g *Graph) SaveInfo(path string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	info := gobGraphInfo{
		Dimension:  g.Dimension,
		M:          g.M,
		Ef:         g.Ef,
		EntryPoint: g.entryPoint,
		HasEntry:   g.hasEntry,
		MaxLevel:   g.maxLevel,
		Nodes:      make([]gobNode, 0, len(g.nodes)),
	}
	for _, n := range g.nodes {
		info.Nodes = append(info.Nodes, gobNode{ID: n.id, Vector: n.vector, Level: n.level})
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(info); err != nil {
		return fmt.Errorf("ivfhnsw: encode quantizer info: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("ivfhnsw: write quantizer info: %w", err)
	}
	log.Info().Msgf("Quantizer info saved to %s", path)
	return nil
}

// SaveEdges persists the per-level neighbor link lists.
func (g *Graph) SaveEdges(path string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := gobGraphEdges{Links: make(map[int]map[int][]int, len(g.nodes))}
	for id, n := range g.nodes {
		edges.Links[id] = n.links
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(edges); err != nil {
		return fmt.Errorf("ivfhnsw: encode quantizer edges: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("ivfhnsw: write quantizer edges: %w", err)
	}
	log.Info().Msgf("Quantizer edges saved to %s", path)
	return nil
}

// LoadGraph reconstructs a Graph previously written with SaveInfo/SaveEdges.
func LoadGraph(pathInfo, pathEdges string) (*Graph, error) {
	infoBytes, err := os.ReadFile(pathInfo)
	if err != nil {
		return nil, fmt.Errorf("ivfhnsw: read quantizer info: %w", err)
	}
	var info gobGraphInfo
	if err := gob.NewDecoder(bytes.NewReader(infoBytes)).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: quantizer info: %v", core.ErrCorruptIndex, err)
	}
	edgeBytes, err := os.ReadFile(pathEdges)
	if err != nil {
		return nil, fmt.Errorf("ivfhnsw: read quantizer edges: %w", err)
	}
	var edges gobGraphEdges
	if err := gob.NewDecoder(bytes.NewReader(edgeBytes)).Decode(&edges); err != nil {
		return nil, fmt.Errorf("%w: quantizer edges: %v", core.ErrCorruptIndex, err)
	}

	g := &Graph{
		Dimension:  info.Dimension,
		M:          info.M,
		Ef:         info.Ef,
		entryPoint: info.EntryPoint,
		hasEntry:   info.HasEntry,
		maxLevel:   info.MaxLevel,
		nodes:      make(map[int]*node, len(info.Nodes)),
	}
	for _, n := range info.Nodes {
		links := edges.Links[n.ID]
		if links == nil {
			links = make(map[int][]int)
		}
		g.nodes[n.ID] = &node{id: n.ID, vector: n.Vector, level: n.Level, links: links}
	}
	log.Info().Msgf("Quantizer loaded from %s / %s (%d centroids)", pathInfo, pathEdges, len(g.nodes))
	return g, nil
}
