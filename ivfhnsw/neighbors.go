package ivfhnsw

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/patrikhermansson/ivfhnsw/core"
	"github.com/patrikhermansson/ivfhnsw/quantizer"
)

// buildNeighborTable computes, for every one of the nc coarse centroids, its
// nsubc nearest other centroids (self excluded) via the graph quantizer,
// storing both the neighbor ids and their squared L2 distances ascending.
// This is spec §4.3/§6.3's neighbor-centroid table, built once and shared by
// both training (§4.7) and add (§4.4-§4.6) rather than recomputed per call
// site the way original_source/hnswIndexPQ_new.h's compute_centroid_dists
// duplicates it — one graph query per centroid either way, just cached.
//
// Grounded on the teacher's hnsw/index.go worker-chunk fan-out pattern for
// parallelizing independent per-node work across runtime.NumCPU() goroutines.
func buildNeighborTable(q *quantizer.Graph, nc, nsubc int) ([][]uint32, [][]float32, error) {
	nnIDs := make([][]uint32, nc)
	nnD2 := make([][]float32, nc)

	workers := runtime.NumCPU()
	if workers > nc {
		workers = nc
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	errCh := make(chan error, nc)
	jobs := make(chan int, nc)
	for c := 0; c < nc; c++ {
		jobs <- c
	}
	close(jobs)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				centroid, ok := q.GetCentroid(c)
				if !ok {
					errCh <- fmt.Errorf("%w: missing centroid %d in quantizer", core.ErrCorruptIndex, c)
					continue
				}
				neighbors, err := q.SearchKNNExcludingID(centroid, c, nsubc)
				if err != nil {
					errCh <- fmt.Errorf("neighbor table for centroid %d: %w", c, err)
					continue
				}
				ids := make([]uint32, len(neighbors))
				d2 := make([]float32, len(neighbors))
				for i, n := range neighbors {
					ids[i] = n.ID
					d2[i] = n.Dist
				}
				nnIDs[c] = ids
				nnD2[c] = d2
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return nil, nil, err
		}
	}
	return nnIDs, nnD2, nil
}
