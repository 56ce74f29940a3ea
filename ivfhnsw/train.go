package ivfhnsw

import (
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/ivfhnsw/core"
	"github.com/patrikhermansson/ivfhnsw/vecmath"
)

// trainingPoolCap is the row count at which residual/norm accumulation stops
// and the pool is handed to the product quantizer (the group that crosses it
// is kept whole, so the pool may slightly exceed it), matching the 65536-row cap
// original_source/hnswIndexPQ_new.h's train_residual_pq/train_norm_pq apply
// so training cost stays roughly constant regardless of input size (spec
// §4.7).
const trainingPoolCap = 65536

// assignNearest maps each of n training vectors to its nearest coarse
// centroid via the graph quantizer, fanned out across worker goroutines the
// way the teacher's hnsw package parallelizes independent per-query work.
func (idx *Index) assignNearest(x []float32, n int) ([]int, error) {
	assigned := make([]int, n)
	errs := make([]error, n)

	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				v := x[i*idx.D : (i+1)*idx.D]
				res, err := idx.Quantizer.SearchKNN(v, 1)
				if err != nil {
					errs[i] = err
					continue
				}
				assigned[i] = int(res[0].ID)
			}
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return assigned, nil
}

// groupPointsByCentroid buckets the n rows of x (dimension d) by their
// assigned coarse centroid id.
func groupPointsByCentroid(x []float32, assigned []int, d, n int) map[int][]float32 {
	groups := make(map[int][]float32)
	for i := 0; i < n; i++ {
		c := assigned[i]
		groups[c] = append(groups[c], x[i*d:(i+1)*d]...)
	}
	return groups
}

// groupGeometryFor computes one centroid's fitted geometry against the
// index's shared neighbor-centroid table, the entry point both TrainResidualPQ
// and TrainNormPQ use for the α/S(c,s) fit described in residual.go.
func (idx *Index) groupGeometryFor(centroidID int, points []float32, groupsize int) (groupGeometry, error) {
	centroid, ok := idx.Quantizer.GetCentroid(centroidID)
	if !ok {
		return groupGeometry{}, core.ErrCorruptIndex
	}
	return computeGroupGeometry(centroid, idx.nnIDs[centroidID], idx.nnD2[centroidID], points, groupsize, idx.D, idx.NSubC, idx.Quantizer.GetCentroid)
}

// TrainResidualPQ assigns the n training vectors in x to their nearest
// coarse centroid, fits each group's sub-centroid geometry, accumulates
// residuals until the pool reaches trainingPoolCap rows, and trains the residual product
// quantizer on the pool (spec §4.7).
func (idx *Index) TrainResidualPQ(x []float32, n int) error {
	if n == 0 {
		return core.ErrTrainingDataInsufficient
	}
	if err := idx.ensureNeighborTable(); err != nil {
		return err
	}
	assigned, err := idx.assignNearest(x, n)
	if err != nil {
		return err
	}
	groups := groupPointsByCentroid(x, assigned, idx.D, n)

	pool := make([]float32, 0, trainingPoolCap*idx.D)
	for centroidID, points := range groups {
		groupsize := len(points) / idx.D
		geom, err := idx.groupGeometryFor(centroidID, points, groupsize)
		if err != nil {
			return err
		}
		residuals := computeResiduals(points, geom.subcentroids, geom.subIdxs, groupsize, idx.D)
		pool = append(pool, residuals...)
		if len(pool)/idx.D >= trainingPoolCap {
			break
		}
	}
	log.Info().Int("rows", len(pool)/idx.D).Msg("training residual product quantizer")
	return idx.ResidualPQ.Train(pool, len(pool)/idx.D)
}

// TrainNormPQ requires a trained residual PQ, reconstructs approximate
// vectors for each training group, computes their norms, and trains the
// (1-dimensional) norm product quantizer on the resulting pool (spec §4.7).
func (idx *Index) TrainNormPQ(x []float32, n int) error {
	if n == 0 {
		return core.ErrTrainingDataInsufficient
	}
	if !idx.ResidualPQ.Trained() {
		return core.ErrPQNotTrained
	}
	if err := idx.ensureNeighborTable(); err != nil {
		return err
	}
	assigned, err := idx.assignNearest(x, n)
	if err != nil {
		return err
	}
	groups := groupPointsByCentroid(x, assigned, idx.D, n)

	pool := make([]float32, 0, trainingPoolCap)
	for centroidID, points := range groups {
		groupsize := len(points) / idx.D
		geom, err := idx.groupGeometryFor(centroidID, points, groupsize)
		if err != nil {
			return err
		}
		residuals := computeResiduals(points, geom.subcentroids, geom.subIdxs, groupsize, idx.D)
		codes, err := idx.ResidualPQ.Encode(residuals, groupsize)
		if err != nil {
			return err
		}
		decoded, err := idx.ResidualPQ.Decode(codes, groupsize)
		if err != nil {
			return err
		}
		reconstructed := reconstruct(decoded, geom.subcentroids, geom.subIdxs, groupsize, idx.D)
		norms := vecmath.BatchL2Norms(reconstructed, groupsize, idx.D)
		pool = append(pool, norms...)
		if len(pool) >= trainingPoolCap {
			break
		}
	}
	log.Info().Int("rows", len(pool)).Msg("training norm product quantizer")
	return idx.NormPQ.Train(pool, len(pool))
}
