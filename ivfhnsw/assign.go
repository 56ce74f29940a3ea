package ivfhnsw

import "github.com/patrikhermansson/ivfhnsw/vecmath"

// groupGeometry is the per-group fitted structure shared by the add path
// (residual.go) and the training pipelines (train.go): the group's alpha,
// its nsubc materialized sub-centroids, and each point's assigned
// sub-centroid index.
type groupGeometry struct {
	alpha        float32
	subcentroids []float32 // nsubc*d, row-major
	subIdxs      []int     // groupsize
}

// computeSubcentroids materializes S(c,s) = centroid + alpha*v_s for every
// neighbor direction s, once per group (spec §4.5).
func computeSubcentroids(centroidVectors, centroid []float32, alpha float32, d, nsubc int) []float32 {
	out := make([]float32, nsubc*d)
	for s := 0; s < nsubc; s++ {
		vecmath.Lin(out[s*d:(s+1)*d], centroidVectors[s*d:(s+1)*d], centroid, alpha)
	}
	return out
}

// computeSubcentroidIdxs assigns each of groupsize points to its nearest
// sub-centroid by squared L2 distance, breaking ties deterministically
// toward the smallest index (the natural result of a strict "<" scan, spec
// §4.5).
func computeSubcentroidIdxs(subcentroids, points []float32, groupsize, d, nsubc int) []int {
	idxs := make([]int, groupsize)
	for i := 0; i < groupsize; i++ {
		point := points[i*d : (i+1)*d]
		best := 0
		bestDist := vecmath.L2Sqr(point, subcentroids[0:d])
		for s := 1; s < nsubc; s++ {
			dist := vecmath.L2Sqr(point, subcentroids[s*d:(s+1)*d])
			if dist < bestDist {
				bestDist = dist
				best = s
			}
		}
		idxs[i] = best
	}
	return idxs
}
