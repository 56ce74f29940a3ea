package ivfhnsw

import (
	"fmt"

	"github.com/patrikhermansson/ivfhnsw/core"
	"github.com/patrikhermansson/ivfhnsw/vecmath"
)

// centroidLookup resolves a graph quantizer node id to its vector; both
// Index.Add and the training pipelines pass quantizer.Graph.GetCentroid.
type centroidLookup func(id int) ([]float32, bool)

// computeGroupGeometry derives one coarse group's full fitted structure:
// neighbor-centroid direction vectors, alpha, sub-centroids, and per-point
// sub-centroid assignment. Shared by Index.Add (residual.go/index.go) and
// the PQ training pipelines (train.go) so the α/S(c,s) fit is defined in
// exactly one place (spec §4.4-§4.5).
func computeGroupGeometry(centroid []float32, nnIDs []uint32, nnD2 []float32, points []float32, groupsize, d, nsubc int, lookup centroidLookup) (groupGeometry, error) {
	centroidVectors := make([]float32, nsubc*d)
	for s := 0; s < nsubc; s++ {
		neighbor, ok := lookup(int(nnIDs[s]))
		if !ok {
			return groupGeometry{}, fmt.Errorf("%w: missing neighbor centroid %d", core.ErrCorruptIndex, nnIDs[s])
		}
		vecmath.Sub(centroidVectors[s*d:(s+1)*d], neighbor, centroid)
	}

	alpha := computeAlpha(centroidVectors, points, centroid, nnD2, groupsize, d, nsubc)
	subcentroids := computeSubcentroids(centroidVectors, centroid, alpha, d, nsubc)
	subIdxs := computeSubcentroidIdxs(subcentroids, points, groupsize, d, nsubc)

	return groupGeometry{alpha: alpha, subcentroids: subcentroids, subIdxs: subIdxs}, nil
}

// computeResiduals subtracts each point's assigned sub-centroid, the vector
// the residual PQ is trained and queried against (spec §4.6).
func computeResiduals(points []float32, subcentroids []float32, subIdxs []int, groupsize, d int) []float32 {
	out := make([]float32, groupsize*d)
	for i := 0; i < groupsize; i++ {
		s := subIdxs[i]
		vecmath.Sub(out[i*d:(i+1)*d], points[i*d:(i+1)*d], subcentroids[s*d:(s+1)*d])
	}
	return out
}

// reconstruct adds each point's decoded residual back onto its assigned
// sub-centroid, recovering the approximate stored vector the norm PQ is
// fitted against (spec §4.6, §4.7).
func reconstruct(decodedResiduals []float32, subcentroids []float32, subIdxs []int, groupsize, d int) []float32 {
	out := make([]float32, groupsize*d)
	for i := 0; i < groupsize; i++ {
		s := subIdxs[i]
		vecmath.Lin(out[i*d:(i+1)*d], decodedResiduals[i*d:(i+1)*d], subcentroids[s*d:(s+1)*d], 1)
	}
	return out
}
