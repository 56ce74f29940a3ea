package ivfhnsw

import (
	"math"

	"github.com/patrikhermansson/ivfhnsw/vecmath"
)

// computeAlpha fits a single scalar alpha for one coarse group: for every
// point, it evaluates the candidate sub-centroids S_s = centroid + alpha_s *
// v_s (v_s = neighbor_s - centroid) by the alpha that puts the point exactly
// on that ray, picks the neighbor direction s minimizing the resulting
// residual norm, then buckets that point's alpha_s into a positive or
// negative running average. The group's alpha is whichever bucket has more
// votes; ties resolve to the positive bucket (spec §4.4).
//
// centroidVectors is nsubc rows of dimension d (v_s). centroidVectorNormsL2Sqr
// is indexed by s directly — original_source/hnswIndexPQ_new.h indexes this
// array by s*d, a stride bug that silently reads garbage past the first few
// neighbors; this implementation uses the corrected per-neighbor index.
func computeAlpha(centroidVectors, points, centroid, centroidVectorNormsL2Sqr []float32, groupsize, d, nsubc int) float32 {
	if groupsize == 0 {
		return 0
	}

	var positiveSum, negativeSum float32
	var counterPositive, counterNegative int

	u := make([]float32, d)
	for i := 0; i < groupsize; i++ {
		point := points[i*d : (i+1)*d]
		vecmath.Sub(u, point, centroid)

		bestDist := float32(math.MaxFloat32)
		var bestAlpha float32
		found := false
		for s := 0; s < nsubc; s++ {
			norm := centroidVectorNormsL2Sqr[s]
			if norm == 0 {
				// Duplicate or coincident centroid: this direction carries no
				// information, skip it rather than divide by zero.
				continue
			}
			vs := centroidVectors[s*d : (s+1)*d]
			alphaS := vecmath.IP(vs, u) / norm

			var dist float32
			for j := 0; j < d; j++ {
				diff := u[j] - alphaS*vs[j]
				dist += diff * diff
			}
			if dist < bestDist {
				bestDist = dist
				bestAlpha = alphaS
				found = true
			}
		}
		if !found {
			continue
		}
		if bestAlpha >= 0 {
			positiveSum += bestAlpha
			counterPositive++
		} else {
			negativeSum += bestAlpha
			counterNegative++
		}
	}

	var positiveAlpha, negativeAlpha float32
	if counterPositive > 0 {
		positiveAlpha = positiveSum / float32(counterPositive)
	}
	if counterNegative > 0 {
		negativeAlpha = negativeSum / float32(counterNegative)
	}

	if counterPositive >= counterNegative {
		return positiveAlpha
	}
	return negativeAlpha
}
