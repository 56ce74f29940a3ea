package ivfhnsw

import "testing"

// A single point exactly on the first neighbor's ray should fit alpha=0.5
// for that direction and prefer it over a direction that requires a larger
// residual.
func TestComputeAlphaPicksBestDirection(t *testing.T) {
	const d = 2
	centroid := []float32{0, 0}
	// Two neighbor directions: (2,0) and (0,2).
	centroidVectors := []float32{2, 0, 0, 2}
	norms := []float32{4, 4}
	// Point (1,0) sits exactly halfway along the first direction.
	points := []float32{1, 0}

	alpha := computeAlpha(centroidVectors, points, centroid, norms, 1, d, 2)
	if alpha < 0.49 || alpha > 0.51 {
		t.Fatalf("alpha = %v, want ~0.5", alpha)
	}
}

func TestComputeAlphaTiesResolveToPositive(t *testing.T) {
	const d = 1
	centroid := []float32{0}
	centroidVectors := []float32{1, -1}
	norms := []float32{1, 1}
	// One point whose best alpha is positive, one whose best alpha is
	// negative: counterPositive == counterNegative == 1, so ties resolve
	// to the positive bucket.
	points := []float32{1, -1}

	alpha := computeAlpha(centroidVectors, points, centroid, norms, 2, d, 2)
	if alpha <= 0 {
		t.Fatalf("alpha = %v, want positive (ties resolve positive)", alpha)
	}
}

func TestComputeAlphaSkipsZeroNormDirection(t *testing.T) {
	const d = 1
	centroid := []float32{0}
	// First direction is degenerate (duplicate centroid, zero vector).
	centroidVectors := []float32{0, 1}
	norms := []float32{0, 1}
	points := []float32{1}

	alpha := computeAlpha(centroidVectors, points, centroid, norms, 1, d, 2)
	if alpha < 0.99 || alpha > 1.01 {
		t.Fatalf("alpha = %v, want ~1 (zero-norm direction skipped)", alpha)
	}
}

func TestComputeAlphaEmptyGroupReturnsZero(t *testing.T) {
	alpha := computeAlpha(nil, nil, []float32{0}, nil, 0, 1, 0)
	if alpha != 0 {
		t.Fatalf("alpha = %v, want 0 for empty group", alpha)
	}
}
