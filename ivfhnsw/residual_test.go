package ivfhnsw

import "testing"

func TestComputeResidualsAndReconstructRoundTrip(t *testing.T) {
	const d = 2
	subcentroids := []float32{1, 1, 5, 5}
	points := []float32{2, 3, 6, 4}
	idxs := []int{0, 1}

	residuals := computeResiduals(points, subcentroids, idxs, 2, d)
	want := []float32{1, 2, 1, -1}
	for i := range want {
		if residuals[i] != want[i] {
			t.Fatalf("residuals = %v, want %v", residuals, want)
		}
	}

	// With no quantization loss, residual + sub-centroid must recover the
	// original point exactly.
	rec := reconstruct(residuals, subcentroids, idxs, 2, d)
	for i := range points {
		if rec[i] != points[i] {
			t.Fatalf("reconstruct = %v, want %v", rec, points)
		}
	}
}

func TestComputeGroupGeometryMissingNeighborFails(t *testing.T) {
	lookup := func(id int) ([]float32, bool) { return nil, false }
	_, err := computeGroupGeometry([]float32{0, 0}, []uint32{7}, []float32{1}, []float32{1, 1}, 1, 2, 1, lookup)
	if err == nil {
		t.Fatal("expected error for missing neighbor centroid")
	}
}
