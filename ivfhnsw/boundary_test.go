package ivfhnsw

import "testing"

// TestBoundaryS1ExactMatchRecoversOwnID exercises boundary scenario S1: two
// well-separated centroids, two points per group, and a query that exactly
// matches one stored point. With nprobe=1 the coarse probe only visits the
// query's own centroid, so ranking within that single (c, s) list depends
// only on the residual/norm PQ scoring — and with as few training points as
// sub-centroids, k-means training is lossless, so the nearer point must win.
func TestBoundaryS1ExactMatchRecoversOwnID(t *testing.T) {
	const d = 4
	idx, err := New(d, 2, 1, 2, 2, 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	centroids := []float32{0, 0, 0, 0, 10, 10, 10, 10}
	if err := idx.BuildQuantizer(centroids, 2); err != nil {
		t.Fatal(err)
	}

	points := [][]float32{
		{0, 0, 0, 0},
		{0, 1, 0, 0},
		{10, 10, 10, 10},
		{10, 10, 10, 11},
	}
	var trainX []float32
	for _, p := range points {
		trainX = append(trainX, p...)
	}
	if err := idx.TrainResidualPQ(trainX, len(points)); err != nil {
		t.Fatal(err)
	}
	if err := idx.TrainNormPQ(trainX, len(points)); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	groups := [][]float32{
		append(append([]float32{}, points[0]...), points[1]...),
		append(append([]float32{}, points[2]...), points[3]...),
	}
	ids := [][]uint32{{0, 1}, {2, 3}}
	groupsPath, idsPath := writeGroupFiles(t, dir, groups, ids, d)

	if _, err := idx.Add(groupsPath, idsPath); err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 4 {
		t.Fatalf("idx.Len() = %d, want 4", idx.Len())
	}

	res, err := idx.Search([]float32{0, 0, 0, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 {
		t.Fatalf("len(res) = %d, want 1", len(res))
	}
	if res[0].ID != 0 {
		t.Errorf("Search returned id %d, want 0 (the exact match)", res[0].ID)
	}
}

// TestBoundaryS2EmptyGroupSkipsCleanly exercises boundary scenario S2: a
// coarse centroid with no assigned points must end up with alpha=0 and
// empty lists, and searching must skip it without error when probed.
func TestBoundaryS2EmptyGroupSkipsCleanly(t *testing.T) {
	const d = 4
	idx, err := New(d, 2, 1, 2, 2, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	centroids := []float32{0, 0, 0, 0, 10, 10, 10, 10}
	if err := idx.BuildQuantizer(centroids, 2); err != nil {
		t.Fatal(err)
	}

	points := [][]float32{{10, 10, 10, 10}, {10, 10, 10, 11}}
	var trainX []float32
	for _, p := range points {
		trainX = append(trainX, p...)
	}
	if err := idx.TrainResidualPQ(trainX, len(points)); err != nil {
		t.Fatal(err)
	}
	if err := idx.TrainNormPQ(trainX, len(points)); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	groups := [][]float32{{}, append(append([]float32{}, points[0]...), points[1]...)}
	ids := [][]uint32{{}, {0, 1}}
	groupsPath, idsPath := writeGroupFiles(t, dir, groups, ids, d)

	if _, err := idx.Add(groupsPath, idsPath); err != nil {
		t.Fatal(err)
	}
	if idx.alphas[0] != 0 {
		t.Errorf("alpha[0] = %v, want 0 for empty group", idx.alphas[0])
	}
	for s := 0; s < idx.NSubC; s++ {
		if len(idx.lists[0][s].IDs) != 0 {
			t.Errorf("lists[0][%d] not empty: %+v", s, idx.lists[0][s])
		}
	}

	res, err := idx.Search([]float32{10, 10, 10, 10}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].ID != 0 {
		t.Errorf("Search = %+v, want a single result with id 0", res)
	}
}
