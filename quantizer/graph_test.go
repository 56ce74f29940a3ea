package quantizer

import (
	"os"
	"path/filepath"
	"testing"
)

func buildTestGraph(t *testing.T, n, d int) (*Graph, [][]float32) {
	t.Helper()
	g := NewGraph(d, 16, 64)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, d)
		for j := 0; j < d; j++ {
			v[j] = float32((i*7+j*3)%97) / 97
		}
		vecs[i] = v
		if err := g.AddPoint(v, i); err != nil {
			t.Fatalf("AddPoint(%d): %v", i, err)
		}
	}
	return g, vecs
}

func TestAddPointRejectsDimensionMismatch(t *testing.T) {
	g := NewGraph(4, 16, 64)
	if err := g.AddPoint([]float32{1, 2, 3}, 0); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestAddPointRejectsDuplicateID(t *testing.T) {
	g := NewGraph(4, 16, 64)
	v := []float32{1, 2, 3, 4}
	if err := g.AddPoint(v, 0); err != nil {
		t.Fatalf("AddPoint: %v", err)
	}
	if err := g.AddPoint(v, 0); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestSearchKNNFindsExactMatch(t *testing.T) {
	g, vecs := buildTestGraph(t, 200, 8)
	for i := 0; i < 200; i += 37 {
		res, err := g.SearchKNN(vecs[i], 1)
		if err != nil {
			t.Fatalf("SearchKNN: %v", err)
		}
		if len(res) != 1 {
			t.Fatalf("expected 1 result, got %d", len(res))
		}
		// buildTestGraph's vectors repeat with period 97 (vecs[i] ==
		// vecs[i-97]), and equal distances tie-break to the lower id.
		if res[0].ID != uint32(i%97) {
			t.Errorf("SearchKNN(vecs[%d], 1) = id %d, want %d", i, res[0].ID, i%97)
		}
		if res[0].Dist != 0 {
			t.Errorf("SearchKNN(vecs[%d], 1) dist = %v, want 0", i, res[0].Dist)
		}
	}
}

func TestSearchKNNAscendingOrder(t *testing.T) {
	g, vecs := buildTestGraph(t, 100, 6)
	res, err := g.SearchKNN(vecs[0], 10)
	if err != nil {
		t.Fatalf("SearchKNN: %v", err)
	}
	for i := 1; i < len(res); i++ {
		if res[i].Dist < res[i-1].Dist {
			t.Fatalf("results not ascending at index %d: %v then %v", i, res[i-1], res[i])
		}
	}
}

func TestSearchKNNExcludingIDDropsSelf(t *testing.T) {
	g, vecs := buildTestGraph(t, 50, 5)
	res, err := g.SearchKNNExcludingID(vecs[10], 10, 5)
	if err != nil {
		t.Fatalf("SearchKNNExcludingID: %v", err)
	}
	if len(res) != 5 {
		t.Fatalf("expected 5 results, got %d", len(res))
	}
	for _, r := range res {
		if r.ID == 10 {
			t.Fatalf("self id 10 present in exclude-self result: %+v", res)
		}
	}
}

func TestGetCentroid(t *testing.T) {
	g, vecs := buildTestGraph(t, 10, 4)
	v, ok := g.GetCentroid(3)
	if !ok {
		t.Fatal("expected centroid 3 to exist")
	}
	for i := range v {
		if v[i] != vecs[3][i] {
			t.Fatalf("GetCentroid(3) = %v, want %v", v, vecs[3])
		}
	}
	if _, ok := g.GetCentroid(999); ok {
		t.Fatal("expected centroid 999 to be absent")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	g, vecs := buildTestGraph(t, 64, 6)
	dir := t.TempDir()
	infoPath := filepath.Join(dir, "info.gob")
	edgesPath := filepath.Join(dir, "edges.gob")
	if err := g.SaveInfo(infoPath); err != nil {
		t.Fatalf("SaveInfo: %v", err)
	}
	if err := g.SaveEdges(edgesPath); err != nil {
		t.Fatalf("SaveEdges: %v", err)
	}
	loaded, err := LoadGraph(infoPath, edgesPath)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	if loaded.Len() != g.Len() {
		t.Fatalf("loaded graph has %d nodes, want %d", loaded.Len(), g.Len())
	}
	for i := 0; i < 64; i += 9 {
		res, err := loaded.SearchKNN(vecs[i], 1)
		if err != nil {
			t.Fatalf("SearchKNN on loaded graph: %v", err)
		}
		if res[0].ID != uint32(i) {
			t.Errorf("loaded SearchKNN(vecs[%d], 1) = id %d, want %d", i, res[0].ID, i)
		}
	}
}

func TestLoadGraphCorruptInfo(t *testing.T) {
	dir := t.TempDir()
	infoPath := filepath.Join(dir, "info.gob")
	edgesPath := filepath.Join(dir, "edges.gob")
	if err := os.WriteFile(infoPath, []byte("not a gob stream"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(edgesPath, []byte("not a gob stream"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGraph(infoPath, edgesPath); err == nil {
		t.Fatal("expected corrupt index error")
	}
}
