package ivfhnsw

import (
	"path/filepath"
	"testing"
)

func TestIndexWriteReadRoundTrip(t *testing.T) {
	idx := buildSmallIndex(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")
	if err := idx.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Read restores lists/neighbor-table/alphas onto a shell that shares the
	// original's quantizer and trained PQ codecs, mirroring how a real
	// deployment reloads an index: the graph and codebooks are persisted
	// separately and reattached before Read.
	idx2 := &Index{
		D:        idx.D,
		NC:       idx.NC,
		NSubC:    idx.NSubC,
		NProbe:   idx.NProbe,
		MaxCodes: idx.MaxCodes,

		Quantizer:  idx.Quantizer,
		ResidualPQ: idx.ResidualPQ,
		NormPQ:     idx.NormPQ,
	}
	if err := idx2.Read(path); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if idx2.Len() != idx.Len() {
		t.Fatalf("loaded Len() = %d, want %d", idx2.Len(), idx.Len())
	}

	query := make([]float32, idx.D)
	for j := 0; j < idx.D; j++ {
		query[j] = float32(2*10 + j)
	}
	want, err := idx.Search(query, 3)
	if err != nil {
		t.Fatal(err)
	}
	got, err := idx2.Search(query, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("loaded search returned %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Dist != want[i].Dist {
			t.Errorf("result %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestIndexReadRejectsDimensionMismatch(t *testing.T) {
	idx := buildSmallIndex(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "index.bin")
	if err := idx.Write(path); err != nil {
		t.Fatal(err)
	}

	other, err := New(idx.D+1, idx.NC, idx.NSubC, 2, 4, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := other.Read(path); err == nil {
		t.Fatal("expected corrupt index error on dimension mismatch")
	}
}
