package ivfhnsw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/patrikhermansson/ivfhnsw/core"
)

// Group is one coarse centroid's slice of the base dataset: a (possibly
// empty) batch of raw vectors paired with their external ids, read in
// lock-step from the groups and ids streams (spec §4.2, §6.4).
type Group struct {
	Vectors []float32 // size*d, row-major
	IDs     []uint32  // size
}

// Size returns the number of points in the group.
func (g Group) Size() int { return len(g.IDs) }

// GroupReader consumes the paired groups/ids binary streams in lock-step:
// the c-th group read corresponds to coarse centroid c. Grounded directly on
// spec §4.2/§6.4 — the teacher has no equivalent on-disk format, so this is
// built from scratch in the teacher's encoding/binary + bufio.Reader idiom
// (used elsewhere in this repo for the index's own serializer).
type GroupReader struct {
	groups *bufio.Reader
	ids    *bufio.Reader
	gf, idf *os.File
	d       int
}

// NewGroupReader opens the groups file at groupsPath and the ids file at
// idsPath for paired sequential reading of vectors of dimension d.
func NewGroupReader(groupsPath, idsPath string, d int) (*GroupReader, error) {
	gf, err := os.Open(groupsPath)
	if err != nil {
		return nil, fmt.Errorf("ivfhnsw: open groups file: %w", err)
	}
	idf, err := os.Open(idsPath)
	if err != nil {
		gf.Close()
		return nil, fmt.Errorf("ivfhnsw: open ids file: %w", err)
	}
	return &GroupReader{
		groups: bufio.NewReader(gf),
		ids:    bufio.NewReader(idf),
		gf:     gf,
		idf:    idf,
		d:      d,
	}, nil
}

// ReadGroup reads the next (size, size*d floats) / (size, size uint32 ids)
// pair from the two streams. A group may be empty (size=0); it is returned
// unchanged rather than skipped. Truncation in either stream fails with
// ErrCorruptInput.
func (r *GroupReader) ReadGroup() (Group, error) {
	size, err := readI32(r.groups)
	if err != nil {
		return Group{}, fmt.Errorf("%w: groups stream: %v", core.ErrCorruptInput, err)
	}
	idsSize, err := readI32(r.ids)
	if err != nil {
		return Group{}, fmt.Errorf("%w: ids stream: %v", core.ErrCorruptInput, err)
	}
	if size != idsSize {
		return Group{}, fmt.Errorf("%w: groups/ids size mismatch: %d vs %d", core.ErrCorruptInput, size, idsSize)
	}
	if size < 0 {
		return Group{}, fmt.Errorf("%w: negative group size %d", core.ErrCorruptInput, size)
	}

	vectors := make([]float32, int(size)*r.d)
	if err := binary.Read(r.groups, binary.LittleEndian, vectors); err != nil {
		return Group{}, fmt.Errorf("%w: truncated vector payload: %v", core.ErrCorruptInput, err)
	}
	ids := make([]uint32, size)
	if err := binary.Read(r.ids, binary.LittleEndian, ids); err != nil {
		return Group{}, fmt.Errorf("%w: truncated id payload: %v", core.ErrCorruptInput, err)
	}
	return Group{Vectors: vectors, IDs: ids}, nil
}

// Close releases the underlying file handles.
func (r *GroupReader) Close() error {
	err1 := r.gf.Close()
	err2 := r.idf.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func readI32(r io.Reader) (int32, error) {
	var v int32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

// ReadCentroidTrainingFile reads a flat float32[nc*d] centroid-training file
// (spec §6.4) and returns it as nc row-major vectors of dimension d.
func ReadCentroidTrainingFile(path string, nc, d int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ivfhnsw: open centroid training file: %w", err)
	}
	defer f.Close()
	data := make([]float32, nc*d)
	if err := binary.Read(bufio.NewReader(f), binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("%w: centroid training file: %v", core.ErrCorruptInput, err)
	}
	return data, nil
}
