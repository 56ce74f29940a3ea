package ivfhnsw

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/patrikhermansson/ivfhnsw/core"
)

// Write serializes the inverted lists, neighbor-centroid table, and alphas
// to path in the exact little-endian layout of spec §4.9:
//
//	u64 d, u64 nc, u64 nsubc
//	for c in [0,nc): for s in [0,nsubc): u32 n; u32[n] ids
//	for c in [0,nc): for s in [0,nsubc): u32 n; u8[n]  residual codes
//	for c in [0,nc): for s in [0,nsubc): u32 n; u8[n]  norm codes
//	for c in [0,nc):                     u32 nsubc; u32[nsubc] nn_ids
//	f32[nc] alphas
//
// The quantizer graph and trained PQ codebooks are not part of this file;
// they are persisted separately via quantizer.Graph.SaveInfo/SaveEdges and
// would need their own PQ serializer, matching the teacher's convention of
// one save path per component rather than a single monolithic blob.
func (idx *Index) Write(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ivfhnsw: create index file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	if err := writeU64(w, uint64(idx.D)); err != nil {
		return err
	}
	if err := writeU64(w, uint64(idx.NC)); err != nil {
		return err
	}
	if err := writeU64(w, uint64(idx.NSubC)); err != nil {
		return err
	}

	for c := 0; c < idx.NC; c++ {
		for s := 0; s < idx.NSubC; s++ {
			ids := idx.lists[c][s].IDs
			if err := writeU32(w, uint32(len(ids))); err != nil {
				return err
			}
			if err := binary.Write(w, binary.LittleEndian, ids); err != nil {
				return err
			}
		}
	}
	for c := 0; c < idx.NC; c++ {
		for s := 0; s < idx.NSubC; s++ {
			codes := idx.lists[c][s].Codes
			if err := writeU32(w, uint32(len(codes))); err != nil {
				return err
			}
			if _, err := w.Write(codes); err != nil {
				return err
			}
		}
	}
	for c := 0; c < idx.NC; c++ {
		for s := 0; s < idx.NSubC; s++ {
			ncodes := idx.lists[c][s].NCodes
			if err := writeU32(w, uint32(len(ncodes))); err != nil {
				return err
			}
			if _, err := w.Write(ncodes); err != nil {
				return err
			}
		}
	}
	for c := 0; c < idx.NC; c++ {
		if err := writeU32(w, uint32(len(idx.nnIDs[c]))); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, idx.nnIDs[c]); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, idx.alphas); err != nil {
		return err
	}

	return w.Flush()
}

// Read restores the inverted lists, neighbor-centroid table, and alphas
// from path, written previously by Write. The quantizer and PQ codebooks
// must be attached separately (by setting the Quantizer, ResidualPQ and
// NormPQ fields) before Search is usable. Any truncation or dimension
// mismatch fails with ErrCorruptIndex.
func (idx *Index) Read(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ivfhnsw: open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	d, err := readU64(r)
	if err != nil {
		return err
	}
	nc, err := readU64(r)
	if err != nil {
		return err
	}
	nsubc, err := readU64(r)
	if err != nil {
		return err
	}
	if int(d) != idx.D {
		return fmt.Errorf("%w: index file has d=%d, expected %d", core.ErrCorruptIndex, d, idx.D)
	}

	idx.D = int(d)
	idx.NC = int(nc)
	idx.NSubC = int(nsubc)

	lists := make([][]InvertedList, idx.NC)
	for c := 0; c < idx.NC; c++ {
		lists[c] = make([]InvertedList, idx.NSubC)
		for s := 0; s < idx.NSubC; s++ {
			n, err := readU32(r)
			if err != nil {
				return err
			}
			ids := make([]uint32, n)
			if err := binary.Read(r, binary.LittleEndian, ids); err != nil {
				return fmt.Errorf("%w: truncated id list at (%d,%d): %v", core.ErrCorruptIndex, c, s, err)
			}
			lists[c][s].IDs = ids
		}
	}
	for c := 0; c < idx.NC; c++ {
		for s := 0; s < idx.NSubC; s++ {
			n, err := readU32(r)
			if err != nil {
				return err
			}
			codes := make([]byte, n)
			if _, err := io.ReadFull(r, codes); err != nil {
				return fmt.Errorf("%w: truncated codes at (%d,%d): %v", core.ErrCorruptIndex, c, s, err)
			}
			if len(codes) != len(lists[c][s].IDs)*idx.ResidualPQ.CodeSize() {
				return fmt.Errorf("%w: residual code count mismatch at (%d,%d)", core.ErrCorruptIndex, c, s)
			}
			lists[c][s].Codes = codes
		}
	}
	for c := 0; c < idx.NC; c++ {
		for s := 0; s < idx.NSubC; s++ {
			n, err := readU32(r)
			if err != nil {
				return err
			}
			ncodes := make([]byte, n)
			if _, err := io.ReadFull(r, ncodes); err != nil {
				return fmt.Errorf("%w: truncated norm codes at (%d,%d): %v", core.ErrCorruptIndex, c, s, err)
			}
			if len(ncodes) != len(lists[c][s].IDs)*idx.NormPQ.CodeSize() {
				return fmt.Errorf("%w: norm code count mismatch at (%d,%d)", core.ErrCorruptIndex, c, s)
			}
			lists[c][s].NCodes = ncodes
		}
	}

	nnIDs := make([][]uint32, idx.NC)
	for c := 0; c < idx.NC; c++ {
		n, err := readU32(r)
		if err != nil {
			return err
		}
		ids := make([]uint32, n)
		if err := binary.Read(r, binary.LittleEndian, ids); err != nil {
			return fmt.Errorf("%w: truncated neighbor table at centroid %d: %v", core.ErrCorruptIndex, c, err)
		}
		nnIDs[c] = ids
	}
	alphas := make([]float32, idx.NC)
	if err := binary.Read(r, binary.LittleEndian, alphas); err != nil {
		return fmt.Errorf("%w: truncated alphas: %v", core.ErrCorruptIndex, err)
	}

	idx.lists = lists
	idx.nnIDs = nnIDs
	idx.alphas = alphas
	idx.built = true
	return nil
}

func writeU64(w io.Writer, v uint64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readU64(r io.Reader) (uint64, error) {
	var v uint64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrCorruptIndex, err)
	}
	return v, nil
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("%w: %v", core.ErrCorruptIndex, err)
	}
	return v, nil
}
