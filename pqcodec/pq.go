// Package pqcodec implements the product quantizer the index uses to
// compress residual vectors and reconstructed-vector norms: codebook
// training by k-means, asymmetric encode/decode, and the inner-product
// table search reads its per-query ADC scores from. It is the spec §6.2
// black box — ivfhnsw only calls Train, Encode, Decode, InnerProductTable,
// Trained, CodeSize and the InnerProduct helper, and reads the Ksub/M fields.
//
// Grounded on the teacher's pqivf/index.go (splitVector, trainSubquantizer,
// random-permutation k-means init) generalized to an explicit (d, M, nbits)
// constructor so the same type serves both the residual PQ and the 1-D
// (d=1, M=1) norm PQ — spec §9's "scalar duck-typed composition" design
// note — and on original_source/hnswIndexPQ_new.h's compute_inner_prod_table
// / fstdistfunc for the disT[m*ksub+code[m]] table layout.
package pqcodec

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/patrikhermansson/ivfhnsw/core"
	"github.com/rs/zerolog/log"
)

var seededRand = rand.New(rand.NewSource(core.GetSeed()))
var seededRandMu sync.Mutex

// defaultKMeansIters is the number of Lloyd iterations used to fit each
// sub-quantizer's codebook.
const defaultKMeansIters = 25

// PQ is a product quantizer over vectors of dimension D, split into M
// sub-quantizers each with Ksub = 1<<Nbits codewords. Nbits must be small
// enough that a code fits in a byte (Nbits <= 8), matching spec §3's
// "ksub is a power of two <= 256".
type PQ struct {
	D     int
	M     int
	Nbits int
	Ksub  int

	subDims    []int // dimension of each sub-quantizer (handles D % M != 0)
	subOffsets []int // starting offset of each sub-quantizer within a row

	mu        sync.RWMutex
	codebooks [][][]float32 // [m][code][subDim]
	trained   bool
}

// New constructs an untrained product quantizer. nbits must be in [1, 8].
func New(d, m, nbits int) (*PQ, error) {
	if d <= 0 || m <= 0 {
		return nil, fmt.Errorf("%w: d=%d m=%d must be positive", core.ErrParameterOutOfRange, d, m)
	}
	if m > d {
		return nil, fmt.Errorf("%w: M=%d cannot exceed d=%d", core.ErrParameterOutOfRange, m, d)
	}
	if nbits <= 0 || nbits > 8 {
		return nil, fmt.Errorf("%w: nbits=%d must be in [1,8]", core.ErrParameterOutOfRange, nbits)
	}
	subDims, subOffsets := splitDims(d, m)
	return &PQ{
		D:          d,
		M:          m,
		Nbits:      nbits,
		Ksub:       1 << uint(nbits),
		subDims:    subDims,
		subOffsets: subOffsets,
	}, nil
}

// splitDims partitions d dimensions across m sub-quantizers as evenly as
// possible, with any remainder absorbed by the last sub-quantizer, the way
// the teacher's splitVector does for product-quantization training.
func splitDims(d, m int) ([]int, []int) {
	base := d / m
	rem := d % m
	dims := make([]int, m)
	offsets := make([]int, m)
	offset := 0
	for i := 0; i < m; i++ {
		dims[i] = base
		if i == m-1 {
			dims[i] += rem
		}
		offsets[i] = offset
		offset += dims[i]
	}
	return dims, offsets
}

// CodeSize returns the number of bytes one encoded point occupies (one byte
// per sub-quantizer, since Nbits <= 8).
func (pq *PQ) CodeSize() int { return pq.M }

// subVector returns sub-quantizer m's slice of row i within xs.
func (pq *PQ) subVector(xs []float32, row, m int) []float32 {
	start := row*pq.D + pq.subOffsets[m]
	return xs[start : start+pq.subDims[m]]
}

// Train fits each sub-quantizer's codebook via k-means over the n rows of
// xs (row-major, dimension D). Training an empty pool fails with
// ErrTrainingDataInsufficient per spec §4.7/§4.11.
func (pq *PQ) Train(xs []float32, n int) error {
	if n == 0 {
		return core.ErrTrainingDataInsufficient
	}
	log.Info().Msgf("Training %dx%d product quantizer on %d vectors in %dD", pq.M, pq.Ksub, n, pq.D)

	codebooks := make([][][]float32, pq.M)
	for m := 0; m < pq.M; m++ {
		data := make([][]float32, n)
		for i := 0; i < n; i++ {
			data[i] = pq.subVector(xs, i, m)
		}
		codebooks[m] = trainSubquantizer(data, pq.Ksub, defaultKMeansIters)
	}

	pq.mu.Lock()
	pq.codebooks = codebooks
	pq.trained = true
	pq.mu.Unlock()
	return nil
}

// trainSubquantizer runs Lloyd's algorithm starting from a random
// permutation of the training set, grounded on the teacher's
// trainSubquantizer in pqivf/index.go.
func trainSubquantizer(data [][]float32, k, iterations int) [][]float32 {
	if len(data) < k {
		k = len(data)
	}
	dim := len(data[0])
	centroids := make([][]float32, k)
	seededRandMu.Lock()
	perm := seededRand.Perm(len(data))
	seededRandMu.Unlock()
	for i := 0; i < k; i++ {
		centroids[i] = make([]float32, dim)
		copy(centroids[i], data[perm[i]])
	}
	for iter := 0; iter < iterations; iter++ {
		clusters := make([][][]float32, k)
		for _, point := range data {
			best, _ := nearestCentroid(point, centroids)
			clusters[best] = append(clusters[best], point)
		}
		for i, cluster := range clusters {
			if len(cluster) == 0 {
				continue
			}
			newCentroid := make([]float32, dim)
			for _, point := range cluster {
				for j, v := range point {
					newCentroid[j] += v
				}
			}
			for j := range newCentroid {
				newCentroid[j] /= float32(len(cluster))
			}
			centroids[i] = newCentroid
		}
	}
	return centroids
}

func nearestCentroid(point []float32, centroids [][]float32) (int, float64) {
	best := -1
	bestDist := math.MaxFloat64
	for i, c := range centroids {
		var sum float64
		for j := range point {
			d := float64(point[j] - c[j])
			sum += d * d
		}
		if sum < bestDist {
			bestDist = sum
			best = i
		}
	}
	return best, bestDist
}

// Encode product-quantizes the n rows of xs into n*M codes.
func (pq *PQ) Encode(xs []float32, n int) ([]byte, error) {
	pq.mu.RLock()
	defer pq.mu.RUnlock()
	if !pq.trained {
		return nil, core.ErrPQNotTrained
	}
	codes := make([]byte, n*pq.M)
	for i := 0; i < n; i++ {
		for m := 0; m < pq.M; m++ {
			sub := pq.subVector(xs, i, m)
			best, _ := nearestCentroid(sub, pq.codebooks[m])
			codes[i*pq.M+m] = byte(best)
		}
	}
	return codes, nil
}

// Decode reconstructs n rows (dimension D) from PQ codes.
func (pq *PQ) Decode(codes []byte, n int) ([]float32, error) {
	pq.mu.RLock()
	defer pq.mu.RUnlock()
	if !pq.trained {
		return nil, core.ErrPQNotTrained
	}
	out := make([]float32, n*pq.D)
	for i := 0; i < n; i++ {
		for m := 0; m < pq.M; m++ {
			code := codes[i*pq.M+m]
			centroid := pq.codebooks[m][code]
			dst := out[i*pq.D+pq.subOffsets[m] : i*pq.D+pq.subOffsets[m]+pq.subDims[m]]
			copy(dst, centroid)
		}
	}
	return out, nil
}

// InnerProductTable fills a length M*Ksub table with
// disT[m*Ksub+j] = <x_m, codebook_m[j]>, the layout the search engine's
// asymmetric distance scan in §4.8.1 sums M entries out of per code.
func (pq *PQ) InnerProductTable(x []float32) ([]float32, error) {
	pq.mu.RLock()
	defer pq.mu.RUnlock()
	if !pq.trained {
		return nil, core.ErrPQNotTrained
	}
	table := make([]float32, pq.M*pq.Ksub)
	for m := 0; m < pq.M; m++ {
		start := pq.subOffsets[m]
		xm := x[start : start+pq.subDims[m]]
		for j, centroid := range pq.codebooks[m] {
			var ip float32
			for i := range xm {
				ip += xm[i] * centroid[i]
			}
			table[m*pq.Ksub+j] = ip
		}
	}
	return table, nil
}

// InnerProduct sums M table lookups for one code row, the asymmetric
// distance primitive the search engine calls once per stored point.
func InnerProduct(table []float32, ksub int, code []byte) float32 {
	var sum float32
	for m, c := range code {
		sum += table[m*ksub+int(c)]
	}
	return sum
}

// Trained reports whether Train has completed successfully.
func (pq *PQ) Trained() bool {
	pq.mu.RLock()
	defer pq.mu.RUnlock()
	return pq.trained
}
