// Package vecmath implements the elementwise vector kernels the rest of the
// index is built on: subtraction, scaled linear combination, squared L2
// distance, inner product, and batched L2 norms. The teacher's distance
// kernels (core/distance.go, core/vector_ops.go) call into cgo/AVX
// intrinsics backed by headers that are not part of this tree; vecmath
// reimplements the same five operations in portable Go, one function per
// operation, in the teacher's style.
package vecmath

// Sub computes dst[i] = a[i] - b[i] for every i, storing into dst. a, b, and
// dst must have equal length.
func Sub(dst, a, b []float32) {
	for i := range a {
		dst[i] = a[i] - b[i]
	}
}

// Lin computes dst[i] = alpha*a[i] + b[i], the affine combination used to
// build a sub-centroid from a centroid and a neighbor direction.
func Lin(dst, a, b []float32, alpha float32) {
	for i := range a {
		dst[i] = alpha*a[i] + b[i]
	}
}

// L2Sqr returns the squared Euclidean distance between a and b.
func L2Sqr(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// IP returns the inner product (dot product) of a and b.
func IP(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// BatchL2Norms returns ‖x_i‖² for each of the n rows of dimension d packed
// row-major in xs.
func BatchL2Norms(xs []float32, n, d int) []float32 {
	norms := make([]float32, n)
	for i := 0; i < n; i++ {
		row := xs[i*d : (i+1)*d]
		var sum float32
		for _, v := range row {
			sum += v * v
		}
		norms[i] = sum
	}
	return norms
}
