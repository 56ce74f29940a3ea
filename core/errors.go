package core

import "errors"

// Sentinel errors for the index's failure taxonomy. Callers compare against
// these with errors.Is; construction code wraps them with fmt.Errorf("%w: ...")
// to attach the offending value or component.
var (
	// ErrCorruptInput is returned when a group/id input stream ends early or
	// carries an inconsistent size prefix.
	ErrCorruptInput = errors.New("ivfhnsw: corrupt input stream")

	// ErrCorruptIndex is returned when a serialized index fails a size or
	// EOF check during Read.
	ErrCorruptIndex = errors.New("ivfhnsw: corrupt index file")

	// ErrInsufficientCentroids is returned when the graph quantizer cannot
	// supply nsubc+1 neighbors for a coarse centroid.
	ErrInsufficientCentroids = errors.New("ivfhnsw: quantizer returned fewer than nsubc+1 centroids")

	// ErrPQNotTrained is returned when encode/decode/search is attempted
	// before the relevant product quantizer has been trained.
	ErrPQNotTrained = errors.New("ivfhnsw: product quantizer not trained")

	// ErrTrainingDataInsufficient is returned when the training pool for a
	// product quantizer is empty.
	ErrTrainingDataInsufficient = errors.New("ivfhnsw: insufficient training data")

	// ErrDimensionMismatch is returned when a vector's length does not
	// match the index dimension d.
	ErrDimensionMismatch = errors.New("ivfhnsw: dimension mismatch")

	// ErrParameterOutOfRange is returned for invalid query parameters, such
	// as k=0 or k exceeding max_codes.
	ErrParameterOutOfRange = errors.New("ivfhnsw: parameter out of range")
)
