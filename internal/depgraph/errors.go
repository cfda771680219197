package depgraph

import "errors"

// Error classes. Every error returned by the resolver wraps exactly one of them.
var (
	// ErrValidation is returned when the request itself is malformed or out of range.
	ErrValidation = errors.New("invalid dependency request")

	// ErrNotFound is returned when a requested package is absent from the platform snapshot
	// or from the computed dependency set.
	ErrNotFound = errors.New("package not found")

	// ErrDataFetch is returned when a batch lookup against the facts store fails.
	ErrDataFetch = errors.New("failed to load dependency data")
)
