package domain

import "errors"

var (
	// ErrQueryNotFound signals a missing persisted query.
	ErrQueryNotFound = errors.New("query not found")
	// ErrVectorDimMismatch signals a query embedding with the wrong dimensionality.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrVectorNotFinite signals an embedding containing NaN or Inf components.
	ErrVectorNotFinite = errors.New("vector contains non-finite values")
	// ErrValidation signals invalid caller input (location codes, pagination, query text).
	ErrValidation = errors.New("validation failed")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrClassifierUnavailable signals a style classifier failure.
	ErrClassifierUnavailable = errors.New("style classifier unavailable")
	// ErrSearchTimeout signals that the search wall-clock budget expired.
	ErrSearchTimeout = errors.New("search timed out")
)
