package domain

import (
	"context"
	"fmt"
	"math"
)

// VectorDim is the embedding dimensionality of the CLIP model in use.
// Every vector crossing a layer boundary is validated against it.
const VectorDim = 768

// TextEmbedder vectorizes query text.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string) (EmbeddingResult, error)
}

// ImageEmbedder vectorizes reference images.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries an embedding vector plus provider usage data.
// ColorHint is non-nil when the provider also classified the reference
// image as colorful (true) or black-and-gray (false).
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
	ColorHint    *bool
}

// ValidateVector rejects vectors with the wrong dimensionality or
// non-finite components. Fail-fast: a bad vector invalidates the whole
// query, it is never truncated or padded.
func ValidateVector(vec []float32) error {
	if len(vec) != VectorDim {
		return fmt.Errorf("got %d dimensions, want %d: %w", len(vec), VectorDim, ErrVectorDimMismatch)
	}
	for i, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("component %d: %w", i, ErrVectorNotFinite)
		}
	}
	return nil
}

// CombineHybrid mixes an image embedding with a text modifier embedding,
// weighted by textWeight in [0,1], then renormalizes to unit length.
// Both inputs must already be validated.
func CombineHybrid(image, text []float32, textWeight float64) ([]float32, error) {
	if len(image) != len(text) {
		return nil, fmt.Errorf("image dim %d vs text dim %d: %w", len(image), len(text), ErrVectorDimMismatch)
	}
	if textWeight < 0 || textWeight > 1 {
		return nil, fmt.Errorf("text weight %v out of [0,1]: %w", textWeight, ErrValidation)
	}

	combined := make([]float32, len(image))
	var norm float64
	for i := range image {
		v := (1-textWeight)*float64(image[i]) + textWeight*float64(text[i])
		combined[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return nil, fmt.Errorf("combined vector is zero: %w", ErrVectorNotFinite)
	}
	for i := range combined {
		combined[i] = float32(float64(combined[i]) / norm)
	}
	return combined, nil
}

// Normalize scales a vector to unit L2 length in place.
func Normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}
