// Package query defines one validated search request: the embedding,
// the detected styles, and the color intent of the reference image.
package query

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/style"
)

// Text query length limits.
const (
	MinTextLength = 3
	MaxTextLength = 200
)

// ColorIntent is the tri-state color flag of a query: the reference is
// colorful, black-and-gray, or unclassified.
type ColorIntent string

const (
	// ColorUnknown means no color signal; the color boost is skipped.
	ColorUnknown ColorIntent = ""
	// ColorFull means the reference is colorful.
	ColorFull ColorIntent = "color"
	// ColorBlackGray means the reference is black-and-gray.
	ColorBlackGray ColorIntent = "blackgray"
)

// IsValid reports whether the intent is one of the known values.
func (c ColorIntent) IsValid() bool {
	switch c {
	case ColorUnknown, ColorFull, ColorBlackGray:
		return true
	}
	return false
}

// Query is a validated, immutable search request. The embedding is
// 768-dim and finite; both are checked at construction, never downstream.
type Query struct {
	id        uuid.UUID
	embedding []float32
	styles    []style.Detection
	color     ColorIntent
	createdAt int64 // unix ms
}

// New validates the embedding and builds a query with a fresh ID.
func New(embedding []float32, styles []style.Detection, color ColorIntent, createdAt int64) (Query, error) {
	if err := domain.ValidateVector(embedding); err != nil {
		return Query{}, fmt.Errorf("query embedding: %w", err)
	}
	if !color.IsValid() {
		return Query{}, fmt.Errorf("invalid color intent %q: %w", color, domain.ErrValidation)
	}
	return Query{
		id:        uuid.New(),
		embedding: embedding,
		styles:    styles,
		color:     color,
		createdAt: createdAt,
	}, nil
}

// Reconstruct rebuilds a persisted query without re-validating.
// For repository use only.
func Reconstruct(
	id uuid.UUID, embedding []float32,
	styles []style.Detection, color ColorIntent, createdAt int64,
) Query {
	return Query{
		id:        id,
		embedding: embedding,
		styles:    styles,
		color:     color,
		createdAt: createdAt,
	}
}

// ID returns the opaque query identifier.
func (q *Query) ID() uuid.UUID { return q.id }

// Embedding returns the L2-normalized query vector.
func (q *Query) Embedding() []float32 { return q.embedding }

// Styles returns the detected styles, ordered by classifier confidence.
func (q *Query) Styles() []style.Detection { return q.styles }

// Color returns the query color intent.
func (q *Query) Color() ColorIntent { return q.color }

// CreatedAt returns the creation time in unix milliseconds.
func (q *Query) CreatedAt() int64 { return q.createdAt }

// ValidateText checks stateless query text length (3-200 chars after trim).
func ValidateText(text string) error {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < MinTextLength {
		return fmt.Errorf("query text too short (min %d chars): %w", MinTextLength, domain.ErrValidation)
	}
	if len(trimmed) > MaxTextLength {
		return fmt.Errorf("query text too long (max %d chars): %w", MaxTextLength, domain.ErrValidation)
	}
	return nil
}

// colorPhrases maps text markers to a color intent. Black-and-gray
// phrases are checked first so "black and grey color tattoo" does not
// read as colorful.
var blackGrayPhrases = []string{
	"black and gray", "black and grey", "black & gray", "black & grey",
	"blackwork", "black-and-gray", "black-and-grey", "grayscale", "greyscale",
}

var colorPhrases = []string{"colorful", "colourful", "full color", "full colour", "color ", " color", "colour"}

// InferColorIntent derives the color intent of a text query from
// wording. Returns ColorUnknown when nothing matches.
func InferColorIntent(text string) ColorIntent {
	t := strings.ToLower(text)
	for _, p := range blackGrayPhrases {
		if strings.Contains(t, p) {
			return ColorBlackGray
		}
	}
	for _, p := range colorPhrases {
		if strings.Contains(t, p) {
			return ColorFull
		}
	}
	return ColorUnknown
}
