package search

import (
	"context"

	"github.com/google/uuid"

	"github.com/inkdex/searchd/internal/domain/location"
	"github.com/inkdex/searchd/internal/domain/query"
	"github.com/inkdex/searchd/internal/domain/rank"
	"github.com/inkdex/searchd/internal/domain/style"
)

// Retriever defines the storage contract for candidate retrieval.
// Implementations are read-only and may return candidates unsorted.
type Retriever interface {
	Candidates(
		ctx context.Context, embedding []float32, floor float64,
		loc *location.Filter, styleName string,
	) ([]rank.Candidate, error)

	ArtistProfiles(ctx context.Context, artistIDs []string) (map[string]rank.Profile, error)
}

// QueryStore persists registered queries for the stateful search mode.
type QueryStore interface {
	Put(ctx context.Context, q *query.Query) error
	Get(ctx context.Context, id uuid.UUID) (query.Query, error)
}

// Classifier detects styles from a query embedding.
type Classifier interface {
	Classify(ctx context.Context, embedding []float32) ([]style.Detection, error)
}

// Observer receives completed-search events after the result is
// finalized. It never gates or mutates the ranking.
type Observer interface {
	SearchCompleted(ev Event)
}
