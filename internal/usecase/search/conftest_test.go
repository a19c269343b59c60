package search

import (
	"context"

	"github.com/google/uuid"

	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/location"
	"github.com/inkdex/searchd/internal/domain/query"
	"github.com/inkdex/searchd/internal/domain/rank"
	"github.com/inkdex/searchd/internal/domain/style"
)

func validVector() []float32 {
	vec := make([]float32, domain.VectorDim)
	vec[0] = 1
	return vec
}

type mockRetriever struct {
	candidatesFn func(ctx context.Context, embedding []float32, floor float64,
		loc *location.Filter, styleName string) ([]rank.Candidate, error)
	profilesFn func(ctx context.Context, artistIDs []string) (map[string]rank.Profile, error)

	candidatesCalls int
	profilesCalls   int
}

func (m *mockRetriever) Candidates(
	ctx context.Context, embedding []float32, floor float64,
	loc *location.Filter, styleName string,
) ([]rank.Candidate, error) {
	m.candidatesCalls++
	if m.candidatesFn != nil {
		return m.candidatesFn(ctx, embedding, floor, loc, styleName)
	}
	return nil, nil
}

func (m *mockRetriever) ArtistProfiles(ctx context.Context, artistIDs []string) (map[string]rank.Profile, error) {
	m.profilesCalls++
	if m.profilesFn != nil {
		return m.profilesFn(ctx, artistIDs)
	}
	return map[string]rank.Profile{}, nil
}

type mockQueryStore struct {
	putFn func(ctx context.Context, q *query.Query) error
	getFn func(ctx context.Context, id uuid.UUID) (query.Query, error)

	stored map[uuid.UUID]query.Query
}

func newMockQueryStore() *mockQueryStore {
	return &mockQueryStore{stored: make(map[uuid.UUID]query.Query)}
}

func (m *mockQueryStore) Put(ctx context.Context, q *query.Query) error {
	if m.putFn != nil {
		return m.putFn(ctx, q)
	}
	m.stored[q.ID()] = *q
	return nil
}

func (m *mockQueryStore) Get(ctx context.Context, id uuid.UUID) (query.Query, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	q, ok := m.stored[id]
	if !ok {
		return query.Query{}, domain.ErrQueryNotFound
	}
	return q, nil
}

type mockTextEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockTextEmbedder) EmbedText(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

type mockImageEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockImageEmbedder) EmbedImage(_ context.Context, _ []byte) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

type mockClassifier struct {
	styles []style.Detection
	err    error
	calls  int
}

func (m *mockClassifier) Classify(_ context.Context, _ []float32) ([]style.Detection, error) {
	m.calls++
	return m.styles, m.err
}
