package search

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/location"
	"github.com/inkdex/searchd/internal/domain/page"
	"github.com/inkdex/searchd/internal/domain/query"
	"github.com/inkdex/searchd/internal/domain/rank"
	"github.com/inkdex/searchd/internal/domain/style"
)

func defaultConfig() Config {
	return Config{
		SimilarityFloor:  0.15,
		Weights:          rank.Weights{StyleBoostCap: 0.05, ColorBonus: 0.02, ColorPenalty: 0.01},
		TopImages:        3,
		HybridTextWeight: 0.3,
	}
}

func newTestService(
	t *testing.T,
	repo *mockRetriever,
	queries *mockQueryStore,
	textEmb *mockTextEmbedder,
	imageEmb domain.ImageEmbedder,
	classifier Classifier,
	cfg Config,
) *Service {
	t.Helper()
	svc, err := New(repo, queries, textEmb, imageEmb, classifier, cfg, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func defaultParams(t *testing.T) page.Params {
	t.Helper()
	p, err := page.NewParams(0, 20)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	return p
}

func TestNew_RejectsBadConfig(t *testing.T) {
	repo := &mockRetriever{}
	queries := newMockQueryStore()
	emb := &mockTextEmbedder{}

	t.Run("weights over bound", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Weights = rank.Weights{StyleBoostCap: 0.19, ColorBonus: 0.02}
		if _, err := New(repo, queries, emb, nil, nil, cfg, nil); err == nil {
			t.Error("expected error for unbounded weights")
		}
	})

	t.Run("floor out of range", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.SimilarityFloor = 1.5
		if _, err := New(repo, queries, emb, nil, nil, cfg, nil); err == nil {
			t.Error("expected error for floor out of range")
		}
	})
}

func TestRegister_TextQuery(t *testing.T) {
	queries := newMockQueryStore()
	emb := &mockTextEmbedder{result: domain.EmbeddingResult{Embedding: validVector()}}
	classifier := &mockClassifier{styles: []style.Detection{{Name: "realism", Confidence: 0.8}}}
	svc := newTestService(t, &mockRetriever{}, queries, emb, nil, classifier, defaultConfig())

	q, err := svc.Register(context.Background(), "colorful koi fish", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if q.ID() == uuid.Nil {
		t.Error("expected a query ID")
	}
	if q.Color() != query.ColorFull {
		t.Errorf("color = %q, want inferred color intent", q.Color())
	}
	if len(q.Styles()) != 1 || q.Styles()[0].Name != "realism" {
		t.Errorf("styles = %+v", q.Styles())
	}
	if _, ok := queries.stored[q.ID()]; !ok {
		t.Error("query was not persisted")
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(t, &mockRetriever{}, newMockQueryStore(),
		&mockTextEmbedder{}, nil, nil, defaultConfig())

	t.Run("empty input", func(t *testing.T) {
		_, err := svc.Register(context.Background(), "", nil)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("text too short", func(t *testing.T) {
		_, err := svc.Register(context.Background(), "ab", nil)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("image without image embedder", func(t *testing.T) {
		_, err := svc.Register(context.Background(), "", []byte{1, 2, 3})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestRegister_ImageQuery(t *testing.T) {
	queries := newMockQueryStore()
	isColor := true
	imageEmb := &mockImageEmbedder{result: domain.EmbeddingResult{
		Embedding: validVector(),
		ColorHint: &isColor,
	}}
	svc := newTestService(t, &mockRetriever{}, queries, &mockTextEmbedder{}, imageEmb, nil, defaultConfig())

	q, err := svc.Register(context.Background(), "", []byte{0xFF, 0xD8})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if q.Color() != query.ColorFull {
		t.Errorf("color = %q, want color from hint", q.Color())
	}
}

func TestRegister_HybridQuery(t *testing.T) {
	queries := newMockQueryStore()
	imgVec := make([]float32, domain.VectorDim)
	imgVec[0] = 1
	txtVec := make([]float32, domain.VectorDim)
	txtVec[1] = 1

	imageEmb := &mockImageEmbedder{result: domain.EmbeddingResult{Embedding: imgVec}}
	textEmb := &mockTextEmbedder{result: domain.EmbeddingResult{Embedding: txtVec}}
	svc := newTestService(t, &mockRetriever{}, queries, textEmb, imageEmb, nil, defaultConfig())

	q, err := svc.Register(context.Background(), "more traditional", []byte{0xFF, 0xD8})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if imageEmb.calls != 1 || textEmb.calls != 1 {
		t.Errorf("expected both embedders called, got image=%d text=%d", imageEmb.calls, textEmb.calls)
	}
	emb := q.Embedding()
	if emb[0] == 0 || emb[1] == 0 {
		t.Error("hybrid embedding should mix both modalities")
	}
}

func TestRegister_ClassifierFailureDegrades(t *testing.T) {
	queries := newMockQueryStore()
	emb := &mockTextEmbedder{result: domain.EmbeddingResult{Embedding: validVector()}}
	classifier := &mockClassifier{err: errors.New("classifier down")}
	svc := newTestService(t, &mockRetriever{}, queries, emb, nil, classifier, defaultConfig())

	q, err := svc.Register(context.Background(), "dragon sleeve", nil)
	if err != nil {
		t.Fatalf("classifier failure must not fail registration: %v", err)
	}
	if len(q.Styles()) != 0 {
		t.Errorf("styles = %+v, want none", q.Styles())
	}
}

func TestSearch_UnknownQueryID(t *testing.T) {
	svc := newTestService(t, &mockRetriever{}, newMockQueryStore(),
		&mockTextEmbedder{}, nil, nil, defaultConfig())

	_, err := svc.Search(context.Background(), uuid.New(), nil, "", defaultParams(t))
	if !errors.Is(err, domain.ErrQueryNotFound) {
		t.Errorf("expected ErrQueryNotFound, got %v", err)
	}
}

func TestSearch_EmptyCandidatesIsEmptyPage(t *testing.T) {
	repo := &mockRetriever{}
	queries := newMockQueryStore()
	svc := newTestService(t, repo, queries, &mockTextEmbedder{}, nil, nil, defaultConfig())

	q, err := query.New(validVector(), nil, query.ColorUnknown, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	queries.stored[q.ID()] = q

	result, err := svc.Search(context.Background(), q.ID(), nil, "", defaultParams(t))
	if err != nil {
		t.Fatalf("no matches must not be an error: %v", err)
	}
	if result.TotalCount != 0 || len(result.Artists) != 0 || result.HasMore {
		t.Errorf("unexpected page: %+v", result)
	}
	if repo.profilesCalls != 0 {
		t.Error("profiles should not be loaded when there are no candidates")
	}
}

func TestSearch_RanksAndPaginates(t *testing.T) {
	repo := &mockRetriever{
		candidatesFn: func(_ context.Context, _ []float32, floor float64,
			_ *location.Filter, _ string) ([]rank.Candidate, error) {
			if floor != 0.15 {
				t.Errorf("floor = %v, want 0.15", floor)
			}
			return []rank.Candidate{
				{ArtistID: "y", ImageID: "img-y", Similarity: 0.75},
				{ArtistID: "x", ImageID: "img-x", Similarity: 0.8},
				{ArtistID: "z", ImageID: "img-z", Similarity: 0.3},
			}, nil
		},
	}
	queries := newMockQueryStore()
	svc := newTestService(t, repo, queries, &mockTextEmbedder{}, nil, nil, defaultConfig())

	q, err := query.New(validVector(), nil, query.ColorUnknown, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	queries.stored[q.ID()] = q

	p, err := page.NewParams(0, 2)
	if err != nil {
		t.Fatalf("params: %v", err)
	}

	result, err := svc.Search(context.Background(), q.ID(), nil, "", p)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.TotalCount != 3 {
		t.Errorf("total = %d, want 3", result.TotalCount)
	}
	if len(result.Artists) != 2 {
		t.Fatalf("page size = %d, want 2", len(result.Artists))
	}
	if result.Artists[0].ArtistID != "x" || result.Artists[1].ArtistID != "y" {
		t.Errorf("order = [%s %s], want [x y]",
			result.Artists[0].ArtistID, result.Artists[1].ArtistID)
	}
	if !result.HasMore {
		t.Error("expected has more")
	}
}

func TestSearch_InvalidStyleFilter(t *testing.T) {
	svc := newTestService(t, &mockRetriever{}, newMockQueryStore(),
		&mockTextEmbedder{}, nil, nil, defaultConfig())

	_, err := svc.Search(context.Background(), uuid.New(), nil, "Not A Style", defaultParams(t))
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSearch_TimeoutMapsToTypedError(t *testing.T) {
	repo := &mockRetriever{
		candidatesFn: func(ctx context.Context, _ []float32, _ float64,
			_ *location.Filter, _ string) ([]rank.Candidate, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	queries := newMockQueryStore()
	cfg := defaultConfig()
	cfg.Timeout = 10 * time.Millisecond
	svc := newTestService(t, repo, queries, &mockTextEmbedder{}, nil, nil, cfg)

	q, err := query.New(validVector(), nil, query.ColorUnknown, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	queries.stored[q.ID()] = q

	_, err = svc.Search(context.Background(), q.ID(), nil, "", defaultParams(t))
	if !errors.Is(err, domain.ErrSearchTimeout) {
		t.Errorf("expected ErrSearchTimeout, got %v", err)
	}
}

func TestSearch_MissingProfilesDegrade(t *testing.T) {
	repo := &mockRetriever{
		candidatesFn: func(_ context.Context, _ []float32, _ float64,
			_ *location.Filter, _ string) ([]rank.Candidate, error) {
			return []rank.Candidate{{ArtistID: "a", ImageID: "i", Similarity: 0.7}}, nil
		},
		profilesFn: func(_ context.Context, _ []string) (map[string]rank.Profile, error) {
			return map[string]rank.Profile{}, nil
		},
	}
	queries := newMockQueryStore()
	svc := newTestService(t, repo, queries, &mockTextEmbedder{}, nil, nil, defaultConfig())

	q, err := query.New(validVector(),
		[]style.Detection{{Name: "realism", Confidence: 0.9}},
		query.ColorUnknown, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	queries.stored[q.ID()] = q

	result, err := svc.Search(context.Background(), q.ID(), nil, "", defaultParams(t))
	if err != nil {
		t.Fatalf("missing profiles must not fail the search: %v", err)
	}
	if result.Artists[0].StyleBoost != 0 {
		t.Errorf("style boost = %f, want 0 without a profile", result.Artists[0].StyleBoost)
	}
}

func TestSearchText_SamePipelineAsStateful(t *testing.T) {
	candidates := []rank.Candidate{
		{ArtistID: "b", ImageID: "2", Similarity: 0.7},
		{ArtistID: "a", ImageID: "1", Similarity: 0.9},
	}
	repo := &mockRetriever{
		candidatesFn: func(_ context.Context, _ []float32, _ float64,
			_ *location.Filter, _ string) ([]rank.Candidate, error) {
			return candidates, nil
		},
	}
	queries := newMockQueryStore()
	emb := &mockTextEmbedder{result: domain.EmbeddingResult{Embedding: validVector()}}
	svc := newTestService(t, repo, queries, emb, nil, nil, defaultConfig())

	statelessPage, err := svc.SearchText(context.Background(), "dragon sleeve", nil, "", defaultParams(t))
	if err != nil {
		t.Fatalf("stateless search: %v", err)
	}

	q, err := svc.Register(context.Background(), "dragon sleeve", nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	statefulPage, err := svc.Search(context.Background(), q.ID(), nil, "", defaultParams(t))
	if err != nil {
		t.Fatalf("stateful search: %v", err)
	}

	var a, b []string
	for _, r := range statelessPage.Artists {
		a = append(a, r.ArtistID)
	}
	for _, r := range statefulPage.Artists {
		b = append(b, r.ArtistID)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("stateless order %v != stateful order %v", a, b)
	}
}

func TestSearchText_Validation(t *testing.T) {
	svc := newTestService(t, &mockRetriever{}, newMockQueryStore(),
		&mockTextEmbedder{}, nil, nil, defaultConfig())

	_, err := svc.SearchText(context.Background(), "ab", nil, "", defaultParams(t))
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestSearchText_EmbedderFailure(t *testing.T) {
	emb := &mockTextEmbedder{err: errors.New("provider down")}
	svc := newTestService(t, &mockRetriever{}, newMockQueryStore(), emb, nil, nil, defaultConfig())

	_, err := svc.SearchText(context.Background(), "dragon sleeve", nil, "", defaultParams(t))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSearch_FiltersReachRetriever(t *testing.T) {
	var gotLoc *location.Filter
	var gotStyle string
	repo := &mockRetriever{
		candidatesFn: func(_ context.Context, _ []float32, _ float64,
			loc *location.Filter, styleName string) ([]rank.Candidate, error) {
			gotLoc = loc
			gotStyle = styleName
			return nil, nil
		},
	}
	queries := newMockQueryStore()
	svc := newTestService(t, repo, queries, &mockTextEmbedder{}, nil, nil, defaultConfig())

	q, err := query.New(validVector(), nil, query.ColorUnknown, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	queries.stored[q.ID()] = q

	loc, err := location.ParseFilter("us", "", "new york")
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	if _, err := svc.Search(context.Background(), q.ID(), loc, "realism", defaultParams(t)); err != nil {
		t.Fatalf("search: %v", err)
	}

	if gotLoc == nil || gotLoc.City() != "new-york" {
		t.Errorf("location filter did not reach the retriever: %+v", gotLoc)
	}
	if gotStyle != "realism" {
		t.Errorf("style filter = %q", gotStyle)
	}
}

func TestArtistIDs_Dedupes(t *testing.T) {
	candidates := []rank.Candidate{
		{ArtistID: "a"}, {ArtistID: "b"}, {ArtistID: "a"}, {ArtistID: "c"}, {ArtistID: "b"},
	}
	got := artistIDs(candidates)
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("artistIDs = %v, want %v", got, want)
	}
}
