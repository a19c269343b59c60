// Package search orchestrates the similarity search pipeline: query
// resolution, candidate retrieval, ranking, and pagination. The
// stateful and stateless entry points share one ranking path, which is
// what guarantees identical orderings for the same effective query.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/location"
	"github.com/inkdex/searchd/internal/domain/page"
	"github.com/inkdex/searchd/internal/domain/query"
	"github.com/inkdex/searchd/internal/domain/rank"
	"github.com/inkdex/searchd/internal/domain/style"
	"github.com/inkdex/searchd/internal/metrics"
)

// Mode labels the two invocation modes for observability.
const (
	ModeStateful  = "stateful"
	ModeStateless = "stateless"
)

// Config holds the ranking and pipeline settings.
type Config struct {
	SimilarityFloor  float64
	Weights          rank.Weights
	TopImages        int
	Timeout          time.Duration
	HybridTextWeight float64
}

// Service coordinates one search request end to end.
type Service struct {
	repo       Retriever
	queries    QueryStore
	textEmb    domain.TextEmbedder
	imageEmb   domain.ImageEmbedder
	classifier Classifier
	observer   Observer
	cfg        Config
	logger     *zap.Logger
}

// New creates a search service. imageEmb and classifier may be nil when
// the deployment has no image/classifier endpoint; the matching
// features degrade instead of failing.
func New(
	repo Retriever,
	queries QueryStore,
	textEmb domain.TextEmbedder,
	imageEmb domain.ImageEmbedder,
	classifier Classifier,
	cfg Config,
	logger *zap.Logger,
) (*Service, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, fmt.Errorf("ranking weights: %w", err)
	}
	if cfg.SimilarityFloor < 0 || cfg.SimilarityFloor > 1 {
		return nil, fmt.Errorf("similarity floor %v out of [0,1]", cfg.SimilarityFloor)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		queries:    queries,
		textEmb:    textEmb,
		imageEmb:   imageEmb,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// WithObserver attaches a post-ranking observer.
func (s *Service) WithObserver(obs Observer) *Service {
	s.observer = obs
	return s
}

// Register embeds a new query (text, image, or hybrid), classifies its
// styles, persists it, and returns it for stateful pagination.
func (s *Service) Register(ctx context.Context, text string, image []byte) (query.Query, error) {
	if len(image) == 0 && text == "" {
		return query.Query{}, fmt.Errorf("text or image required: %w", domain.ErrValidation)
	}
	if text != "" {
		if err := query.ValidateText(text); err != nil {
			return query.Query{}, err
		}
	}

	embedding, color, err := s.resolveEmbedding(ctx, text, image)
	if err != nil {
		return query.Query{}, err
	}

	styles := s.detectStyles(ctx, embedding)

	q, err := query.New(embedding, styles, color, time.Now().UnixMilli())
	if err != nil {
		return query.Query{}, fmt.Errorf("build query: %w", err)
	}

	if err := s.queries.Put(ctx, &q); err != nil {
		return query.Query{}, fmt.Errorf("persist query: %w", err)
	}
	return q, nil
}

// Search serves one page for a previously registered query.
func (s *Service) Search(
	ctx context.Context, id uuid.UUID,
	loc *location.Filter, styleName string, p page.Params,
) (page.Page, error) {
	if err := validateStyleFilter(styleName); err != nil {
		return page.Page{}, err
	}

	q, err := s.queries.Get(ctx, id)
	if err != nil {
		return page.Page{}, fmt.Errorf("resolve query: %w", err)
	}

	return s.run(ctx, &q, ModeStateful, loc, styleName, p)
}

// SearchText serves one page for a stateless text query: the text is
// embedded fresh on every call, so ranking stability across pages rests
// on embedding determinism (helped by the embedding cache).
func (s *Service) SearchText(
	ctx context.Context, text string,
	loc *location.Filter, styleName string, p page.Params,
) (page.Page, error) {
	if err := query.ValidateText(text); err != nil {
		return page.Page{}, err
	}
	if err := validateStyleFilter(styleName); err != nil {
		return page.Page{}, err
	}

	res, err := s.textEmb.EmbedText(ctx, text)
	if err != nil {
		return page.Page{}, fmt.Errorf("embed query text: %w", err)
	}
	if err := domain.ValidateVector(res.Embedding); err != nil {
		return page.Page{}, fmt.Errorf("query embedding: %w", err)
	}

	styles := s.detectStyles(ctx, res.Embedding)

	q := query.Reconstruct(uuid.Nil, res.Embedding, styles, query.InferColorIntent(text), time.Now().UnixMilli())
	return s.run(ctx, &q, ModeStateless, loc, styleName, p)
}

// run is the single ranking path both modes share.
func (s *Service) run(
	ctx context.Context, q *query.Query, mode string,
	loc *location.Filter, styleName string, p page.Params,
) (page.Page, error) {
	start := time.Now()

	searchCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.Timeout > 0 {
		searchCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	candidates, err := s.repo.Candidates(searchCtx, q.Embedding(), s.cfg.SimilarityFloor, loc, styleName)
	if err != nil {
		s.observe(mode, "error", q.ID(), 0, time.Since(start))
		return page.Page{}, s.mapTimeout(searchCtx, fmt.Errorf("retrieve candidates: %w", err))
	}
	metrics.SearchCandidatesRetrieved.Observe(float64(len(candidates)))

	if len(candidates) == 0 {
		// Nothing matched: an empty page, not an error.
		s.observe(mode, "empty", q.ID(), 0, time.Since(start))
		return page.Slice(nil, p), nil
	}

	profiles, err := s.repo.ArtistProfiles(searchCtx, artistIDs(candidates))
	if err != nil {
		s.observe(mode, "error", q.ID(), 0, time.Since(start))
		return page.Page{}, s.mapTimeout(searchCtx, fmt.Errorf("load artist profiles: %w", err))
	}

	rankStart := time.Now()
	ranked := rank.Rank(candidates, q.Styles(), q.Color(), profiles, s.cfg.Weights, s.cfg.TopImages)
	metrics.SearchRankDuration.Observe(time.Since(rankStart).Seconds())

	result := page.Slice(ranked, p)
	s.observe(mode, "ok", q.ID(), result.TotalCount, time.Since(start))
	return result, nil
}

// detectStyles runs the classifier, degrading to no detections on
// failure. A boost signal is never worth failing the search for.
func (s *Service) detectStyles(ctx context.Context, embedding []float32) []style.Detection {
	if s.classifier == nil {
		return nil
	}
	styles, err := s.classifier.Classify(ctx, embedding)
	if err != nil {
		s.logger.Warn("style classification failed, continuing without styles", zap.Error(err))
		return nil
	}
	return styles
}

// resolveEmbedding embeds text, image, or a weighted hybrid of both.
// For hybrid queries the two provider calls run concurrently.
func (s *Service) resolveEmbedding(
	ctx context.Context, text string, image []byte,
) ([]float32, query.ColorIntent, error) {
	switch {
	case len(image) == 0:
		res, err := s.textEmb.EmbedText(ctx, text)
		if err != nil {
			return nil, query.ColorUnknown, fmt.Errorf("embed text: %w", err)
		}
		return res.Embedding, query.InferColorIntent(text), nil

	case text == "":
		res, err := s.embedImage(ctx, image)
		if err != nil {
			return nil, query.ColorUnknown, err
		}
		return res.Embedding, colorFromHint(res.ColorHint), nil

	default:
		var (
			wg       sync.WaitGroup
			imgRes   domain.EmbeddingResult
			txtRes   domain.EmbeddingResult
			imgErr   error
			txtErr   error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			imgRes, imgErr = s.embedImage(ctx, image)
		}()
		go func() {
			defer wg.Done()
			txtRes, txtErr = s.textEmb.EmbedText(ctx, text)
		}()
		wg.Wait()

		if imgErr != nil {
			return nil, query.ColorUnknown, imgErr
		}
		if txtErr != nil {
			return nil, query.ColorUnknown, fmt.Errorf("embed text modifier: %w", txtErr)
		}

		combined, err := domain.CombineHybrid(imgRes.Embedding, txtRes.Embedding, s.cfg.HybridTextWeight)
		if err != nil {
			return nil, query.ColorUnknown, fmt.Errorf("combine hybrid embedding: %w", err)
		}
		return combined, colorFromHint(imgRes.ColorHint), nil
	}
}

func (s *Service) embedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error) {
	if s.imageEmb == nil {
		return domain.EmbeddingResult{}, fmt.Errorf("image queries not configured: %w", domain.ErrValidation)
	}
	res, err := s.imageEmb.EmbedImage(ctx, image)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed image: %w", err)
	}
	return res, nil
}

// mapTimeout converts a deadline expiry of the search budget into the
// typed timeout error so callers never mistake it for "no matches".
func (s *Service) mapTimeout(searchCtx context.Context, err error) error {
	if errors.Is(searchCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrSearchTimeout, err)
	}
	return err
}

func (s *Service) observe(mode, status string, id uuid.UUID, total int, elapsed time.Duration) {
	metrics.SearchesTotal.WithLabelValues(mode, status).Inc()
	if s.observer == nil {
		return
	}
	ev := Event{
		Mode:       mode,
		Status:     status,
		QueryID:    id,
		TotalCount: total,
		Duration:   elapsed,
	}
	// Fire-and-forget: the observer runs after the result is final and
	// must never block the response.
	go s.observer.SearchCompleted(ev)
}

func artistIDs(candidates []rank.Candidate) []string {
	seen := make(map[string]struct{}, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.ArtistID]; ok {
			continue
		}
		seen[c.ArtistID] = struct{}{}
		ids = append(ids, c.ArtistID)
	}
	return ids
}

func validateStyleFilter(styleName string) error {
	if styleName == "" {
		return nil
	}
	if err := style.ValidateName(styleName); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

func colorFromHint(hint *bool) query.ColorIntent {
	if hint == nil {
		return query.ColorUnknown
	}
	if *hint {
		return query.ColorFull
	}
	return query.ColorBlackGray
}
