// Package candidate retrieves image-level similarity candidates and
// artist profiles from Postgres/pgvector.
package candidate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/location"
	"github.com/inkdex/searchd/internal/domain/rank"
)

// Querier is the pgx surface the repository needs. *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repo reads portfolio images and artist profiles.
type Repo struct {
	pool          Querier
	maxCandidates int
	logger        *zap.Logger
}

// New creates a candidate repository. maxCandidates bounds one retrieval;
// the cut keeps the nearest candidates, so only the region below the
// ranking horizon is ever lost.
func New(pool Querier, maxCandidates int, logger *zap.Logger) *Repo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{pool: pool, maxCandidates: maxCandidates, logger: logger}
}

const candidatesSQL = `
SELECT i.id, i.artist_id, 1 - (i.embedding <=> $1) AS similarity,
       i.likes_count, i.is_color, i.style_tags
FROM portfolio_images i
JOIN artists a ON a.id = i.artist_id
WHERE a.status = 'active'
  AND NOT i.hidden
  AND i.deleted_at IS NULL
  AND 1 - (i.embedding <=> $1) >= $2`

const candidatesTail = `
ORDER BY i.embedding <=> $1
LIMIT `

// Candidates returns all active images above the similarity floor,
// optionally restricted by location and a hard style filter. Output
// order carries no meaning; ranking is the aggregator's job.
func (r *Repo) Candidates(
	ctx context.Context,
	embedding []float32,
	floor float64,
	loc *location.Filter,
	styleName string,
) ([]rank.Candidate, error) {
	if err := domain.ValidateVector(embedding); err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}
	if floor < 0 || floor > 1 {
		return nil, fmt.Errorf("similarity floor %v out of [0,1]: %w", floor, domain.ErrValidation)
	}

	sql := candidatesSQL
	args := []any{pgvector.NewVector(embedding), floor}

	if styleName != "" {
		args = append(args, styleName)
		sql += fmt.Sprintf("\n  AND i.style_tags ? $%d", len(args))
	}
	if loc != nil {
		sql, args = appendLocationFilter(sql, args, loc)
	}
	args = append(args, r.maxCandidates)
	sql += candidatesTail + fmt.Sprintf("$%d", len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []rank.Candidate
	dropped := 0
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if err := c.validate(); err != nil {
			dropped++
			r.logger.Warn("dropping malformed candidate row", zap.Error(err))
			continue
		}
		out = append(out, c.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	if dropped > 0 {
		r.logger.Warn("candidate rows failed shape validation", zap.Int("dropped", dropped))
	}
	return out, nil
}

// appendLocationFilter pushes the location predicate into SQL. The city
// comparison slugifies in the database exactly the way location.Slug
// does in Go, so pre- and post-aggregation filtering agree.
func appendLocationFilter(sql string, args []any, loc *location.Filter) (string, []any) {
	args = append(args, loc.Country())
	cond := fmt.Sprintf("lower(l.country_code) = $%d", len(args))

	if loc.Region() != "" {
		args = append(args, loc.Region())
		cond += fmt.Sprintf(" AND lower(l.region) = $%d", len(args))
	}
	if loc.City() != "" {
		args = append(args, loc.City())
		cond += fmt.Sprintf(
			" AND trim(both '-' from regexp_replace(lower(l.city), '[^a-z0-9]+', '-', 'g')) = $%d",
			len(args),
		)
	}

	sql += "\n  AND EXISTS (SELECT 1 FROM artist_locations l WHERE l.artist_id = a.id AND " + cond + ")"
	return sql, args
}

const profilesSQL = `
SELECT a.id, a.style_profile
FROM artists a
WHERE a.id = ANY($1)`

const locationsSQL = `
SELECT l.artist_id, l.city, l.region, l.country_code, l.is_primary
FROM artist_locations l
WHERE l.artist_id = ANY($1)`

// ArtistProfiles loads the precomputed style profiles and location rows
// for the given artists. Artists with no profile row are simply absent
// from the result; the booster treats that as a zero boost.
func (r *Repo) ArtistProfiles(ctx context.Context, artistIDs []string) (map[string]rank.Profile, error) {
	if len(artistIDs) == 0 {
		return map[string]rank.Profile{}, nil
	}

	profiles := make(map[string]rank.Profile, len(artistIDs))

	rows, err := r.pool.Query(ctx, profilesSQL, artistIDs)
	if err != nil {
		return nil, fmt.Errorf("query style profiles: %w", err)
	}
	if err := scanProfiles(rows, profiles); err != nil {
		return nil, err
	}

	locRows, err := r.pool.Query(ctx, locationsSQL, artistIDs)
	if err != nil {
		return nil, fmt.Errorf("query artist locations: %w", err)
	}
	if err := scanLocations(locRows, profiles); err != nil {
		return nil, err
	}

	return profiles, nil
}

// Ping verifies database connectivity.
func (r *Repo) Ping(ctx context.Context) error {
	rows, err := r.pool.Query(ctx, "SELECT 1")
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	rows.Close()
	return nil
}
