package candidate

import (
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/inkdex/searchd/internal/domain/location"
	"github.com/inkdex/searchd/internal/domain/rank"
	"github.com/inkdex/searchd/internal/domain/style"
)

// candidateRow is the raw retrieval shape, validated before it crosses
// into the domain. Shape failures drop the row instead of letting
// half-filled fields reach the ranking.
type candidateRow struct {
	imageID    string
	artistID   string
	similarity float64
	likes      int
	isColor    *bool
	styleTags  []byte // jsonb: style -> confidence
}

func scanCandidate(rows pgx.Rows) (candidateRow, error) {
	var row candidateRow
	if err := rows.Scan(
		&row.imageID, &row.artistID, &row.similarity,
		&row.likes, &row.isColor, &row.styleTags,
	); err != nil {
		return candidateRow{}, err //nolint:wrapcheck // caller wraps with context
	}
	return row, nil
}

func (r candidateRow) validate() error {
	if strings.TrimSpace(r.imageID) == "" {
		return fmt.Errorf("empty image id")
	}
	if strings.TrimSpace(r.artistID) == "" {
		return fmt.Errorf("empty artist id for image %s", r.imageID)
	}
	if math.IsNaN(r.similarity) || math.IsInf(r.similarity, 0) {
		return fmt.Errorf("non-finite similarity for image %s", r.imageID)
	}
	if r.similarity < -1 || r.similarity > 1 {
		return fmt.Errorf("similarity %v out of [-1,1] for image %s", r.similarity, r.imageID)
	}
	return nil
}

func (r candidateRow) toDomain() rank.Candidate {
	var tags map[string]float64
	if len(r.styleTags) > 0 {
		// Unparseable tags degrade to none; the hard style filter already
		// ran in SQL against the raw jsonb.
		_ = json.Unmarshal(r.styleTags, &tags)
	}
	return rank.Candidate{
		ArtistID:   r.artistID,
		ImageID:    r.imageID,
		Similarity: r.similarity,
		Likes:      r.likes,
		IsColor:    r.isColor,
		Styles:     tags,
	}
}

func scanProfiles(rows pgx.Rows, profiles map[string]rank.Profile) error {
	defer rows.Close()
	for rows.Next() {
		var artistID string
		var raw []byte
		if err := rows.Scan(&artistID, &raw); err != nil {
			return fmt.Errorf("scan style profile: %w", err)
		}
		var p style.Profile
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("parse style profile for %s: %w", artistID, err)
			}
		}
		entry := profiles[artistID]
		entry.Styles = p
		profiles[artistID] = entry
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate style profiles: %w", err)
	}
	return nil
}

func scanLocations(rows pgx.Rows, profiles map[string]rank.Profile) error {
	defer rows.Close()
	for rows.Next() {
		var artistID string
		var p location.Place
		if err := rows.Scan(&artistID, &p.City, &p.Region, &p.Country, &p.Primary); err != nil {
			return fmt.Errorf("scan artist location: %w", err)
		}
		entry := profiles[artistID]
		entry.Locations = append(entry.Locations, p)
		profiles[artistID] = entry
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate artist locations: %w", err)
	}
	return nil
}
