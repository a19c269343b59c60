// Package rank implements the core ranking algorithm: per-artist
// aggregation of image-level similarity candidates, bounded style and
// color boosts, and deterministic ordering. Both the stateful and the
// stateless search paths call the same Rank function, which is what
// makes repeated page fetches of one query land on identical orderings.
package rank

import (
	"fmt"
	"math"
	"sort"

	"github.com/inkdex/searchd/internal/domain/location"
	"github.com/inkdex/searchd/internal/domain/query"
	"github.com/inkdex/searchd/internal/domain/style"
)

// DefaultTopImages is how many matching images each result row carries.
const DefaultTopImages = 3

// MaxTotalBoost caps the sum of all boost magnitudes so secondary
// signals can never dominate raw similarity. Weight validation enforces
// it; the ranking relies on it for the boundedness contract.
const MaxTotalBoost = 0.2

// scoreEpsilon is the float tolerance for score ties. Scores are
// quantized to this resolution before ordering so the comparator is a
// total order even over chains of near-tied scores.
const scoreEpsilon = 1e-9

// scoreKey quantizes a boosted score for comparison. Comparing raw
// floats with a pairwise epsilon is not transitive; bucketing first
// keeps the ordering independent of input order.
func scoreKey(score float64) float64 {
	return math.Round(score / scoreEpsilon)
}

// Candidate is one portfolio image matched above the similarity floor.
type Candidate struct {
	ArtistID   string
	ImageID    string
	Similarity float64
	Likes      int
	IsColor    *bool              // nil when the image was never color-classified
	Styles     map[string]float64 // precomputed style tags with confidence
}

// Profile is the precomputed per-artist data the booster consumes.
type Profile struct {
	Styles    style.Profile
	Locations []location.Place
}

// Weights holds the tunable boost magnitudes.
type Weights struct {
	StyleBoostCap float64 // max additive style boost
	ColorBonus    float64 // additive bonus for a color intent match
	ColorPenalty  float64 // subtractive penalty for a mismatch
}

// Validate enforces the boost boundedness contract.
func (w Weights) Validate() error {
	if w.StyleBoostCap < 0 || w.ColorBonus < 0 || w.ColorPenalty < 0 {
		return fmt.Errorf("boost weights must be non-negative: %+v", w)
	}
	if w.StyleBoostCap+w.ColorBonus > MaxTotalBoost {
		return fmt.Errorf("style cap %v + color bonus %v exceeds max total boost %v",
			w.StyleBoostCap, w.ColorBonus, MaxTotalBoost)
	}
	if w.ColorPenalty > MaxTotalBoost {
		return fmt.Errorf("color penalty %v exceeds max total boost %v", w.ColorPenalty, MaxTotalBoost)
	}
	return nil
}

// MaxBoost returns the documented boost ceiling: no boosted score may
// exceed the artist's max similarity by more than this.
func (w Weights) MaxBoost() float64 { return w.StyleBoostCap + w.ColorBonus }

// ArtistResult is one ranked row. Each artist appears at most once per
// result set regardless of how many of their images matched.
type ArtistResult struct {
	ArtistID      string
	MaxSimilarity float64
	StyleBoost    float64
	ColorBoost    float64
	Score         float64
	LocationCount int
	Images        []Candidate // top matching images, best first
}

// Rank groups candidates by artist, aggregates by max similarity,
// applies bounded boosts, and returns the full ordering.
//
// Aggregation is max, not mean: one excellent match surfaces an artist
// even when the rest of their portfolio is unrelated. Ties on the
// boosted score (within epsilon) break by artist ID ascending so
// pagination stays stable across calls.
func Rank(
	candidates []Candidate,
	queryStyles []style.Detection,
	color query.ColorIntent,
	profiles map[string]Profile,
	w Weights,
	topImages int,
) []ArtistResult {
	if topImages <= 0 {
		topImages = DefaultTopImages
	}

	byArtist := make(map[string][]Candidate)
	for _, c := range candidates {
		byArtist[c.ArtistID] = append(byArtist[c.ArtistID], c)
	}

	results := make([]ArtistResult, 0, len(byArtist))
	for artistID, imgs := range byArtist {
		sortImages(imgs)

		profile, hasProfile := profiles[artistID]

		res := ArtistResult{
			ArtistID:      artistID,
			MaxSimilarity: imgs[0].Similarity,
		}
		if hasProfile {
			res.StyleBoost = styleBoost(queryStyles, profile.Styles, w)
			res.LocationCount = len(profile.Locations)
		}
		res.ColorBoost = colorBoost(imgs, color, w)
		res.Score = res.MaxSimilarity + res.StyleBoost + res.ColorBoost

		if len(imgs) > topImages {
			imgs = imgs[:topImages]
		}
		res.Images = imgs

		results = append(results, res)
	}

	sort.Slice(results, func(i, j int) bool {
		ki, kj := scoreKey(results[i].Score), scoreKey(results[j].Score)
		if ki == kj {
			return results[i].ArtistID < results[j].ArtistID
		}
		return ki > kj
	})

	return results
}

// sortImages orders an artist's candidates best-first: similarity desc,
// likes desc, image ID asc.
func sortImages(imgs []Candidate) {
	sort.Slice(imgs, func(i, j int) bool {
		if imgs[i].Similarity != imgs[j].Similarity {
			return imgs[i].Similarity > imgs[j].Similarity
		}
		if imgs[i].Likes != imgs[j].Likes {
			return imgs[i].Likes > imgs[j].Likes
		}
		return imgs[i].ImageID < imgs[j].ImageID
	})
}

// styleBoost is proportional to the confidence-weighted overlap of
// query styles with the artist's portfolio profile, capped. A missing
// or empty profile degrades to zero, never errors.
func styleBoost(queryStyles []style.Detection, profile style.Profile, w Weights) float64 {
	if len(queryStyles) == 0 || len(profile) == 0 {
		return 0
	}
	var overlap float64
	for _, d := range queryStyles {
		overlap += d.Confidence * profile[d.Name]
	}
	if overlap > 1 {
		overlap = 1
	}
	return w.StyleBoostCap * overlap
}

// colorBoost matches the query color intent against the best matching
// image with a known color flag. Unknown intent or all-unknown images
// contribute nothing.
func colorBoost(imgs []Candidate, color query.ColorIntent, w Weights) float64 {
	if color == query.ColorUnknown {
		return 0
	}
	wantColor := color == query.ColorFull
	for _, img := range imgs {
		if img.IsColor == nil {
			continue
		}
		if *img.IsColor == wantColor {
			return w.ColorBonus
		}
		return -w.ColorPenalty
	}
	return 0
}

// ApplyFilters applies the hard location and style filters at the
// candidate level. This is the same predicate the retriever pushes into
// SQL; keeping a pure form makes the filter/rank commutation testable.
func ApplyFilters(
	candidates []Candidate,
	profiles map[string]Profile,
	loc *location.Filter,
	styleName string,
) []Candidate {
	if loc == nil && styleName == "" {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		if styleName != "" {
			if _, ok := c.Styles[styleName]; !ok {
				continue
			}
		}
		if loc != nil && !loc.MatchesAny(profiles[c.ArtistID].Locations) {
			continue
		}
		out = append(out, c)
	}
	return out
}
