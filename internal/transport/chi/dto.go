package chi

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/location"
	"github.com/inkdex/searchd/internal/domain/page"
	"github.com/inkdex/searchd/internal/domain/query"
	"github.com/inkdex/searchd/internal/domain/rank"
)

// maxImageBytes bounds uploaded reference images (8 MiB decoded).
const maxImageBytes = 8 << 20

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type registerRequest struct {
	Text        string `json:"text,omitempty"`
	ImageBase64 string `json:"imageBase64,omitempty"`
}

func (r *registerRequest) imageBytes() ([]byte, error) {
	if r.ImageBase64 == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(r.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("imageBase64 is not valid base64")
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image too large (max %d bytes)", maxImageBytes)
	}
	return data, nil
}

type registerResponse struct {
	QueryID        string          `json:"queryId"`
	DetectedStyles []styleResponse `json:"detectedStyles,omitempty"`
	IsColor        *bool           `json:"isColor,omitempty"`
}

type styleResponse struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

func registerResponseFromQuery(q *query.Query) registerResponse {
	resp := registerResponse{QueryID: q.ID().String()}
	for _, d := range q.Styles() {
		resp.DetectedStyles = append(resp.DetectedStyles, styleResponse{
			Name:       d.Name,
			Confidence: d.Confidence,
		})
	}
	switch q.Color() {
	case query.ColorFull:
		v := true
		resp.IsColor = &v
	case query.ColorBlackGray:
		v := false
		resp.IsColor = &v
	case query.ColorUnknown:
	}
	return resp
}

// searchParams holds the parsed common GET parameters.
type searchParams struct {
	loc   *location.Filter
	style string
	page  page.Params
}

func parseSearchParams(r *http.Request) (searchParams, error) {
	q := r.URL.Query()

	offset, err := parseIntParam(q.Get("offset"), 0)
	if err != nil {
		return searchParams{}, fmt.Errorf("offset: %v: %w", err, domain.ErrValidation)
	}
	limit, err := parseIntParam(q.Get("limit"), 0)
	if err != nil {
		return searchParams{}, fmt.Errorf("limit: %v: %w", err, domain.ErrValidation)
	}

	p, err := page.NewParams(offset, limit)
	if err != nil {
		return searchParams{}, err
	}

	loc, err := location.ParseFilter(q.Get("country"), q.Get("region"), q.Get("city"))
	if err != nil {
		return searchParams{}, fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}

	return searchParams{
		loc:   loc,
		style: q.Get("style"),
		page:  p,
	}, nil
}

func parseIntParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	return v, nil
}

type imageResponse struct {
	ImageID    string  `json:"imageId"`
	Similarity float64 `json:"similarity"`
	LikesCount int     `json:"likesCount"`
	IsColor    *bool   `json:"isColor,omitempty"`
}

type artistResponse struct {
	ArtistID      string          `json:"artistId"`
	MaxSimilarity float64         `json:"maxSimilarity"`
	StyleBoost    float64         `json:"styleBoost"`
	ColorBoost    float64         `json:"colorBoost"`
	Score         float64         `json:"score"`
	LocationCount int             `json:"locationCount"`
	Images        []imageResponse `json:"images"`
}

type pageResponse struct {
	Artists    []artistResponse `json:"artists"`
	TotalCount int              `json:"totalCount"`
	Offset     int              `json:"offset"`
	Limit      int              `json:"limit"`
	HasMore    bool             `json:"hasMore"`
	QueryTime  int64            `json:"queryTime"` // milliseconds
}

func pageToResponse(p page.Page, elapsed time.Duration) pageResponse {
	artists := make([]artistResponse, len(p.Artists))
	for i := range p.Artists {
		artists[i] = artistToResponse(&p.Artists[i])
	}
	return pageResponse{
		Artists:    artists,
		TotalCount: p.TotalCount,
		Offset:     p.Offset,
		Limit:      p.Limit,
		HasMore:    p.HasMore,
		QueryTime:  elapsed.Milliseconds(),
	}
}

func artistToResponse(a *rank.ArtistResult) artistResponse {
	images := make([]imageResponse, len(a.Images))
	for i, img := range a.Images {
		images[i] = imageResponse{
			ImageID:    img.ImageID,
			Similarity: img.Similarity,
			LikesCount: img.Likes,
			IsColor:    img.IsColor,
		}
	}
	return artistResponse{
		ArtistID:      a.ArtistID,
		MaxSimilarity: a.MaxSimilarity,
		StyleBoost:    a.StyleBoost,
		ColorBoost:    a.ColorBoost,
		Score:         a.Score,
		LocationCount: a.LocationCount,
		Images:        images,
	}
}
