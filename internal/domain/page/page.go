// Package page implements offset/limit pagination over the ranked
// artist list.
package page

import (
	"fmt"

	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/rank"
)

// Pagination limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxOffset bounds worst-case query cost. Requests beyond it are
	// rejected, not silently truncated.
	MaxOffset = 10000
)

// Params is a validated offset/limit pair.
type Params struct {
	offset int
	limit  int
}

// NewParams validates pagination input. Zero limit defaults; a limit
// above MaxLimit or a negative offset is a caller error, as is an
// offset past MaxOffset.
func NewParams(offset, limit int) (Params, error) {
	if offset < 0 {
		return Params{}, fmt.Errorf("offset must be non-negative: %w", domain.ErrValidation)
	}
	if offset > MaxOffset {
		return Params{}, fmt.Errorf("offset %d exceeds max %d: %w", offset, MaxOffset, domain.ErrValidation)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return Params{}, fmt.Errorf("limit must be between 1 and %d: %w", MaxLimit, domain.ErrValidation)
	}
	return Params{offset: offset, limit: limit}, nil
}

// Offset returns the validated offset.
func (p Params) Offset() int { return p.offset }

// Limit returns the validated limit.
func (p Params) Limit() int { return p.limit }

// Page is one window into the full ranked result set.
type Page struct {
	Artists    []rank.ArtistResult
	TotalCount int
	Offset     int
	Limit      int
	HasMore    bool
}

// Slice cuts one page out of the full ranked list. TotalCount is the
// size of the whole list, independent of the window.
func Slice(ranked []rank.ArtistResult, p Params) Page {
	total := len(ranked)

	start := p.offset
	if start > total {
		start = total
	}
	end := start + p.limit
	if end > total {
		end = total
	}

	return Page{
		Artists:    ranked[start:end],
		TotalCount: total,
		Offset:     p.offset,
		Limit:      p.limit,
		HasMore:    p.offset+(end-start) < total,
	}
}
