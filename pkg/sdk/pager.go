package inkdex

import (
	"context"
	"sync"
)

type pagerState int

const (
	pagerIdle pagerState = iota
	pagerFetching
	pagerExhausted
)

// fetchFunc fetches one page at the given offset.
type fetchFunc func(ctx context.Context, opts SearchOptions, offset int) (Page, error)

// Pager accumulates result pages for one query. At most one fetch is
// in flight at a time; changing filters cancels the in-flight fetch
// and restarts from offset zero.
type Pager struct {
	fetch fetchFunc

	mu      sync.Mutex
	state   pagerState
	opts    SearchOptions
	offset  int
	gen     uint64
	cancel  context.CancelFunc
	artists []Artist
	total   int
}

// NewPager creates a pager for a registered query.
func (c *Client) NewPager(queryID string, opts SearchOptions) *Pager {
	return &Pager{
		fetch: func(ctx context.Context, o SearchOptions, offset int) (Page, error) {
			return c.SearchByID(ctx, queryID, o, offset)
		},
		opts: opts,
	}
}

// NewTextPager creates a pager for a stateless text query.
func (c *Client) NewTextPager(text string, opts SearchOptions) *Pager {
	return &Pager{
		fetch: func(ctx context.Context, o SearchOptions, offset int) (Page, error) {
			return c.SearchText(ctx, text, o, offset)
		},
		opts: opts,
	}
}

// Next fetches the next page and appends its artists to the
// accumulated list. It returns the fetched page, ErrFetchInFlight if
// a fetch is already running, ErrExhausted if all results were
// already fetched, or ErrSuperseded if the filters changed while this
// fetch was in flight. On any other error the pager stays usable and
// the same page can be retried.
func (p *Pager) Next(ctx context.Context) (Page, error) {
	p.mu.Lock()
	switch p.state {
	case pagerFetching:
		p.mu.Unlock()
		return Page{}, ErrFetchInFlight
	case pagerExhausted:
		p.mu.Unlock()
		return Page{}, ErrExhausted
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	p.state = pagerFetching
	p.cancel = cancel
	gen := p.gen
	opts := p.opts
	offset := p.offset
	p.mu.Unlock()

	page, err := p.fetch(fetchCtx, opts, offset)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen {
		// A newer request superseded this fetch; drop its result.
		return Page{}, ErrSuperseded
	}
	p.cancel = nil

	if err != nil {
		p.state = pagerIdle
		return Page{}, err
	}

	p.artists = append(p.artists, page.Artists...)
	p.total = page.TotalCount
	p.offset += len(page.Artists)
	if page.HasMore {
		p.state = pagerIdle
	} else {
		p.state = pagerExhausted
	}
	return page, nil
}

// SetFilters replaces the search filters, cancels any in-flight
// fetch, and resets the pager to the first page.
func (p *Pager) SetFilters(opts SearchOptions) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.opts = opts
	p.offset = 0
	p.artists = nil
	p.total = 0
	p.state = pagerIdle
}

// Artists returns a copy of all artists fetched so far.
func (p *Pager) Artists() []Artist {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Artist, len(p.artists))
	copy(out, p.artists)
	return out
}

// TotalCount returns the total match count from the last page, or
// zero before the first fetch.
func (p *Pager) TotalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Exhausted reports whether every result has been fetched.
func (p *Pager) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == pagerExhausted
}
