// Package inkdex provides a Go client for the searchd similarity
// search API, including an incremental-fetch Pager for infinite scroll.
package inkdex

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

const defaultTimeout = 15 * time.Second

// Client is the searchd API client.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// New creates a client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register creates a persisted query and returns its ID.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("inkdex: marshal register request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body),
	)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("inkdex: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out RegisterResult
	if err := c.do(httpReq, &out); err != nil {
		return RegisterResult{}, err
	}
	return out, nil
}

// SearchByID fetches one page for a registered query.
func (c *Client) SearchByID(ctx context.Context, queryID string, opts SearchOptions, offset int) (Page, error) {
	u := c.baseURL + "/search/" + url.PathEscape(queryID) + "?" + searchValues(opts, offset).Encode()
	return c.getPage(ctx, u)
}

// SearchText fetches one page for a stateless text query.
func (c *Client) SearchText(ctx context.Context, text string, opts SearchOptions, offset int) (Page, error) {
	vals := searchValues(opts, offset)
	vals.Set("q", text)
	u := c.baseURL + "/search/query?" + vals.Encode()
	return c.getPage(ctx, u)
}

func (c *Client) getPage(ctx context.Context, u string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Page{}, fmt.Errorf("inkdex: build request: %w", err)
	}

	var out Page
	if err := c.do(req, &out); err != nil {
		return Page{}, err
	}
	return out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("inkdex: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("inkdex: decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if json.Unmarshal(data, &body) == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	return apiErr
}

func searchValues(opts SearchOptions, offset int) url.Values {
	vals := url.Values{}
	if opts.Country != "" {
		vals.Set("country", opts.Country)
	}
	if opts.Region != "" {
		vals.Set("region", opts.Region)
	}
	if opts.City != "" {
		vals.Set("city", opts.City)
	}
	if opts.Style != "" {
		vals.Set("style", opts.Style)
	}
	if opts.Limit > 0 {
		vals.Set("limit", strconv.Itoa(opts.Limit))
	}
	if offset > 0 {
		vals.Set("offset", strconv.Itoa(offset))
	}
	return vals
}
