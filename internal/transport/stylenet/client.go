// Package stylenet is the HTTP client for the trained style classifier.
// The model is a black box: embedding in, per-style probabilities out.
// Thresholding happens here because minimum confidences are deployment
// configuration, not model output.
package stylenet

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/style"
)

const maxErrorBody = 4 << 10

// Client calls the style classifier endpoint.
type Client struct {
	endpoint   string
	thresholds style.Thresholds
	http       *http.Client
}

// New creates a classifier client.
func New(endpoint string, thresholds style.Thresholds, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		thresholds: thresholds,
		http:       &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Embedding []float32 `json:"embedding"`
}

type classifyResponse struct {
	Styles map[string]float64 `json:"styles"`
}

// Classify returns the detected styles above their per-style thresholds,
// ordered by confidence descending (name ascending on exact ties).
func (c *Client) Classify(ctx context.Context, embedding []float32) ([]style.Detection, error) {
	body, err := json.Marshal(classifyRequest{Embedding: embedding})
	if err != nil {
		return nil, fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify: %v: %w", err, domain.ErrClassifierUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("classify: status %d: %s: %w",
			resp.StatusCode, msg, domain.ErrClassifierUnavailable)
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode classify response: %v: %w", err, domain.ErrClassifierUnavailable)
	}

	detections := make([]style.Detection, 0, len(out.Styles))
	for name, conf := range out.Styles {
		if conf >= c.thresholds.Min(name) {
			detections = append(detections, style.Detection{Name: name, Confidence: conf})
		}
	}
	sort.Slice(detections, func(i, j int) bool {
		if detections[i].Confidence == detections[j].Confidence {
			return detections[i].Name < detections[j].Name
		}
		return detections[i].Confidence > detections[j].Confidence
	})
	return detections, nil
}
