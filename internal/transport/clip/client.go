// Package clip is the HTTP client for the CLIP image tower: it turns
// reference image bytes into embeddings and carries back the service's
// color classification of the image.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/metrics"
)

const maxErrorBody = 4 << 10

// Client calls the CLIP image embedding endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a CLIP image embedding client.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	IsColor   *bool     `json:"is_color,omitempty"`
}

// EmbedImage implements domain.ImageEmbedder.
func (c *Client) EmbedImage(ctx context.Context, image []byte) (domain.EmbeddingResult, error) {
	if len(image) == 0 {
		return domain.EmbeddingResult{}, fmt.Errorf("empty image: %w", domain.ErrValidation)
	}

	body, err := json.Marshal(embedRequest{ImageBase64: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("image", "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("embed image: %v: %w", err, domain.ErrEmbeddingProviderError)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues("image", "error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.EmbeddingResult{}, fmt.Errorf("embed image: status %d: %s: %w",
			resp.StatusCode, msg, domain.ErrEmbeddingProviderError)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("image", "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("decode embed response: %v: %w", err, domain.ErrEmbeddingProviderError)
	}

	if err := domain.ValidateVector(out.Embedding); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("image", "error").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("provider returned bad vector: %w", err)
	}
	domain.Normalize(out.Embedding)

	metrics.EmbeddingRequestsTotal.WithLabelValues("image", "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())

	return domain.EmbeddingResult{
		Embedding: out.Embedding,
		ColorHint: out.IsColor,
	}, nil
}
