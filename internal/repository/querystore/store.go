// Package querystore persists registered queries so paginated fetches
// can reference them by opaque ID without re-embedding.
package querystore

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/inkdex/searchd/internal/db"
	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/query"
	"github.com/inkdex/searchd/internal/domain/style"
)

const keyPrefix = "inkdex:query:"

// Store persists queries in a key-value store with a TTL.
type Store struct {
	kv  db.Store
	ttl time.Duration
}

// New creates a query store.
func New(kv db.Store, ttl time.Duration) *Store {
	return &Store{kv: kv, ttl: ttl}
}

// record is the persisted query shape. The embedding is base64-packed
// float32 little-endian to keep records compact.
type record struct {
	Embedding string            `json:"v"`
	Styles    []detectionRecord `json:"styles,omitempty"`
	Color     string            `json:"color,omitempty"`
	CreatedAt int64             `json:"created_ms"`
}

type detectionRecord struct {
	Name       string  `json:"n"`
	Confidence float64 `json:"c"`
}

// Put persists a query under its ID.
func (s *Store) Put(ctx context.Context, q *query.Query) error {
	rec := record{
		Embedding: encodeVector(q.Embedding()),
		Color:     string(q.Color()),
		CreatedAt: q.CreatedAt(),
	}
	for _, d := range q.Styles() {
		rec.Styles = append(rec.Styles, detectionRecord{Name: d.Name, Confidence: d.Confidence})
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal query record: %w", err)
	}
	if err := s.kv.SetWithTTL(ctx, key(q.ID()), data, s.ttl); err != nil {
		return fmt.Errorf("store query %s: %w", q.ID(), err)
	}
	return nil
}

// Get loads a persisted query. A missing or expired ID maps to
// domain.ErrQueryNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (query.Query, error) {
	data, err := s.kv.Get(ctx, key(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return query.Query{}, fmt.Errorf("query %s: %w", id, domain.ErrQueryNotFound)
		}
		return query.Query{}, fmt.Errorf("load query %s: %w", id, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return query.Query{}, fmt.Errorf("parse query record %s: %w", id, err)
	}

	vec, err := decodeVector(rec.Embedding)
	if err != nil {
		return query.Query{}, fmt.Errorf("decode embedding for %s: %w", id, err)
	}

	styles := make([]style.Detection, 0, len(rec.Styles))
	for _, d := range rec.Styles {
		styles = append(styles, style.Detection{Name: d.Name, Confidence: d.Confidence})
	}

	return query.Reconstruct(id, vec, styles, query.ColorIntent(rec.Color), rec.CreatedAt), nil
}

// Delete removes a persisted query.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.kv.Del(ctx, key(id)); err != nil {
		return fmt.Errorf("delete query %s: %w", id, err)
	}
	return nil
}

func key(id uuid.UUID) string {
	return keyPrefix + id.String()
}

func encodeVector(vec []float32) string {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func decodeVector(s string) ([]float32, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
