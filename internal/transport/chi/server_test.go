package chi

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/location"
	"github.com/inkdex/searchd/internal/domain/page"
	"github.com/inkdex/searchd/internal/domain/query"
	"github.com/inkdex/searchd/internal/domain/rank"
	"github.com/inkdex/searchd/internal/domain/style"
	"github.com/inkdex/searchd/internal/logger"
	healthuc "github.com/inkdex/searchd/internal/usecase/health"
)

type mockSearch struct {
	registerFn func(ctx context.Context, text string, image []byte) (query.Query, error)
	searchFn   func(ctx context.Context, id uuid.UUID,
		loc *location.Filter, styleName string, p page.Params) (page.Page, error)
	searchTextFn func(ctx context.Context, text string,
		loc *location.Filter, styleName string, p page.Params) (page.Page, error)
}

func (m *mockSearch) Register(ctx context.Context, text string, image []byte) (query.Query, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, text, image)
	}
	return query.Query{}, nil
}

func (m *mockSearch) Search(ctx context.Context, id uuid.UUID,
	loc *location.Filter, styleName string, p page.Params) (page.Page, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, id, loc, styleName, p)
	}
	return page.Page{}, nil
}

func (m *mockSearch) SearchText(ctx context.Context, text string,
	loc *location.Filter, styleName string, p page.Params) (page.Page, error) {
	if m.searchTextFn != nil {
		return m.searchTextFn(ctx, text, loc, styleName, p)
	}
	return page.Page{}, nil
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

func newTestRouter(search searchService, health healthService) http.Handler {
	s := NewServer(search, health)
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func testQuery(t *testing.T) query.Query {
	t.Helper()
	vec := make([]float32, domain.VectorDim)
	vec[0] = 1
	q, err := query.New(vec,
		[]style.Detection{{Name: "realism", Confidence: 0.8}},
		query.ColorFull, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	return q
}

func TestRegisterQuery(t *testing.T) {
	q := testQuery(t)
	search := &mockSearch{
		registerFn: func(_ context.Context, text string, image []byte) (query.Query, error) {
			if text != "dragon sleeve" {
				t.Errorf("text = %q", text)
			}
			if len(image) != 3 {
				t.Errorf("image len = %d", len(image))
			}
			return q, nil
		},
	}
	router := newTestRouter(search, &mockHealth{})

	body, _ := json.Marshal(map[string]string{
		"text":        "dragon sleeve",
		"imageBase64": base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
	})
	rec := doRequest(t, router, http.MethodPost, "/search", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp registerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.QueryID != q.ID().String() {
		t.Errorf("queryId = %s", resp.QueryID)
	}
	if len(resp.DetectedStyles) != 1 || resp.DetectedStyles[0].Name != "realism" {
		t.Errorf("styles = %+v", resp.DetectedStyles)
	}
	if resp.IsColor == nil || !*resp.IsColor {
		t.Errorf("isColor = %v, want true", resp.IsColor)
	}
}

func TestRegisterQuery_BadBody(t *testing.T) {
	router := newTestRouter(&mockSearch{}, &mockHealth{})

	rec := doRequest(t, router, http.MethodPost, "/search", []byte("{not json"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != codeBadRequest {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestRegisterQuery_BadBase64(t *testing.T) {
	router := newTestRouter(&mockSearch{}, &mockHealth{})

	body, _ := json.Marshal(map[string]string{"imageBase64": "not-base64!!!"})
	rec := doRequest(t, router, http.MethodPost, "/search", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRegisterQuery_ValidationError(t *testing.T) {
	search := &mockSearch{
		registerFn: func(context.Context, string, []byte) (query.Query, error) {
			return query.Query{}, fmt.Errorf("text too short: %w", domain.ErrValidation)
		},
	}
	router := newTestRouter(search, &mockHealth{})

	body, _ := json.Marshal(map[string]string{"text": "ab"})
	rec := doRequest(t, router, http.MethodPost, "/search", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp errorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != codeValidationFailed {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestSearchByID(t *testing.T) {
	id := uuid.New()
	search := &mockSearch{
		searchFn: func(_ context.Context, gotID uuid.UUID,
			loc *location.Filter, styleName string, p page.Params) (page.Page, error) {
			if gotID != id {
				t.Errorf("id = %v", gotID)
			}
			if loc == nil || loc.Country() != "us" {
				t.Errorf("location = %+v", loc)
			}
			if styleName != "realism" {
				t.Errorf("style = %q", styleName)
			}
			if p.Offset() != 20 || p.Limit() != 10 {
				t.Errorf("page = %d/%d", p.Offset(), p.Limit())
			}
			return page.Page{
				Artists: []rank.ArtistResult{{
					ArtistID:      "artist-1",
					MaxSimilarity: 0.9,
					Score:         0.92,
					Images: []rank.Candidate{
						{ArtistID: "artist-1", ImageID: "img-1", Similarity: 0.9, Likes: 12},
					},
				}},
				TotalCount: 31,
				Offset:     20,
				Limit:      10,
				HasMore:    true,
			}, nil
		},
	}
	router := newTestRouter(search, &mockHealth{})

	target := "/search/" + id.String() + "?country=us&style=realism&offset=20&limit=10"
	rec := doRequest(t, router, http.MethodGet, target, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp pageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalCount != 31 || !resp.HasMore {
		t.Errorf("page meta = %+v", resp)
	}
	if len(resp.Artists) != 1 || resp.Artists[0].ArtistID != "artist-1" {
		t.Errorf("artists = %+v", resp.Artists)
	}
	if len(resp.Artists[0].Images) != 1 || resp.Artists[0].Images[0].ImageID != "img-1" {
		t.Errorf("images = %+v", resp.Artists[0].Images)
	}
}

func TestSearchByID_BadUUID(t *testing.T) {
	router := newTestRouter(&mockSearch{}, &mockHealth{})

	rec := doRequest(t, router, http.MethodGet, "/search/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSearchByID_NotFound(t *testing.T) {
	search := &mockSearch{
		searchFn: func(context.Context, uuid.UUID,
			*location.Filter, string, page.Params) (page.Page, error) {
			return page.Page{}, fmt.Errorf("resolve query: %w", domain.ErrQueryNotFound)
		},
	}
	router := newTestRouter(search, &mockHealth{})

	rec := doRequest(t, router, http.MethodGet, "/search/"+uuid.New().String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp errorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != codeQueryNotFound {
		t.Errorf("code = %s", resp.Code)
	}
}

func TestSearchByID_ParamValidation(t *testing.T) {
	router := newTestRouter(&mockSearch{}, &mockHealth{})
	id := uuid.New().String()

	targets := []string{
		"/search/" + id + "?offset=abc",
		"/search/" + id + "?limit=-5",
		"/search/" + id + "?limit=101",
		"/search/" + id + "?offset=10001",
		"/search/" + id + "?city=berlin", // city without country
	}
	for _, target := range targets {
		rec := doRequest(t, router, http.MethodGet, target, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestSearchByID_Timeout(t *testing.T) {
	search := &mockSearch{
		searchFn: func(context.Context, uuid.UUID,
			*location.Filter, string, page.Params) (page.Page, error) {
			return page.Page{}, fmt.Errorf("%w: retrieve candidates", domain.ErrSearchTimeout)
		},
	}
	router := newTestRouter(search, &mockHealth{})

	rec := doRequest(t, router, http.MethodGet, "/search/"+uuid.New().String(), nil)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSearchByText(t *testing.T) {
	search := &mockSearch{
		searchTextFn: func(_ context.Context, text string,
			_ *location.Filter, _ string, _ page.Params) (page.Page, error) {
			if text != "dragon sleeve" {
				t.Errorf("text = %q", text)
			}
			return page.Page{TotalCount: 2, Limit: 20}, nil
		},
	}
	router := newTestRouter(search, &mockHealth{})

	rec := doRequest(t, router, http.MethodGet, "/search/query?q=dragon+sleeve", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestSearchByText_ProviderDown(t *testing.T) {
	search := &mockSearch{
		searchTextFn: func(context.Context, string,
			*location.Filter, string, page.Params) (page.Page, error) {
			return page.Page{}, fmt.Errorf("embed query text: %w", domain.ErrEmbeddingProviderError)
		},
	}
	router := newTestRouter(search, &mockHealth{})

	rec := doRequest(t, router, http.MethodGet, "/search/query?q=dragon+sleeve", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		health := &mockHealth{report: healthuc.Report{
			Status: healthuc.Healthy,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK},
		}}
		router := newTestRouter(&mockSearch{}, health)

		rec := doRequest(t, router, http.MethodGet, "/health", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
			t.Errorf("body = %s", rec.Body)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		health := &mockHealth{report: healthuc.Report{
			Status: healthuc.Degraded,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckError},
		}}
		router := newTestRouter(&mockSearch{}, health)

		rec := doRequest(t, router, http.MethodGet, "/health", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestInternalErrorIsOpaque(t *testing.T) {
	search := &mockSearch{
		searchFn: func(context.Context, uuid.UUID,
			*location.Filter, string, page.Params) (page.Page, error) {
			return page.Page{}, fmt.Errorf("pq: relation artists does not exist")
		},
	}
	router := newTestRouter(search, &mockHealth{})

	rec := doRequest(t, router, http.MethodGet, "/search/"+uuid.New().String(), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "relation") {
		t.Error("internal details leaked to the client")
	}
}

func TestHandlersUseRequestScopedLogger(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	reqLogger := zap.New(core)

	search := &mockSearch{
		searchTextFn: func(context.Context, string,
			*location.Filter, string, page.Params) (page.Page, error) {
			return page.Page{}, domain.ErrSearchTimeout
		},
	}
	s := NewServer(search, &mockHealth{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.ContextWithLogger(req.Context(), reqLogger)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	s.Routes(r)

	rec := doRequest(t, r, http.MethodGet, "/search/query?q=koi", nil)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", rec.Code)
	}

	if got := logs.FilterMessage("domain error").Len(); got != 1 {
		t.Errorf("request logger saw %d domain error entries, want 1", got)
	}
}
