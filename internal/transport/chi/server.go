// Package chi exposes the search core over HTTP.
package chi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/location"
	"github.com/inkdex/searchd/internal/domain/page"
	"github.com/inkdex/searchd/internal/domain/query"
	"github.com/inkdex/searchd/internal/logger"
	healthuc "github.com/inkdex/searchd/internal/usecase/health"
)

// Error response codes.
const (
	codeBadRequest        = "bad_request"
	codeValidationFailed  = "validation_failed"
	codeQueryNotFound     = "query_not_found"
	codeEmbeddingProvider = "embedding_provider_error"
	codeSearchTimeout     = "search_timeout"
	codeInternalError     = "internal_error"
)

// Internal interfaces for substitution in tests.
type searchService interface {
	Register(ctx context.Context, text string, image []byte) (query.Query, error)
	Search(
		ctx context.Context, id uuid.UUID,
		loc *location.Filter, styleName string, p page.Params,
	) (page.Page, error)
	SearchText(
		ctx context.Context, text string,
		loc *location.Filter, styleName string, p page.Params,
	) (page.Page, error)
}

type healthService interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers for the search API. Handlers log
// through the request-scoped logger stored in the context by the
// wide-event middleware so entries carry the request ID.
type Server struct {
	search        searchService
	health        healthService
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search searchService, health healthService) *Server {
	s := &Server{
		search: search,
		health: health,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrVectorNotFinite, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrQueryNotFound, http.StatusNotFound, codeQueryNotFound),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrClassifierUnavailable, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrSearchTimeout, http.StatusGatewayTimeout, codeSearchTimeout),
	}
	return s
}

// Routes mounts the API routes on the given router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/search", s.RegisterQuery)
	r.Get("/search/query", s.SearchByText)
	r.Get("/search/{queryID}", s.SearchByID)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// RegisterQuery handles POST /search: embed, classify, persist, return the query ID.
func (s *Server) RegisterQuery(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	image, err := req.imageBytes()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	q, err := s.search.Register(r.Context(), req.Text, image)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponseFromQuery(&q))
}

// SearchByID handles GET /search/{queryID}: the stateful page fetch.
func (s *Server) SearchByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "queryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "queryID must be a UUID")
		return
	}

	params, err := parseSearchParams(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	start := time.Now()
	result, err := s.search.Search(r.Context(), id, params.loc, params.style, params.page)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pageToResponse(result, time.Since(start)))
}

// SearchByText handles GET /search/query: the stateless page fetch.
func (s *Server) SearchByText(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("q")

	params, err := parseSearchParams(r)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	start := time.Now()
	result, err := s.search.SearchText(r.Context(), text, params.loc, params.style, params.page)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, pageToResponse(result, time.Since(start)))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrVectorDimMismatch,
		domain.ErrVectorNotFinite,
		domain.ErrQueryNotFound,
		domain.ErrEmbeddingProviderError,
		domain.ErrClassifierUnavailable,
		domain.ErrSearchTimeout,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
