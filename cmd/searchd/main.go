package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/inkdex/searchd/internal/config"
	"github.com/inkdex/searchd/internal/db"
	dbRedis "github.com/inkdex/searchd/internal/db/redis"
	"github.com/inkdex/searchd/internal/domain"
	"github.com/inkdex/searchd/internal/domain/rank"
	"github.com/inkdex/searchd/internal/domain/style"
	logpkg "github.com/inkdex/searchd/internal/logger"
	"github.com/inkdex/searchd/internal/metrics"
	candidaterepo "github.com/inkdex/searchd/internal/repository/candidate"
	"github.com/inkdex/searchd/internal/repository/embcache"
	"github.com/inkdex/searchd/internal/repository/querystore"
	chiTransport "github.com/inkdex/searchd/internal/transport/chi"
	"github.com/inkdex/searchd/internal/transport/clip"
	openaiEmb "github.com/inkdex/searchd/internal/transport/openai"
	"github.com/inkdex/searchd/internal/transport/stylenet"
	healthuc "github.com/inkdex/searchd/internal/usecase/health"
	searchuc "github.com/inkdex/searchd/internal/usecase/search"
	"github.com/inkdex/searchd/internal/version"
)

func main() {
	// Load .env for local dev (optional)
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting searchd API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	ctx := context.Background()

	// Portfolio database (Postgres/pgvector)
	pool, err := newPgxPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	// Query store / embedding cache backend (Redis)
	kv, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create Redis store", zap.Error(err))
	}
	defer kv.Close()

	if err := kv.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessSec)*time.Second); err != nil {
		logger.Fatal("Redis not ready", zap.Error(err))
	}
	logger.Info("Connected to databases")

	metrics.RegisterSearchMetrics()

	textEmb := buildTextEmbedder(cfg.Embedding, kv, logger)

	var imageEmb domain.ImageEmbedder
	if cfg.Embedding.ImageEndpoint != "" {
		imageEmb = clip.New(cfg.Embedding.ImageEndpoint, time.Duration(cfg.Search.TimeoutSec)*time.Second)
	}

	var classifier searchuc.Classifier
	if cfg.Classifier.Endpoint != "" {
		thresholds, err := style.NewThresholds(cfg.Classifier.Thresholds, cfg.Classifier.Fallback)
		if err != nil {
			logger.Fatal("Invalid classifier thresholds", zap.Error(err))
		}
		classifier = stylenet.New(cfg.Classifier.Endpoint, thresholds, 5*time.Second)
	}

	candRepo := candidaterepo.New(pool, cfg.Ranking.MaxCandidates, logger)
	queryStore := querystore.New(kv, time.Duration(cfg.Search.QueryTTLHours)*time.Hour)

	searchSvc, err := searchuc.New(
		candRepo, queryStore, textEmb, imageEmb, classifier,
		searchuc.Config{
			SimilarityFloor: cfg.Ranking.SimilarityFloor,
			Weights: rank.Weights{
				StyleBoostCap: cfg.Ranking.StyleBoostCap,
				ColorBonus:    cfg.Ranking.ColorBonus,
				ColorPenalty:  cfg.Ranking.ColorPenalty,
			},
			TopImages:        cfg.Ranking.TopImages,
			Timeout:          time.Duration(cfg.Search.TimeoutSec) * time.Second,
			HybridTextWeight: cfg.Embedding.HybridTextWeight,
		},
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to create search service", zap.Error(err))
	}
	searchSvc.WithObserver(searchuc.NewLogObserver(logger))

	healthSvc := healthuc.New(candRepo, kv, newEmbeddingHealthChecker(textEmb))

	server := chiTransport.NewServer(searchSvc, healthSvc)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func newPgxPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.ConnConfig.ConnectTimeout = time.Duration(cfg.ConnectSec) * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ReadinessSec)*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// buildTextEmbedder assembles the decorator chain: OpenAI -> Cached.
// The cache keeps stateless page fetches on one identical vector.
func buildTextEmbedder(cfg config.EmbeddingConfig, kv db.Store, logger *zap.Logger) domain.TextEmbedder {
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Logger:  logger,
	})

	if kv == nil {
		return base
	}
	return embcache.New(base, kv, metrics.EmbeddingCacheTotal, logger)
}

// embeddingHealthChecker wraps a TextEmbedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.TextEmbedder
}

func newEmbeddingHealthChecker(embedder domain.TextEmbedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
