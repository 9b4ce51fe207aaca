// Package server provides the HTTP server that wires all services together.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/notesearch/note-search/internal/analytics"
	"github.com/notesearch/note-search/internal/bus"
	"github.com/notesearch/note-search/internal/cache"
	"github.com/notesearch/note-search/internal/config"
	"github.com/notesearch/note-search/internal/content"
	"github.com/notesearch/note-search/internal/embed"
	"github.com/notesearch/note-search/internal/history"
	"github.com/notesearch/note-search/internal/index"
	"github.com/notesearch/note-search/internal/pkg/logger"
	"github.com/notesearch/note-search/internal/pkg/middleware"
	"github.com/notesearch/note-search/internal/qdrant"
	"github.com/notesearch/note-search/internal/rank"
	"github.com/notesearch/note-search/internal/rank/fusion"
	"github.com/notesearch/note-search/internal/search"
)

// Server wires the search subsystem together behind one HTTP listener.
type Server struct {
	cfg        *config.Config
	version    string
	log        *logger.Logger
	httpServer *http.Server

	// Services
	bus       bus.Bus
	cache     cache.Cache
	history   history.Store
	analytics analytics.Store
	contents  *content.MemoryStore
	qdrant    *qdrant.Client
	indexer   *index.Indexer
	search    *search.Service
	recorder  *search.Recorder

	handler *search.Handler
	limiter *middleware.RateLimiter

	mu      sync.RWMutex
	started bool
}

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// New creates a server with all dependencies built from cfg.
func New(cfg *config.Config, version string, log *logger.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		version:  version,
		log:      log,
		contents: content.NewMemoryStore(),
	}
	ctx := context.Background()

	b, err := buildBus(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}
	s.bus = b

	c, err := buildCache(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}
	s.cache = c

	h, err := buildHistory(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("creating history store: %w", err)
	}
	s.history = h

	a, err := buildAnalytics(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("creating analytics store: %w", err)
	}
	s.analytics = a

	var (
		vector   rank.VectorSearcher
		embedder embed.Embedder
	)
	if cfg.Qdrant.Enabled {
		qc, err := qdrant.NewClient(qdrant.ClientConfig{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		})
		if err != nil {
			return nil, fmt.Errorf("creating qdrant client: %w", err)
		}
		s.qdrant = qc
		vector = qdrant.NewSearcher(qc, s.contents, cfg.Qdrant.Collection)
	}
	if cfg.Embedding.Enabled {
		embedder = embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	}

	// Without qdrant the embedder still enables semantic ranking over an
	// in-process scan of the content store.
	if vector == nil && embedder != nil {
		vector = rank.NewStoreVectorSearcher(s.contents)
	}

	searchCfg := search.DefaultConfig()
	searchCfg.DefaultLimit = cfg.Search.DefaultLimit
	searchCfg.MaxLimit = cfg.Search.MaxLimit
	searchCfg.Weights = fusion.Weights{
		Text:   cfg.Search.TextWeight,
		Vector: cfg.Search.VectorWeight,
	}
	searchCfg.SimilarityThreshold = cfg.Search.SimilarityThreshold

	text := rank.NewTextRanker(s.contents)
	s.search = search.NewService(text, vector, embedder, s.cache, s.bus, log, searchCfg)

	var vectorIndex index.VectorIndex
	if s.qdrant != nil {
		vectorIndex = s.qdrant
	}
	s.indexer = index.NewIndexer(s.contents, vectorIndex, cfg.Qdrant.Collection, s.bus, log)

	s.recorder = search.NewRecorder(s.history, s.analytics, s.cache, log)
	if err := s.recorder.Subscribe(ctx, s.bus); err != nil {
		return nil, fmt.Errorf("subscribing recorder: %w", err)
	}

	s.handler = search.NewHandler(s.search, s.history, s.analytics, log)

	if cfg.Security.RateLimit > 0 {
		limiterCfg := middleware.DefaultRateLimiterConfig()
		limiterCfg.RequestsPerSecond = float64(cfg.Security.RateLimit)
		limiterCfg.Burst = cfg.Security.RateLimit * 2
		s.limiter = middleware.NewRateLimiter(limiterCfg)
	}

	return s, nil
}

// Indexer exposes the content ingestion seam to the host application.
func (s *Server) Indexer() *index.Indexer {
	return s.indexer
}

// Start starts the HTTP server. It blocks until the listener stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	if s.qdrant != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.qdrant.EnsureCollection(ctx, s.cfg.Qdrant.Collection, s.cfg.Embedding.Dimensions)
		cancel()
		if err != nil {
			// Vector search degrades to keyword until qdrant comes back.
			s.log.WithError(err).Warn("qdrant collection not ready")
		}
	}

	addr := s.cfg.Address()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.log.Info("Starting HTTP server", "addr", addr, "version", s.version)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server and closes all backends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, DefaultShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Error("HTTP shutdown error")
		}
	}

	if s.bus != nil {
		s.bus.Close()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.history != nil {
		s.history.Close()
	}
	if s.analytics != nil {
		s.analytics.Close()
	}
	if s.qdrant != nil {
		s.qdrant.Close()
	}

	s.started = false
	s.log.Info("Server stopped")
	return nil
}

// Health reports whether the server is accepting requests.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// routes assembles the handler chain: mux → rate limit → CORS → logging.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	s.handler.RegisterRoutes(mux)
	mux.HandleFunc("GET /health", s.handleHealth)

	var handler http.Handler = mux
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = search.CORSMiddleware(handler)
	return s.withLogging(handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{
		"status":  "ok",
		"version": s.version,
	}
	if s.qdrant != nil {
		if err := s.qdrant.HealthCheck(r.Context()); err != nil {
			status["qdrant"] = "unreachable"
			status["status"] = "degraded"
		} else {
			status["qdrant"] = "ok"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) withLogging(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		handler.ServeHTTP(wrapped, r)

		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func buildBus(cfg *config.Config, log *logger.Logger) (bus.Bus, error) {
	switch cfg.Bus.Type {
	case "kafka":
		return bus.NewKafkaBus(bus.KafkaConfig{
			Brokers:       bus.ParseKafkaBrokers(cfg.Bus.KafkaBrokers),
			ConsumerGroup: cfg.Bus.ConsumerGroup,
			ClientID:      "note-search",
		}, log)
	default:
		return bus.NewMemoryBus(log), nil
	}
}

func buildCache(ctx context.Context, cfg *config.Config, log *logger.Logger) (cache.Cache, error) {
	switch cfg.Cache.Type {
	case "redis":
		return cache.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Cache.TTL(), log)
	default:
		return cache.NewMemoryCacheTTL(cfg.Cache.TTL()), nil
	}
}

func buildHistory(ctx context.Context, cfg *config.Config, log *logger.Logger) (history.Store, error) {
	switch cfg.History.Type {
	case "redis":
		return history.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
	default:
		return history.NewMemoryStore(), nil
	}
}

func buildAnalytics(ctx context.Context, cfg *config.Config, log *logger.Logger) (analytics.Store, error) {
	switch cfg.Analytics.Type {
	case "redis":
		return analytics.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Analytics.Retention(), log)
	default:
		return analytics.NewMemoryStore(), nil
	}
}
