// Package worker provides the switchboard worker service.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/switchboard/internal/cache"
	"github.com/thebtf/switchboard/internal/config"
	"github.com/thebtf/switchboard/internal/db"
	"github.com/thebtf/switchboard/internal/db/gorm"
	"github.com/thebtf/switchboard/internal/db/sqlite"
	"github.com/thebtf/switchboard/internal/embedding"
	"github.com/thebtf/switchboard/internal/orchestrator"
	"github.com/thebtf/switchboard/internal/router"
	"github.com/thebtf/switchboard/internal/routes"
	"github.com/thebtf/switchboard/internal/search"
	"github.com/thebtf/switchboard/internal/tokens"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout is the server-side budget for one request.
	DefaultHTTPTimeout = 30 * time.Second

	// ReadyPollInterval is how often WaitReady checks initialization status.
	ReadyPollInterval = 50 * time.Millisecond
)

// Service runs the query engine behind an HTTP API.
type Service struct {
	// Version of the worker binary
	version string

	// Configuration
	config *config.Config

	// Storage and engine, set by initializeAsync
	store     db.Store
	orch      *orchestrator.Orchestrator
	searchMgr *search.Manager

	// HTTP server
	httpRouter *chi.Mux
	server     *http.Server
	startTime  time.Time

	// Rate limiting
	limiter *PerClientRateLimiter

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Initialization state (for deferred init)
	ready     atomic.Bool
	initError error
	initMu    sync.RWMutex
}

// NewService creates a worker service with deferred initialization. The
// HTTP router answers health checks immediately; store migrations and
// engine assembly happen in the background.
func NewService(version string, cfg *config.Config) (*Service, error) {
	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:    version,
		config:     cfg,
		httpRouter: chi.NewRouter(),
		limiter:    NewPerClientRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		ctx:        ctx,
		cancel:     cancel,
		startTime:  time.Now(),
	}

	svc.setupMiddleware()
	svc.setupRoutes()

	go svc.initializeAsync()

	return svc, nil
}

// initializeAsync performs heavy initialization in the background: store
// migrations, embedder selection, and engine assembly.
func (s *Service) initializeAsync() {
	log.Info().Msg("Starting async initialization")

	if err := s.config.EnsureDataDir(); err != nil {
		s.setInitError(fmt.Errorf("ensure data dir: %w", err))
		return
	}

	store, err := s.openStore()
	if err != nil {
		s.setInitError(fmt.Errorf("init store: %w", err))
		return
	}

	orch, manager := buildEngine(s.config, store)

	s.initMu.Lock()
	s.store = store
	s.orch = orch
	s.searchMgr = manager
	s.initMu.Unlock()

	s.ready.Store(true)
	log.Info().Msg("Async initialization complete, service ready")

	s.wg.Add(1)
	go s.watchSettings()
}

// openStore opens the PostgreSQL store when a database URL is configured
// and falls back to the embedded SQLite store otherwise.
func (s *Service) openStore() (db.Store, error) {
	if s.config.DatabaseURL != "" {
		store, err := gorm.NewStore(gorm.Config{
			DSN:           s.config.DatabaseURL,
			MaxConns:      s.config.MaxConns,
			EmbeddingDims: s.config.EmbeddingDim,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Using PostgreSQL store")
		return gorm.NewWorkspaceStore(store), nil
	}

	store, err := sqlite.NewStore(sqlite.StoreConfig{
		Path:     s.config.DBPath(),
		MaxConns: s.config.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", s.config.DBPath()).Msg("Using embedded SQLite store")
	return sqlite.NewWorkspaceStore(store), nil
}

// buildEngine assembles the orchestrator over a store: embedder, search
// manager, the six route handlers, and the result cache. The MCP entry
// point performs the same assembly over its own store.
func buildEngine(cfg *config.Config, store db.Store) (*orchestrator.Orchestrator, *search.Manager) {
	embedder := buildEmbedder(cfg)
	manager := search.NewManager(store, cfg)
	counter := tokens.NewCounter()

	database := routes.NewDatabaseHandler(store, cfg)
	retrieval := routes.NewRetrievalHandler(embedder, manager, counter, cfg)
	handlers := []routes.Handler{
		database,
		retrieval,
		routes.NewAggregateHandler(store),
		routes.NewCombinedHandler(database, retrieval),
		routes.NewDirectHandler(),
		routes.NewActionHandler(),
	}

	resultCache := cache.New(cfg.CacheMaxEntries, cfg.CacheTTL())
	return orchestrator.New(cfg, store, router.New(cfg), handlers, resultCache), manager
}

// buildEmbedder selects the embedding client: hosted when an API key is
// present in the environment, the deterministic feature-hash embedder
// otherwise.
func buildEmbedder(cfg *config.Config) embedding.Client {
	apiKey := os.Getenv("SWITCHBOARD_EMBEDDING_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey != "" {
		client, err := embedding.NewOpenAIClient(cfg.EmbeddingEndpoint, apiKey, cfg.EmbeddingModel, cfg.EmbeddingDim)
		if err == nil {
			log.Info().Str("model", cfg.EmbeddingModel).Msg("Using hosted embeddings")
			return client
		}
		log.Warn().Err(err).Msg("Hosted embedding client unavailable, using feature hashing")
	}
	return embedding.NewStaticClient(cfg.EmbeddingDim)
}

// watchSettings reloads the settings file on change and applies the
// subset of settings that are safe to take live.
func (s *Service) watchSettings() {
	defer s.wg.Done()

	err := config.Watch(s.ctx, s.config.DataDir, s.applySettings)
	if err != nil && s.ctx.Err() == nil {
		log.Warn().Err(err).Msg("Settings watcher stopped")
	}
}

// applySettings takes log level and cache TTL changes live. Everything
// else requires a restart.
func (s *Service) applySettings(cfg *config.Config) {
	config.ApplyLogLevel(cfg.LogLevel)

	s.initMu.RLock()
	orch := s.orch
	s.initMu.RUnlock()
	if orch != nil && orch.Cache().TTL() != cfg.CacheTTL() {
		orch.Cache().SetTTL(cfg.CacheTTL())
		log.Info().Dur("ttl", cfg.CacheTTL()).Msg("Result cache TTL updated")
	}
}

// setInitError records an initialization error.
func (s *Service) setInitError(err error) {
	s.initMu.Lock()
	s.initError = err
	s.initMu.Unlock()
	log.Error().Err(err).Msg("Async initialization failed")
}

// GetInitError returns any initialization error.
func (s *Service) GetInitError() error {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initError
}

// WaitReady blocks until initialization completes, fails, or ctx expires.
func (s *Service) WaitReady(ctx context.Context) error {
	for {
		if s.ready.Load() {
			return nil
		}
		if err := s.GetInitError(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ReadyPollInterval):
		}
	}
}

// Store returns the workspace store once initialization has completed,
// nil before that.
func (s *Service) Store() db.Store {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.store
}

// engine returns the orchestrator. Handlers behind requireReady may assume
// a non-nil result: the orchestrator is set before ready flips true.
func (s *Service) engine() *orchestrator.Orchestrator {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.orch
}

// Handler exposes the HTTP router.
func (s *Service) Handler() http.Handler {
	return s.httpRouter
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.httpRouter.Use(middleware.RealIP)
	s.httpRouter.Use(requestLogger)
	s.httpRouter.Use(middleware.Recoverer)
	s.httpRouter.Use(middleware.Timeout(DefaultHTTPTimeout))
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	// Liveness and build info answer immediately so callers can probe
	// during initialization.
	s.httpRouter.Get("/health", s.handleHealth)
	s.httpRouter.Get("/version", s.handleVersion)

	// Readiness returns 200 only when the engine is assembled.
	s.httpRouter.Get("/ready", s.handleReady)

	// Routes that require the engine.
	s.httpRouter.Group(func(r chi.Router) {
		r.Use(PerClientRateLimitMiddleware(s.limiter))
		r.Use(s.requireReady)

		r.Post("/api/v1/query", s.handleQuery)
		r.Get("/api/v1/workspaces/{workspaceID}/context", s.handleWorkspaceContext)
		r.Get("/api/v1/stats", s.handleStats)
		r.Delete("/api/v1/cache/{workspaceID}", s.handleCacheInvalidate)
	})
}

// Start starts the HTTP server. The server accepts connections
// immediately; engine initialization continues in the background.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:           s.httpRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().
		Str("addr", s.server.Addr).
		Str("version", s.version).
		Msg("Worker HTTP server started, initialization in progress")

	return nil
}

// Shutdown drains in-flight requests, then closes the store.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	s.initMu.RLock()
	store := s.store
	s.initMu.RUnlock()
	if store != nil {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Store close error")
		}
	}

	s.wg.Wait()

	log.Info().Msg("Worker service shutdown complete")
	return nil
}
