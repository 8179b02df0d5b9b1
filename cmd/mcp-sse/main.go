// Package main provides the MCP-over-SSE server entry point for switchboard.
package main

import (
	"context"
	"crypto/subtle"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/switchboard/internal/cache"
	"github.com/thebtf/switchboard/internal/config"
	"github.com/thebtf/switchboard/internal/db"
	"github.com/thebtf/switchboard/internal/db/gorm"
	"github.com/thebtf/switchboard/internal/db/sqlite"
	"github.com/thebtf/switchboard/internal/embedding"
	"github.com/thebtf/switchboard/internal/mcp"
	"github.com/thebtf/switchboard/internal/orchestrator"
	"github.com/thebtf/switchboard/internal/router"
	"github.com/thebtf/switchboard/internal/routes"
	"github.com/thebtf/switchboard/internal/search"
	"github.com/thebtf/switchboard/internal/tokens"
)

// DefaultSSEPort is one above the worker's HTTP port.
const DefaultSSEPort = 38181

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	port := flag.Int("port", DefaultSSEPort, "HTTP port for MCP SSE")
	dataDir := flag.String("data-dir", "", "Data directory (defaults to ~/.switchboard)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	listenPort := *port
	if envPort := os.Getenv("SWITCHBOARD_MCP_SSE_PORT"); envPort != "" {
		if parsed, err := strconv.Atoi(envPort); err == nil && parsed > 0 {
			listenPort = parsed
		}
	}

	cfg, err := config.Load(*dataDir)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load settings, using defaults")
		cfg = config.Default()
		if *dataDir != "" {
			cfg.DataDir = *dataDir
		}
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	config.ApplyLogLevel(cfg.LogLevel)

	if err := cfg.EnsureDataDir(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down MCP SSE server")
		cancel()
	}()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer store.Close()

	engine := buildEngine(cfg, store)
	mcpSrv := mcp.NewServer(mcp.Deps{Engine: engine, Version: Version})
	sseServer := server.NewSSEServer(mcpSrv)

	var handler http.Handler = sseServer
	token := os.Getenv("SWITCHBOARD_SSE_TOKEN")
	if token != "" {
		handler = tokenAuthMiddleware(token)(handler)
	}

	mux := http.NewServeMux()
	mux.Handle("/sse", handler)
	mux.Handle("/message", handler)

	addr := fmt.Sprintf(":%d", listenPort)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- httpServer.ListenAndServe()
	}()

	log.Info().
		Int("port", listenPort).
		Bool("tokenAuthEnabled", token != "").
		Str("version", Version).
		Msg("Starting MCP SSE server")

	select {
	case err := <-httpErrCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("MCP SSE server error")
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("MCP SSE server shutdown failed")
		}
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("SSE session shutdown failed")
		}
	}
}

func tokenAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			providedToken := r.Header.Get("X-Auth-Token")
			if providedToken == "" {
				if authHeader := r.Header.Get("Authorization"); len(authHeader) >= 7 && authHeader[:7] == "Bearer " {
					providedToken = authHeader[7:]
				}
			}

			if subtle.ConstantTimeCompare([]byte(providedToken), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// openStore opens the PostgreSQL store when a database URL is configured
// and falls back to the embedded SQLite store otherwise.
func openStore(cfg *config.Config) (db.Store, error) {
	if cfg.DatabaseURL != "" {
		store, err := gorm.NewStore(gorm.Config{
			DSN:           cfg.DatabaseURL,
			MaxConns:      cfg.MaxConns,
			EmbeddingDims: cfg.EmbeddingDim,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Using PostgreSQL store")
		return gorm.NewWorkspaceStore(store), nil
	}

	store, err := sqlite.NewStore(sqlite.StoreConfig{
		Path:     cfg.DBPath(),
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", cfg.DBPath()).Msg("Using embedded SQLite store")
	return sqlite.NewWorkspaceStore(store), nil
}

// buildEngine assembles the orchestrator over the store, the same assembly
// the worker performs during async initialization.
func buildEngine(cfg *config.Config, store db.Store) *orchestrator.Orchestrator {
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
	return orchestrator.New(cfg, store, router.New(cfg), handlers, resultCache)
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
		log.Warn().Err(err).Msg("Hosted embeddings unavailable, using feature-hash embedder")
	}
	return embedding.NewStaticClient(cfg.EmbeddingDim)
}
