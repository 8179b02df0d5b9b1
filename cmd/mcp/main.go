// Package main provides the MCP server entry point for switchboard.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

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

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	dataDir := flag.String("data-dir", "", "Data directory (defaults to ~/.switchboard)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// MCP uses stdout for the protocol, so log to stderr only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

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
		log.Info().Msg("Shutting down MCP server")
		cancel()
	}()

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store")
	}
	defer store.Close()

	engine := buildEngine(cfg, store)
	mcpSrv := mcp.NewServer(mcp.Deps{Engine: engine, Version: Version})

	log.Info().Str("version", Version).Msg("Starting MCP server (stdio)")

	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("MCP server error")
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
