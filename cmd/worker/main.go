// Package main provides the entry point for the worker service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/switchboard/internal/config"
	"github.com/thebtf/switchboard/internal/worker"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	dataDir := flag.String("data-dir", "", "Data directory (defaults to ~/.switchboard)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

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

	log.Info().
		Str("version", Version).
		Str("dataDir", cfg.DataDir).
		Msg("Starting switchboard worker")

	svc, err := worker.NewService(Version, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create service")
	}

	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start service")
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Received shutdown signal")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := svc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	log.Info().Msg("Worker shutdown complete")
}
