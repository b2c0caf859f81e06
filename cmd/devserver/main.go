package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopsync-dev/shopsync/internal/config"
	"github.com/shopsync-dev/shopsync/internal/devserver"
	"github.com/shopsync-dev/shopsync/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The dev server logs requests, so default to info unless set explicitly
	level := cfg.Logging.Level
	if os.Getenv("SHOPSYNC_LOG_LEVEL") == "" {
		level = "info"
	}
	log := logger.Init(level, cfg.Logging.Format)

	srv, err := devserver.New(cfg.Dev, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create dev server")
	}

	log.Info().Str("addr", cfg.Dev.Addr).Str("database", cfg.Dev.DatabaseURL).Msg("Starting shopsync dev server...")

	// Start HTTP server (this blocks until interrupted)
	if err := srv.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
