package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentineltrading/execution-core/internal/config"
	"github.com/sentineltrading/execution-core/internal/engine"
	"github.com/sentineltrading/execution-core/internal/server"
	"github.com/sentineltrading/execution-core/pkg/logger"
)

// Exit codes, per the engine's documented failure taxonomy: 0 normal
// shutdown, 1 configuration error, 2 ledger corruption, 3 a required
// upstream dependency (a database, the configured data directory) could
// not be opened at all.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitLedgerCorrupt  = 2
	exitDependencyDown = 3
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	logger.SetGlobalLogger(log)

	log.Info().Msg("starting execution core")

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		os.Exit(exitConfigError)
	}

	eng, err := engine.New(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to construct engine")
		os.Exit(exitDependencyDown)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		log.Error().Err(err).Msg("failed to start engine")
		code := exitDependencyDown
		if err := eng.HealthCheck(); err != nil {
			code = exitLedgerCorrupt
		}
		eng.Stop()
		os.Exit(code)
	}

	srv := server.New(server.Config{
		Port:    cfg.Port,
		Engine:  eng,
		Log:     log,
		DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("execution core started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	cancel()
	eng.Stop()

	log.Info().Msg("execution core stopped")
	os.Exit(exitOK)
}
