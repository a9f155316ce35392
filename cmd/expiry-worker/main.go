package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-session-scheduling/internal/app"
	"github.com/hackgods/therapy-session-scheduling/internal/config"
	"github.com/hackgods/therapy-session-scheduling/internal/logging"
	"github.com/hackgods/therapy-session-scheduling/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("dev", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.Component(logging.New(cfg.Env, cfg.LogLevel), "expiry-worker")
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Dur("hold_ttl", cfg.HoldTTL).
		Msg("expiry-worker starting up")

	if cfg.HoldTTL <= 0 {
		logger.Warn().Msg("HOLD_TTL is 0, stale holds are never released; set it to enable the worker")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	// Run once at startup
	runOnce(rootCtx, a.Engine, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, a.Engine, logger)
		}
	}
}

func runOnce(ctx context.Context, engine *scheduling.Engine, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	released, err := engine.ReleaseStaleHolds(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("expiry run error")
		return
	}
	logger.Info().Int("released", released).Dur("took", time.Since(start)).Msg("expiry run complete")
}
