// Package main is the entry point for the approval workflow engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitlab.com/yelinaung/approval-engine/internal/approval"
	"gitlab.com/yelinaung/approval-engine/internal/cache"
	"gitlab.com/yelinaung/approval-engine/internal/config"
	"gitlab.com/yelinaung/approval-engine/internal/database"
	"gitlab.com/yelinaung/approval-engine/internal/httpapi"
	"gitlab.com/yelinaung/approval-engine/internal/logger"
	"gitlab.com/yelinaung/approval-engine/internal/telemetry"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("approval-engine %s (commit: %s, built: %s)\n", version, commit, date)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load config")
	}

	if cfg.LogJSON {
		logger.SetJSON()
	}
	logger.SetLevel(cfg.LogLevel)
	logger.InitHashSalt()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.TelemetryEnabled, version)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to init telemetry")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	logger.Log.Info().Msg("Database initialized successfully")

	var store cache.Cache
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer redisCache.Close()
		store = redisCache
		logger.Log.Info().Str("addr", cfg.RedisAddr).Msg("Using redis cache")
	} else {
		store = cache.NewMemoryCache()
		logger.Log.Info().Msg("Using in-memory cache")
	}

	engine := approval.NewEngine(approval.Deps{
		DB:              pool,
		Cache:           store,
		Notifier:        approval.LogNotifier{},
		RuleCacheTTL:    cfg.RuleCacheTTL,
		ConfigCacheTTL:  cfg.ConfigCacheTTL,
		BulkConcurrency: cfg.BulkConcurrency,
	})

	if cfg.SweepEnabled {
		go engine.RunOverdueSweep(ctx, cfg.SweepInterval, cfg.SweepTimeout)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewHandler(engine).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Log.Info().Msg("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error().Err(err).Msg("Server shutdown failed")
		}
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Log.Error().Err(err).Msg("Telemetry shutdown failed")
		}
		cancel()
	}()

	logger.Log.Info().Str("addr", cfg.ListenAddr).Msg("Starting HTTP server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatal().Err(err).Msg("HTTP server failed")
	}
	<-ctx.Done()
}
