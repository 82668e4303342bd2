package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aviaryhq/aviary-go/internal/api"
	"github.com/aviaryhq/aviary-go/internal/config"
	"github.com/aviaryhq/aviary-go/internal/events"
	"github.com/aviaryhq/aviary-go/internal/logger"
	"github.com/aviaryhq/aviary-go/internal/runner"
	"github.com/aviaryhq/aviary-go/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")

	log := logger.Get()
	log.Info().Msg("Starting Aviary simulator...")

	// Select the task store backend
	var taskStore store.Store
	switch cfg.Store.Backend {
	case "redis":
		redisStore, err := store.NewRedisStore(&cfg.Redis, cfg.Store.RetentionDays)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		taskStore = redisStore
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using Redis task store")
	default:
		taskStore = store.NewMemoryStore()
		log.Info().Msg("Using in-memory task store")
	}
	defer func() {
		if err := taskStore.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close task store")
		}
	}()

	// Create event publisher
	publisher := events.NewBus()
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	// Create the agent runner
	taskRunner := runner.New(&cfg.Runner, taskStore, publisher, runner.DefaultAgents())

	// Create server
	server := api.NewServer(cfg, taskStore, taskRunner, publisher)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start WebSocket hub and runner
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)
	go taskRunner.Start(ctx)

	// Start HTTP server
	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Strs("agents", taskRunner.AgentNames()).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down simulator...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the runner, letting in-flight tasks finish
	taskRunner.Stop()

	// Stop WebSocket hub
	server.Stop()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Simulator stopped")
}
