// Kestrel - Data quality monitoring for OMOP CDM databases.
// Copyright (c) 2025 opensource.health
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-health/kestrel/internal/api"
	"github.com/opensource-health/kestrel/internal/bus"
	"github.com/opensource-health/kestrel/internal/cache"
	"github.com/opensource-health/kestrel/internal/cdm"
	"github.com/opensource-health/kestrel/internal/checks"
	"github.com/opensource-health/kestrel/internal/config"
	"github.com/opensource-health/kestrel/internal/domain"
	"github.com/opensource-health/kestrel/internal/profile"
	"github.com/opensource-health/kestrel/internal/repository"
	"github.com/opensource-health/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to kestrel.yaml (default: search working directory)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := slog.New(newLogHandler(cfg.Logging))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"cdm", cfg.CDM.Driver,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"worker", cfg.Worker.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to the monitored CDM
	queryTimeout := time.Duration(cfg.Checks.TimeoutPerCheck) * time.Second
	cdmDB, err := cdm.New(cfg.CDM, queryTimeout)
	if err != nil {
		slog.Error("failed to connect to CDM database", "error", err)
		os.Exit(1)
	}
	defer cdmDB.Close()
	slog.Info("cdm database connected",
		"driver", cfg.CDM.Driver,
		"database_id", cdmDB.DatabaseID(),
	)

	// Initialize report store
	store, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize report store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("report store initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize table profile service
	profileSvc := profile.NewService(cdmDB, cacheImpl, cfg.Cache.LocalTTL)
	slog.Info("profile service initialized")

	// Initialize check engine
	engine, err := checks.NewEngine(cdmDB, &cfg.Checks, profileSvc.Getter(), logger)
	if err != nil {
		slog.Error("failed to initialize check engine", "error", err)
		os.Exit(1)
	}
	slog.Info("check engine initialized", "rules_count", len(engine.Rules()))

	// Initialize run worker
	var runWorker *worker.Worker
	if cfg.Worker.Enabled {
		interval := time.Duration(cfg.Worker.RunIntervalMinutes) * time.Minute
		runWorker = worker.NewWorker(busImpl, store, engine, cdmDB.DatabaseID(), interval)

		if err := runWorker.Start(); err != nil {
			slog.Error("failed to start run worker", "error", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, store, cacheImpl, busImpl, cdmDB, engine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop run worker first
	if runWorker != nil {
		if err := runWorker.Stop(); err != nil {
			slog.Error("failed to stop run worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func newLogHandler(cfg domain.LoggingConfig) slog.Handler {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║     OMOP CDM Quality Check Engine         ║")
	fmt.Println("  ║      Eyes on every record.                ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  CDM:      %s\n", cfg.CDM.Driver)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /runs              - Run all quality checks")
	fmt.Println("    POST /runs?mode=async   - Request a run over the bus")
	fmt.Println("    GET  /runs              - List recent runs")
	fmt.Println("    GET  /runs/{id}         - Get a stored report")
	fmt.Println("    GET  /checks            - List registered checks")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
