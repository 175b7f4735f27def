package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/georgeshao/genstudio/internal/api"
	"github.com/georgeshao/genstudio/internal/billing"
	"github.com/georgeshao/genstudio/internal/catalog"
	"github.com/georgeshao/genstudio/internal/config"
	"github.com/georgeshao/genstudio/internal/dispatcher"
	"github.com/georgeshao/genstudio/internal/lifecycle"
	"github.com/georgeshao/genstudio/internal/logging"
	"github.com/georgeshao/genstudio/internal/poller"
	"github.com/georgeshao/genstudio/internal/provider"
	"github.com/georgeshao/genstudio/internal/storage"
	"github.com/georgeshao/genstudio/internal/storage/pebbledb"
	"github.com/georgeshao/genstudio/internal/storage/sqlite"
	"github.com/georgeshao/genstudio/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logging.Setup(cfg.Server)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	// Initialize storage
	store, err := openStore(cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	cell := config.NewCell(cfg.Provider.BaseURL, cfg.Provider.APIKey)
	if saved, err := store.LoadSettings(ctx); err != nil {
		log.Warn("failed to load saved settings", "error", err)
	} else if saved != nil && saved.APIKey != "" {
		cell.Set(saved.APIKey)
	}
	log.Info("credential resolved", "source", cell.Source(), "base_url", cfg.Provider.BaseURL)

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		log.Warn("metrics disabled", "error", err)
	}

	client := provider.NewClient(provider.Config{
		Timeout:           cfg.Provider.RequestTimeout,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
	}, log)
	cat := catalog.Default()
	tracker := billing.NewTracker(client, cell, log)

	coord := lifecycle.New(lifecycle.Config{
		Store:       storage.NewBestEffort(store, log),
		Dispatcher:  dispatcher.New(client, log),
		Catalog:     cat,
		Credentials: cell,
		Balance:     tracker,
		Logger:      log,
		Metrics:     metrics,
		MaxWorkers:  cfg.Provider.MaxWorkers,
	})
	defer coord.Close()

	sup := poller.New(client, cell, coord.Apply, poller.Options{Logger: log, Metrics: metrics})
	coord.UsePoller(sup)
	coord.Restore(ctx)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    64 * 1024 * 1024, // reference images arrive inline
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api.SetupRoutes(app, api.Deps{
		Coordinator: coord,
		Catalog:     cat,
		Store:       store,
		Credentials: cell,
		Balance:     tracker,
		Optimizer:   client,
		Logger:      log,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		if err := app.Shutdown(); err != nil {
			log.Error("error during shutdown", "error", err)
		}
	}()

	log.Info("starting genstudio server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
	if err := app.Listen(cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func openStore(cfg config.StorageConfig, log *slog.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.New(cfg.Path)
	default:
		return pebbledb.New(cfg.Path, cfg.BatchWrites, log)
	}
}
