package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/ClickHouse/clickhouse-go" // Register clickhouse engine driver

	catalogpg "github.com/riptide-lab/riptide/internal/core/catalog/postgres"
	corecfg "github.com/riptide-lab/riptide/internal/core/config"
	"github.com/riptide-lab/riptide/internal/engine"
	"github.com/riptide-lab/riptide/internal/migrations"
	"github.com/riptide-lab/riptide/internal/realtime"
	"github.com/riptide-lab/riptide/internal/server"
)

func main() {
	configPath := flag.String("config", "riptide.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"server_addr", fmtAddr(cfg.Server.Host, cfg.Server.Port),
		"engine_driver", cfg.Engine.Driver,
		"slide", cfg.Realtime.Slide,
		"window", cfg.Realtime.Window,
	)

	// 2. Initialize Catalog Storage (PostgreSQL)
	catalogStore, err := catalogpg.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize catalog database", "error", err)
		os.Exit(1)
	}
	defer catalogStore.Close()

	// 2.1. Run Catalog Migrations
	if err := migrations.RunMigrations(catalogStore.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run catalog migrations", "error", err)
		os.Exit(1)
	}

	// 3. Connect to the Analytics Engine
	engineDB, err := engine.Open(
		cfg.Engine.Driver,
		cfg.Engine.DSN,
		cfg.Engine.MaxOpenConns,
		cfg.Engine.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to connect to analytics engine", "error", err)
		os.Exit(1)
	}
	defer engineDB.Close()

	executor := engine.NewSQLAdapter(engineDB, cfg.Engine.QueryTimeoutDuration())

	// 4. Initialize Realtime Service
	svc := realtime.NewService(catalogStore, executor, cfg.Allowlist, realtime.Options{
		Slide:         cfg.Realtime.SlideDuration(),
		Window:        cfg.Realtime.WindowDuration(),
		TimeColumn:    cfg.Realtime.TimeColumn,
		EpochFunction: cfg.Realtime.EpochFunction,
	})
	handler := realtime.NewHandler(svc)

	// 5. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), catalogStore.DB(), cfg.Server.Mode)
	handler.RegisterRoutes(srv.Engine)

	// 6. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
