// cmd/crawler/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"repo-crawler/internal/config"
	"repo-crawler/internal/crawler"
	"repo-crawler/internal/githubapi"
	"repo-crawler/internal/progressapi"
	"repo-crawler/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application startup error", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

func run() error {
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%w: %v", errMisuse, err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("configuration loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dbpool, err := pgxpool.New(ctx, cfg.PostgresConnString)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if err := runMigrations(cfg.PostgresConnString); err != nil {
		return fmt.Errorf("running database migrations: %w", err)
	}
	logger.Info("database migrations applied")

	ghClient := githubapi.NewClient(cfg.GithubAPIToken, logger)
	sink := store.New(dbpool, logger)

	sup := crawler.New(crawler.Config{
		SeedQueries:    cfg.SeedQueries,
		NumberWorkers:  cfg.NumberWorkers,
		PageSize:       cfg.MaxRepositoriesPerPage,
		TargetUnique:   cfg.TotalRepositories,
		RateLimit:      5000,
		ProgressPeriod: time.Second,
		StaggerDelay:   time.Second,
	}, ghClient, sink, logger)

	progressServer := &http.Server{
		Addr:    ":8080",
		Handler: progressapi.NewRouter(sup.Progress(), logger),
	}
	go func() {
		if err := progressServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("progress HTTP server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = progressServer.Shutdown(shutdownCtx)
	}()

	logger.Info("crawl starting", "seed_queries", cfg.SeedQueries, "target", cfg.TotalRepositories, "workers", cfg.NumberWorkers)
	return sup.Run(ctx)
}

var errMisuse = errors.New("misuse")

// exitCodeFor maps a fatal error to the process exit code per the CLI
// surface's documented contract: 2 for misuse (config validation failures,
// caught before any network/DB I/O), 1 for everything else fatal.
func exitCodeFor(err error) int {
	if errors.Is(err, errMisuse) {
		return 2
	}
	return 1
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	default:
		v.Set(slog.LevelInfo)
	}
}
