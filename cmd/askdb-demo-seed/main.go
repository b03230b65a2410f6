package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/demo/seed"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	lookup, err := config.EnvLookup()
	if err != nil {
		logger.Error("failed to read env file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := seed.LoadConfigFromEnv(lookup)
	if err != nil {
		logger.Error("failed to load demo seed config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		logger.Error("database open error", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("database ping error", slog.Any("error", err))
		os.Exit(1)
	}

	seeder, err := seed.NewSeeder(db, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize demo seeder", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("loading demo dataset",
		slog.String("schema", cfg.Schema),
		slog.Int("customers", cfg.Customers),
		slog.Int("products", cfg.Products),
		slog.Int("orders", cfg.Orders),
		slog.Bool("reset", cfg.Reset),
		slog.Int64("seed", cfg.Seed),
	)
	if _, err := seeder.Run(ctx); err != nil {
		logger.Error("demo seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}
