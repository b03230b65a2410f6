package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/askdb/askdb/internal/app"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/mcpserver"
	"github.com/askdb/askdb/internal/observability"
)

var version = "dev"

func main() {
	cfg, err := config.LoadFromEnv("askdb-mcp")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// stdout carries the protocol, so logs go to stderr.
	logger, closeLog, err := observability.OpenLogger(cfg, os.Stderr)
	if err != nil {
		slog.Error("failed to open log file", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	pipeline, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize question pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = pipeline.Close() }()

	logger.Info("serving mcp over stdio", slog.String("schema", cfg.Schema.Name))
	if err := server.ServeStdio(mcpserver.New(pipeline.Orchestrator, version)); err != nil {
		logger.Error("mcp server failed", slog.Any("error", err))
		os.Exit(1)
	}
}
