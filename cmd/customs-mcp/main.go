package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/usestring/customs-mcp/internal/config"
	"github.com/usestring/customs-mcp/pkg/mcpsrv"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Configuration comes from environment variables, optionally layered
	// over the YAML file named by CUSTOMS_CONFIG_FILE:
	// - CUSTOMS_API_URL: customs data API base URL (default http://localhost:8000)
	// - LOG_LEVEL, LOG_FILE: logging
	// - MCP_HTTP_ADDR: serve streamable HTTP instead of stdio
	// - etc. (see internal/config for all options)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	server, err := mcpsrv.NewServer(ctx, cfg)
	if err != nil {
		slog.Error("failed to create MCP server", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	slog.Info("starting customs MCP server", "api", cfg.APIBaseURL)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "error", err)
		server.Close()
		os.Exit(1)
	}

	slog.Info("server stopped")
}
