package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/adhd-assessment-server/internal/analytics"
	"github.com/adhd-assessment-server/internal/cache"
	"github.com/adhd-assessment-server/internal/config"
	"github.com/adhd-assessment-server/internal/ingestion"
	"github.com/adhd-assessment-server/internal/mcp"
	"github.com/adhd-assessment-server/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cfg := configManager.GetConfig()
	// stdout carries the protocol stream
	logger := config.NewStderrLogger(cfg.Logging)

	var analyticsSvc *analytics.Service
	if cfg.Records.BaseURL != "" {
		recordCache, err := cache.New(cfg.Cache)
		if err != nil {
			logger.WithError(err).Warn("Record cache unavailable, using in-memory cache")
			recordCache = cache.NewMemoryCache(cfg.Cache.MaxItems, cfg.Cache.TTL)
		}
		defer recordCache.Close()
		analyticsSvc = analytics.NewService(external.NewRecordClient(cfg.Records, recordCache, logger), logger)
	}

	server := mcp.NewServer(cfg.MCP, ingestion.NewParser(cfg.Ingestion.MaxUploadBytes), analyticsSvc, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("MCP server failed")
	}
	logger.Info("Assessment MCP server stopped")
}
