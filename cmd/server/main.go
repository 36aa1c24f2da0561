package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/adhd-assessment-server/internal/analytics"
	"github.com/adhd-assessment-server/internal/api"
	"github.com/adhd-assessment-server/internal/cache"
	"github.com/adhd-assessment-server/internal/config"
	"github.com/adhd-assessment-server/internal/ingestion"
	"github.com/adhd-assessment-server/internal/notification"
	"github.com/adhd-assessment-server/internal/review"
	"github.com/adhd-assessment-server/internal/service"
	"github.com/adhd-assessment-server/internal/session"
	"github.com/adhd-assessment-server/pkg/external"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)
	logger.WithField("environment", cfg.Environment).Infof("Starting ADHD assessment server on %s:%d", cfg.Server.Host, cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recordCache, err := cache.New(cfg.Cache)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize record cache")
	}
	defer recordCache.Close()

	reviews, err := review.Open(ctx, cfg.Review, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open review store")
	}
	defer reviews.Close()

	predictor := external.NewPredictorClient(cfg.Predictor, logger)
	records := external.NewRecordClient(cfg.Records, recordCache, logger)
	notifier := notification.NewNotifier(cfg.Notification, logger)

	assessment := service.NewAssessmentService(
		session.New(logger),
		predictor,
		ingestion.NewParser(cfg.Ingestion.MaxUploadBytes),
		notifier,
		logger,
	)

	server := api.NewServer(configManager, api.Services{
		Assessment: assessment,
		Analytics:  analytics.NewService(records, logger),
		Reviews:    reviews,
	}, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
	logger.Info("Server stopped")
}
