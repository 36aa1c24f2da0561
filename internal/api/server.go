package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adhd-assessment-server/internal/analytics"
	"github.com/adhd-assessment-server/internal/domain"
	"github.com/adhd-assessment-server/internal/middleware"
	"github.com/adhd-assessment-server/internal/review"
	"github.com/adhd-assessment-server/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Services are the backends the HTTP handlers drive
type Services struct {
	Assessment *service.AssessmentService
	Analytics  *analytics.Service
	Reviews    review.Store
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	services      Services
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, services Services, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	server := &Server{
		configManager: configManager,
		services:      services,
		logger:        logger,
		router:        router,
	}
	server.setupRoutes()
	return server
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		sess := v1.Group("/session")
		sess.GET("", s.handleGetSession)
		sess.PUT("/user-info", s.handleSetUserInfo)
		sess.PUT("/medical-history", s.handleSetMedicalHistory)
		sess.PUT("/answers", s.handleSetAnswers)
		sess.POST("/advance", s.handleAdvance)
		sess.POST("/back", s.handleBack)
		sess.POST("/reset", s.handleReset)
		sess.POST("/eeg", s.handleUploadEEG)
		sess.POST("/submit", s.handleSubmit)
		sess.GET("/result", s.handleResult)
		sess.GET("/report.pdf", s.handleReportPDF)
		sess.GET("/report.html", s.handleReportHTML)
		sess.GET("/heatmap.png", s.handleHeatmap)
		sess.POST("/notify", s.handleNotify)

		v1.GET("/analytics", s.handleAnalytics)
		v1.GET("/analytics/patients/:id", s.handlePatientHistory)

		v1.POST("/reviews", s.handleCreateReview)
		v1.GET("/reviews", s.handleListReviews)
	}
}

// handleHealth reports liveness and whether the review store answers
func (s *Server) handleHealth(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	checks := gin.H{}
	if s.services.Reviews != nil {
		if _, err := s.services.Reviews.Count(c.Request.Context()); err != nil {
			s.logger.WithError(err).Warn("Review store health check failed")
			checks["reviews"] = "unavailable"
			status, code = "degraded", http.StatusServiceUnavailable
		} else {
			checks["reviews"] = "ok"
		}
	}
	c.JSON(code, gin.H{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
		"version":   s.configManager.GetConfig().MCP.ServerVersion,
	})
}
