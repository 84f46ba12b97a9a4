package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmn/memelet/internal/api"
	"github.com/tmn/memelet/internal/config"
	"github.com/tmn/memelet/internal/logger"
	"github.com/tmn/memelet/internal/repository"
	"github.com/tmn/memelet/internal/service"
	"github.com/tmn/memelet/internal/storage"
)

func main() {
	// Initialize logger first (with env-driven defaults)
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	mediaRepo := repository.NewMediaRepository(db)
	tagRepo := repository.NewTagRepository(db)
	jobRepo := repository.NewJobRepository(db)

	// Initialize artifact storage (local directory, S3 or R2)
	objectStorage, err := storage.NewStorage(&storage.Config{
		Type:      cfg.Storage.Type,
		LocalRoot: cfg.Library.ThumbnailsRoot(),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	ctx := context.Background()
	if err := objectStorage.EnsureReady(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to prepare storage backend")
	}

	// Initialize services
	vlmService := service.NewVLMService(&service.VLMConfig{
		Model:     cfg.AI.Model,
		APIKey:    cfg.AI.APIKey,
		BaseURL:   cfg.AI.BaseURL,
		Timeout:   time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
		MaxTokens: cfg.AI.MaxTokens,
	})
	extractor := service.NewFrameExtractor(cfg.Library, cfg.Frames, objectStorage, appLogger)
	analysis := service.NewAnalysisService(vlmService, extractor, tagRepo,
		time.Duration(cfg.AI.TimeoutSeconds)*time.Second, appLogger)
	verifier := service.NewVerifier(mediaRepo, cfg.Library, appLogger)
	scanner := service.NewScanner(mediaRepo, cfg.Library, appLogger)
	tagService := service.NewTagService(mediaRepo, tagRepo, cfg.Library, appLogger)

	pipeline := service.NewPipeline(mediaRepo, jobRepo, verifier, scanner, analysis, tagService, appLogger)

	// Setup router
	router := api.SetupRouter(&cfg.Server, pipeline, mediaRepo, tagRepo, jobRepo, appLogger)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
