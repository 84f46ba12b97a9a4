package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmn/memelet/internal/config"
	"github.com/tmn/memelet/internal/domain"
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

	// Parse command line flags
	doScan := flag.Bool("scan", false, "Verify the catalog and ingest new files")
	doProcess := flag.Bool("process", false, "Analyze all records in new state")
	includeErrors := flag.Bool("include-errors", false, "With -process, also retry errored records")
	doRetry := flag.Bool("retry-errors", false, "Retry errored records whose files are reachable again")
	doTagScan := flag.Bool("tag-scan", false, "Reconcile tag associations without re-analyzing")
	doStats := flag.Bool("stats", false, "Print catalog counts per status")
	id := flag.String("id", "", "Restrict -process or -tag-scan to a single record id")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if !*doScan && !*doProcess && !*doRetry && !*doTagScan && !*doStats {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
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

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

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

	if *doScan {
		runJob(ctx, pipeline, appLogger, domain.JobKindIngest, "", false)
	}

	if *doProcess {
		if *id != "" {
			runJob(ctx, pipeline, appLogger, domain.JobKindProcessOne, *id, false)
		} else {
			runJob(ctx, pipeline, appLogger, domain.JobKindProcessPending, "", *includeErrors)
		}
	}

	if *doRetry {
		processed, err := pipeline.RetryErrors(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Retry pass failed")
		}
		appLogger.WithField("processed", processed).Info("Retry pass completed")
	}

	if *doTagScan {
		runJob(ctx, pipeline, appLogger, domain.JobKindTagScan, *id, false)
	}

	if *doStats {
		counts, err := pipeline.Stats(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to load stats")
		}
		fields := logger.Fields{}
		var total int64
		for status, n := range counts {
			fields[string(status)] = n
			total += n
		}
		fields["total"] = total
		appLogger.WithFields(fields).Info("Catalog stats")
	}
}

// runJob records a job for the requested entry point and runs it inline,
// so command-line runs leave the same job trail as API-triggered ones.
func runJob(ctx context.Context, pipeline *service.Pipeline, log *logger.Logger, kind domain.JobKind, targetID string, includeErrors bool) {
	job, err := pipeline.StartJob(ctx, kind, targetID, includeErrors)
	if err != nil {
		log.WithError(err).Fatalf("Failed to create %s job", kind)
	}
	pipeline.RunJob(ctx, job)
}
