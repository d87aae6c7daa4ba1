package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnantSomani/elara2/internal/api"
	"github.com/AnantSomani/elara2/internal/config"
	"github.com/AnantSomani/elara2/internal/dedup"
	"github.com/AnantSomani/elara2/internal/embedding"
	"github.com/AnantSomani/elara2/internal/identity"
	"github.com/AnantSomani/elara2/internal/logger"
	"github.com/AnantSomani/elara2/internal/media"
	"github.com/AnantSomani/elara2/internal/metadata"
	"github.com/AnantSomani/elara2/internal/pipeline"
	"github.com/AnantSomani/elara2/internal/repository"
	"github.com/AnantSomani/elara2/internal/service"
	"github.com/AnantSomani/elara2/internal/storage"
	"github.com/AnantSomani/elara2/internal/transcribe"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		LogFile: cfg.Log.File,
	})
	logger.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Configuration invalid")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}

	episodeRepo := repository.NewEpisodeRepository(db)
	segmentRepo := repository.NewSegmentRepository(db)
	logRepo := repository.NewProcessingLogRepository(db)

	var vectorRepo *repository.SegmentVectorRepository
	if cfg.Qdrant.Enabled {
		vectorRepo, err = repository.NewSegmentVectorRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: cfg.Embedding.Dimensions,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to vector index")
		}
		defer vectorRepo.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := vectorRepo.EnsureCollection(ctx); err != nil {
			cancel()
			log.WithError(err).Fatal("Failed to ensure vector collection")
		}
		cancel()
	}

	var objectStore storage.ObjectStorage
	if cfg.Storage.Enabled {
		objectStore, err = storage.NewStorage(&storage.S3Config{
			Type:      storage.StorageType(cfg.Storage.Type),
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize object storage")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := objectStore.EnsureBucket(ctx); err != nil {
			cancel()
			log.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		cancel()
	}

	cache, err := dedup.New(cfg.Cache.Dir, cfg.Cache.Enabled, episodeRepo, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize dedup cache")
	}

	provider := metadata.NewYouTubeProvider("")
	resolver := identity.NewResolver(episodeRepo, provider, log)
	acquirer := media.NewAcquirer(cfg.Media.YtdlpPath, cfg.Media.WorkDir, log)
	transcriber := transcribe.NewClient(transcribe.Config{
		BaseURL:      cfg.Transcribe.BaseURL,
		APIKey:       cfg.Transcribe.APIKey,
		PollInterval: cfg.Transcribe.PollInterval,
		MaxWait:      cfg.Transcribe.MaxWait,
	}, log)
	embedder := embedding.NewClient(embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})

	deps := pipeline.OrchestratorDeps{
		Episodes:    episodeRepo,
		Segments:    segmentRepo,
		Logs:        logRepo,
		Marker:      cache,
		Acquirer:    acquirer,
		Transcriber: transcriber,
		Embedder:    embedder,
		Logger:      log,
	}
	if vectorRepo != nil {
		deps.Vectors = vectorRepo
	}
	if objectStore != nil {
		deps.Objects = objectStore
	}
	orchestrator := pipeline.NewOrchestrator(deps)

	jobService := service.NewJobService(service.JobServiceDeps{
		Resolver:  resolver,
		Episodes:  episodeRepo,
		Segments:  segmentRepo,
		Logs:      logRepo,
		Dedupe:    cache,
		Processor: orchestrator,
		Logger:    log,
	})
	jobService.AttachRunner(pipeline.NewRunner(jobService, cfg.Batch.MaxConcurrent, log))

	var searchService *service.SearchService
	if vectorRepo != nil {
		searchService = service.NewSearchService(embedder, vectorRepo, segmentRepo, log)
	}

	allowedOrigins := cfg.Server.CORS.AllowedOrigins
	if cfg.Server.CORS.AllowAllOrigins {
		allowedOrigins = nil
	}
	router := api.SetupRouter(jobService, searchService, log, api.RouterConfig{
		Mode:           cfg.Server.Mode,
		AllowedOrigins: allowedOrigins,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("API server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}
	log.Info("Server stopped")
}
