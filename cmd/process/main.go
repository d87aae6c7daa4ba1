package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

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
	"gorm.io/gorm"
)

type options struct {
	configPath    string
	url           string
	episodeID     string
	batchFile     string
	checkOnly     bool
	cacheStats    bool
	noCache       bool
	force         bool
	maxConcurrent int
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to config file")
	flag.StringVar(&opts.url, "url", "", "process a single source URL")
	flag.StringVar(&opts.episodeID, "episode-id", "", "process an existing episode by id")
	flag.StringVar(&opts.batchFile, "batch-file", "", "process URLs listed in a file, one per line")
	flag.BoolVar(&opts.checkOnly, "check-only", false, "only report whether the item was already processed")
	flag.BoolVar(&opts.cacheStats, "cache-stats", false, "print dedup cache statistics and exit")
	flag.BoolVar(&opts.noCache, "no-cache", false, "disable the local dedup cache")
	flag.BoolVar(&opts.force, "force", false, "reprocess even when already completed")
	flag.IntVar(&opts.maxConcurrent, "max-concurrent", 0, "batch concurrency (default from config)")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.noCache {
		cfg.Cache.Enabled = false
	}
	if opts.maxConcurrent > 0 {
		cfg.Batch.MaxConcurrent = opts.maxConcurrent
	}

	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: "text",
	})
	logger.SetDefault(log)

	// Cache stats and check-only need no API credentials.
	needsPipeline := !opts.cacheStats && !opts.checkOnly
	if needsPipeline {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return err
	}

	episodeRepo := repository.NewEpisodeRepository(db)
	cache, err := dedup.New(cfg.Cache.Dir, cfg.Cache.Enabled, episodeRepo, log)
	if err != nil {
		return err
	}

	if opts.cacheStats {
		return printJSON(cache.Stats(10))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.checkOnly {
		return checkOnly(ctx, opts, cache, episodeRepo)
	}

	jobService, err := buildJobService(cfg, db, episodeRepo, cache, log)
	if err != nil {
		return err
	}

	pipelineOpts := pipeline.Options{Force: opts.force}
	switch {
	case opts.batchFile != "":
		refs, err := readBatchFile(opts.batchFile)
		if err != nil {
			return err
		}
		result := jobService.RunBatch(ctx, refs, pipelineOpts)
		if err := printJSON(result); err != nil {
			return err
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d of %d items failed", result.Failed, len(result.Items))
		}
		return nil
	case opts.url != "":
		started := time.Now()
		outcome, err := jobService.ProcessRef(ctx, opts.url, pipelineOpts)
		if err != nil {
			return err
		}
		printOutcome(outcome, started)
		return nil
	case opts.episodeID != "":
		return processOne(ctx, jobService, opts.episodeID, pipelineOpts)
	default:
		return fmt.Errorf("one of --url, --episode-id, --batch-file or --cache-stats is required")
	}
}

func processOne(ctx context.Context, jobs *service.JobService, episodeID string, opts pipeline.Options) error {
	started := time.Now()
	outcome, err := jobs.Process(ctx, episodeID, opts)
	if err != nil {
		return err
	}
	printOutcome(outcome, started)
	return nil
}

func printOutcome(outcome *pipeline.Outcome, started time.Time) {
	if outcome.Skipped {
		fmt.Printf("skipped %s: %s\n", outcome.EpisodeID, outcome.SkipReason)
		return
	}
	fmt.Printf("completed %s: %d segments (%d embedded) in %s\n",
		outcome.EpisodeID, outcome.SegmentCount, outcome.EmbeddedCount, time.Since(started).Round(time.Second))
}

func checkOnly(ctx context.Context, opts options, cache *dedup.Cache, episodes *repository.EpisodeRepository) error {
	sourceRef := opts.url
	if sourceRef == "" {
		if opts.episodeID == "" {
			return fmt.Errorf("--check-only requires --url or --episode-id")
		}
		episode, err := episodes.GetByID(ctx, opts.episodeID)
		if err != nil {
			return err
		}
		sourceRef = episode.SourceRef
	}

	entry, processed, err := cache.CheckIfProcessed(ctx, sourceRef)
	if err != nil {
		return err
	}
	if !processed {
		fmt.Printf("%s: not processed\n", sourceRef)
		return nil
	}
	fmt.Printf("%s: processed as %s at %s (%s)\n",
		sourceRef, entry.EpisodeID, entry.ProcessedAt.Format(time.RFC3339), entry.Title)
	return nil
}

func buildJobService(cfg *config.Config, db *gorm.DB, episodeRepo *repository.EpisodeRepository, cache *dedup.Cache, log *logger.Logger) (*service.JobService, error) {
	segmentRepo := repository.NewSegmentRepository(db)
	logRepo := repository.NewProcessingLogRepository(db)

	var vectorRepo *repository.SegmentVectorRepository
	if cfg.Qdrant.Enabled {
		var err error
		vectorRepo, err = repository.NewSegmentVectorRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Qdrant.Host,
			Port:            cfg.Qdrant.Port,
			Collection:      cfg.Qdrant.Collection,
			APIKey:          cfg.Qdrant.APIKey,
			UseTLS:          cfg.Qdrant.UseTLS,
			VectorDimension: cfg.Embedding.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := vectorRepo.EnsureCollection(ctx); err != nil {
			return nil, err
		}
	}

	var objectStore storage.ObjectStorage
	if cfg.Storage.Enabled {
		var err error
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
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := objectStore.EnsureBucket(ctx); err != nil {
			return nil, err
		}
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
	return jobService, nil
}

func readBatchFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var refs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("no URLs found in %s", path)
	}
	return refs, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
