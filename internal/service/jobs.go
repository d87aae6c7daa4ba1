package service

import (
	"context"
	"sync"
	"time"

	"github.com/AnantSomani/elara2/internal/dedup"
	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/identity"
	"github.com/AnantSomani/elara2/internal/logger"
	"github.com/AnantSomani/elara2/internal/pipeline"
	"github.com/google/uuid"
)

// ReferenceResolver maps submissions onto episode rows.
type ReferenceResolver interface {
	CreateOrFetch(ctx context.Context, sourceRef string) (*identity.CreateResult, error)
	CreateOrFetchGUID(ctx context.Context, guid, enclosureURL string, meta *identity.Metadata) (*identity.CreateResult, error)
}

// EpisodeReader reads episode state for status reporting.
type EpisodeReader interface {
	GetByID(ctx context.Context, id string) (*domain.Episode, error)
	Ping(ctx context.Context) error
}

// SegmentReader reads segment state for status reporting.
type SegmentReader interface {
	CountByEpisode(ctx context.Context, episodeID string) (int64, error)
	ListByEpisode(ctx context.Context, episodeID string) ([]domain.Segment, error)
}

// LogReader reads per-stage history.
type LogReader interface {
	ListByEpisode(ctx context.Context, episodeID string) ([]domain.ProcessingLog, error)
}

// Deduper answers already-processed checks by source reference.
type Deduper interface {
	CheckIfProcessed(ctx context.Context, sourceRef string) (*dedup.Entry, bool, error)
	Stats(recentLimit int) dedup.Stats
}

// JobService fronts the pipeline: it accepts submissions, dispatches
// processing, and reports status. An in-process lease keeps one run
// per episode id at a time even before the row reaches the processing
// state.
type JobService struct {
	resolver  ReferenceResolver
	episodes  EpisodeReader
	segments  SegmentReader
	logs      LogReader
	dedupe    Deduper
	processor pipeline.Processor
	runner    *pipeline.Runner
	logger    *logger.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// JobServiceDeps bundles the service's collaborators.
type JobServiceDeps struct {
	Resolver  ReferenceResolver
	Episodes  EpisodeReader
	Segments  SegmentReader
	Logs      LogReader
	Dedupe    Deduper
	Processor pipeline.Processor
	Runner    *pipeline.Runner
	Logger    *logger.Logger
}

// NewJobService wires a JobService from deps.
func NewJobService(deps JobServiceDeps) *JobService {
	return &JobService{
		resolver:  deps.Resolver,
		episodes:  deps.Episodes,
		segments:  deps.Segments,
		logs:      deps.Logs,
		dedupe:    deps.Dedupe,
		processor: deps.Processor,
		runner:    deps.Runner,
		logger:    deps.Logger,
		inFlight:  make(map[string]struct{}),
	}
}

// AttachRunner binds the batch runner. Done after construction since
// the runner submits and processes through this service.
func (s *JobService) AttachRunner(r *pipeline.Runner) {
	s.runner = r
}

// ProcessRef runs one source reference synchronously: dedup check
// first (before any store round trip), then identity resolution, then
// the pipeline under the in-flight lease. Implements the batch
// runner's per-item processor.
func (s *JobService) ProcessRef(ctx context.Context, sourceRef string, opts pipeline.Options) (*pipeline.Outcome, error) {
	if !opts.Force {
		if entry, processed, err := s.dedupe.CheckIfProcessed(ctx, sourceRef); err != nil {
			return nil, err
		} else if processed {
			return &pipeline.Outcome{
				EpisodeID:  entry.EpisodeID,
				Skipped:    true,
				SkipReason: "already processed",
			}, nil
		}
	}

	episodeID, err := s.Submit(ctx, sourceRef)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, episodeID, opts)
}

// Process runs the pipeline synchronously for an existing episode row,
// checking the dedup tier through the row's source reference.
func (s *JobService) Process(ctx context.Context, episodeID string, opts pipeline.Options) (*pipeline.Outcome, error) {
	episode, err := s.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if !opts.Force {
		if _, processed, err := s.dedupe.CheckIfProcessed(ctx, episode.SourceRef); err != nil {
			return nil, err
		} else if processed {
			return &pipeline.Outcome{
				EpisodeID:  episodeID,
				Skipped:    true,
				SkipReason: "already processed",
			}, nil
		}
	}
	return s.run(ctx, episodeID, opts)
}

func (s *JobService) run(ctx context.Context, episodeID string, opts pipeline.Options) (*pipeline.Outcome, error) {
	if !s.acquireLease(episodeID) {
		return nil, pipeline.ErrInFlight
	}
	defer s.releaseLease(episodeID)
	return s.processor.Process(ctx, episodeID, opts)
}

// Submit resolves sourceRef into an episode row and returns its id.
func (s *JobService) Submit(ctx context.Context, sourceRef string) (string, error) {
	res, err := s.resolver.CreateOrFetch(ctx, sourceRef)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

// SubmitGUID resolves a feed item carrying its own GUID and metadata.
func (s *JobService) SubmitGUID(ctx context.Context, guid, enclosureURL string, meta *identity.Metadata) (string, error) {
	res, err := s.resolver.CreateOrFetchGUID(ctx, guid, enclosureURL, meta)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

// Accepted is the response to an asynchronous submission.
type Accepted struct {
	EpisodeID        string `json:"episode_id"`
	Status           string `json:"status"`
	StartedAt        string `json:"started_at,omitempty"`
	AlreadyProcessed bool   `json:"already_processed,omitempty"`
}

// StatusAlreadyProcessed is reported when a submission short-circuits
// on the dedup check.
const StatusAlreadyProcessed = "already_processed"

// SubmitAsync accepts a source reference, short-circuits when the
// episode was already processed, and otherwise dispatches the pipeline
// in the background. The returned status reflects acceptance, not
// completion; poll Status for progress.
func (s *JobService) SubmitAsync(ctx context.Context, sourceRef string, opts pipeline.Options) (*Accepted, error) {
	// The dedup check precedes identity resolution so a cached reference
	// never costs a store round trip.
	if !opts.Force {
		if entry, processed, err := s.dedupe.CheckIfProcessed(ctx, sourceRef); err != nil {
			return nil, err
		} else if processed {
			return &Accepted{
				EpisodeID:        entry.EpisodeID,
				Status:           StatusAlreadyProcessed,
				AlreadyProcessed: true,
			}, nil
		}
	}

	episodeID, err := s.Submit(ctx, sourceRef)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, episodeID, opts)
}

// DispatchByID starts processing for an existing episode row.
func (s *JobService) DispatchByID(ctx context.Context, episodeID string, opts pipeline.Options) (*Accepted, error) {
	episode, err := s.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	if !opts.Force {
		if _, processed, err := s.dedupe.CheckIfProcessed(ctx, episode.SourceRef); err != nil {
			return nil, err
		} else if processed {
			return &Accepted{
				EpisodeID:        episodeID,
				Status:           StatusAlreadyProcessed,
				AlreadyProcessed: true,
			}, nil
		}
	}
	return s.dispatch(ctx, episodeID, opts)
}

func (s *JobService) dispatch(ctx context.Context, episodeID string, opts pipeline.Options) (*Accepted, error) {
	// A submit for an id with a run already in flight answers with the
	// current status instead of starting a concurrent run.
	if !s.acquireLease(episodeID) {
		return &Accepted{
			EpisodeID: episodeID,
			Status:    string(domain.EpisodeStatusProcessing),
		}, nil
	}

	// The request context dies with the HTTP response; the run gets
	// its own lifetime.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer s.releaseLease(episodeID)
		started := time.Now()
		if _, err := s.processor.Process(runCtx, episodeID, opts); err != nil {
			s.logger.WithFields(logger.Fields{
				logger.FieldEpisodeID:  episodeID,
				logger.FieldDurationMs: time.Since(started).Milliseconds(),
			}).WithError(err).Error("Background processing failed")
		}
	}()

	return &Accepted{
		EpisodeID: episodeID,
		Status:    string(domain.EpisodeStatusProcessing),
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *JobService) acquireLease(episodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.inFlight[episodeID]; held {
		return false
	}
	s.inFlight[episodeID] = struct{}{}
	return true
}

func (s *JobService) releaseLease(episodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, episodeID)
}

// EpisodeStatus is the full status view for one episode.
type EpisodeStatus struct {
	Episode      *domain.Episode        `json:"episode"`
	SegmentCount int64                  `json:"segment_count"`
	Stages       []domain.ProcessingLog `json:"stages"`
	InFlight     bool                   `json:"in_flight"`
}

// Status reports the episode row, its segment count and stage history.
func (s *JobService) Status(ctx context.Context, episodeID string) (*EpisodeStatus, error) {
	episode, err := s.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	count, err := s.segments.CountByEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	stages, err := s.logs.ListByEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	_, inFlight := s.inFlight[episodeID]
	s.mu.Unlock()

	return &EpisodeStatus{
		Episode:      episode,
		SegmentCount: count,
		Stages:       stages,
		InFlight:     inFlight,
	}, nil
}

// EpisodeDetail returns the episode with its full segment list.
type EpisodeDetail struct {
	Episode  *domain.Episode  `json:"episode"`
	Segments []domain.Segment `json:"segments"`
}

// Detail returns the enriched episode with all its segments.
func (s *JobService) Detail(ctx context.Context, episodeID string) (*EpisodeDetail, error) {
	episode, err := s.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	segments, err := s.segments.ListByEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	return &EpisodeDetail{Episode: episode, Segments: segments}, nil
}

// RunBatch processes refs synchronously with bounded concurrency.
func (s *JobService) RunBatch(ctx context.Context, refs []string, opts pipeline.Options) *pipeline.BatchResult {
	return s.runner.Run(ctx, refs, opts)
}

// BatchAccepted acknowledges an asynchronous batch submission.
type BatchAccepted struct {
	BatchID        string `json:"batch_id"`
	TotalSubmitted int    `json:"total_submitted"`
	Message        string `json:"message"`
}

// RunBatchAsync starts the batch in the background and returns its id
// immediately. maxConcurrent overrides the configured ceiling when
// positive. Item outcomes land in the store; poll episode status.
func (s *JobService) RunBatchAsync(ctx context.Context, refs []string, opts pipeline.Options, maxConcurrent int) *BatchAccepted {
	runner := s.runner
	if maxConcurrent > 0 {
		runner = pipeline.NewRunner(s, maxConcurrent, s.logger)
	}
	batchID := uuid.New().String()
	runCtx := context.WithoutCancel(ctx)
	go runner.RunWithID(runCtx, batchID, refs, opts)
	return &BatchAccepted{
		BatchID:        batchID,
		TotalSubmitted: len(refs),
		Message:        "batch processing started",
	}
}

// CacheStats exposes the dedup tier for the admin surface.
func (s *JobService) CacheStats(recentLimit int) dedup.Stats {
	return s.dedupe.Stats(recentLimit)
}

// Healthy reports whether the store answers.
func (s *JobService) Healthy(ctx context.Context) error {
	return s.episodes.Ping(ctx)
}
