package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/logger"
	"github.com/AnantSomani/elara2/internal/repository"
	"github.com/AnantSomani/elara2/internal/storage"
)

// ErrInFlight is returned when an episode is already being processed.
var ErrInFlight = errors.New("episode is already being processed")

// Options control a single pipeline run.
type Options struct {
	// Force reprocesses an episode already in a terminal state,
	// replacing its previous segments and vectors.
	Force bool
}

// Outcome summarizes a finished (or skipped) pipeline run.
type Outcome struct {
	EpisodeID     string `json:"episode_id"`
	Skipped       bool   `json:"skipped,omitempty"`
	SkipReason    string `json:"skip_reason,omitempty"`
	SegmentCount  int    `json:"segment_count"`
	EmbeddedCount int    `json:"embedded_count"`
	IndexedCount  int    `json:"indexed_count"`
}

// Orchestrator drives one episode through the enrichment stages:
// acquire audio, transcribe with diarization, extract artifacts, embed
// segments, persist. Each stage outcome is appended to the processing
// log; a stage failure marks the episode failed and stops the run.
type Orchestrator struct {
	episodes EpisodeStore
	segments SegmentStore
	logs     LogStore
	vectors  VectorStore // nil disables vector indexing
	objects  ObjectStore // nil falls back to direct stream URLs
	marker   ProcessedMarker

	acquirer    AudioAcquirer
	transcriber Transcriber
	embedder    Embedder
	logger      *logger.Logger
}

// OrchestratorDeps bundles the orchestrator's collaborators.
type OrchestratorDeps struct {
	Episodes    EpisodeStore
	Segments    SegmentStore
	Logs        LogStore
	Vectors     VectorStore
	Objects     ObjectStore
	Marker      ProcessedMarker
	Acquirer    AudioAcquirer
	Transcriber Transcriber
	Embedder    Embedder
	Logger      *logger.Logger
}

// NewOrchestrator wires an Orchestrator from deps.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		episodes:    deps.Episodes,
		segments:    deps.Segments,
		logs:        deps.Logs,
		vectors:     deps.Vectors,
		objects:     deps.Objects,
		marker:      deps.Marker,
		acquirer:    deps.Acquirer,
		transcriber: deps.Transcriber,
		embedder:    deps.Embedder,
		logger:      deps.Logger,
	}
}

// Process runs the full pipeline for one episode row. The episode must
// already exist; identity resolution happens before this point.
func (o *Orchestrator) Process(ctx context.Context, episodeID string, opts Options) (*Outcome, error) {
	log := o.logger.WithField(logger.FieldEpisodeID, episodeID)

	episode, err := o.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return nil, err
	}

	// Completed episodes need a force reprocess; a failed run is retried
	// on plain resubmit. A row already at processing is live unless the
	// caller forces, which reclaims episodes stranded by a crash.
	switch episode.Status {
	case domain.EpisodeStatusProcessing:
		if !opts.Force {
			return nil, ErrInFlight
		}
	case domain.EpisodeStatusCompleted:
		if !opts.Force {
			return &Outcome{
				EpisodeID:  episodeID,
				Skipped:    true,
				SkipReason: "already completed",
			}, nil
		}
	}

	if !episode.Status.CanTransitionTo(domain.EpisodeStatusProcessing, opts.Force) {
		return nil, fmt.Errorf("episode %s cannot move from %s to processing", episodeID, episode.Status)
	}
	if err := o.episodes.UpdateStatus(ctx, episodeID, domain.EpisodeStatusProcessing); err != nil {
		return nil, err
	}

	// A rerun replaces prior output before producing new rows.
	if opts.Force || episode.Status == domain.EpisodeStatusFailed {
		if err := o.clearPrevious(ctx, episodeID); err != nil {
			return nil, o.fail(ctx, episodeID, StagePersist, err)
		}
	}

	started := time.Now()

	audioURL, err := o.acquire(ctx, episode)
	if err != nil {
		return nil, o.fail(ctx, episodeID, StageAcquire, err)
	}
	o.logStage(ctx, episodeID, StageAcquire, domain.JSONMap{"audio_url": audioURL})

	result, err := o.transcriber.Transcribe(ctx, audioURL)
	if err != nil {
		return nil, o.fail(ctx, episodeID, StageTranscribe, err)
	}
	o.logStage(ctx, episodeID, StageTranscribe, domain.JSONMap{
		"utterances":       len(result.Utterances),
		"duration_seconds": result.DurationSeconds,
	})

	chapters := chaptersToArtifact(result.Chapters)
	entities := entitiesToArtifact(result.Entities)
	speakers := speakerList(result.Utterances)
	o.logStage(ctx, episodeID, StageExtract, domain.JSONMap{
		"chapters": len(chapters),
		"entities": len(entities),
		"speakers": len(speakers),
	})

	segments := utterancesToSegments(episodeID, result.Utterances)
	embedded := o.embedSegments(ctx, episodeID, segments)
	o.logStage(ctx, episodeID, StageEmbed, domain.JSONMap{
		"segments": len(segments),
		"embedded": embedded,
	})

	indexed := o.indexSegments(ctx, segments)

	// Persist sequence: item fields, then segments, then the stage log,
	// then the status flip. Independent writes, not a transaction; a
	// crash mid-sequence leaves the row at processing without a
	// completed marker.
	fields := map[string]interface{}{
		"transcript": result.Text,
		"audio_url":  audioURL,
		"chapters":   chapters,
		"entities":   entities,
		"speakers":   domain.StringArray(speakers),
		"processing_metadata": domain.JSONMap{
			"embedding_model":  o.embedder.Model(),
			"segments":         len(segments),
			"embedded":         embedded,
			"indexed":          indexed,
			"elapsed_seconds":  int(time.Since(started).Seconds()),
			"transcription_id": result.ID,
		},
	}
	if result.DurationSeconds > 0 {
		fields["duration_seconds"] = result.DurationSeconds
	}
	if err := o.episodes.UpdateFields(ctx, episodeID, fields); err != nil {
		return nil, o.fail(ctx, episodeID, StagePersist, err)
	}

	if len(segments) > 0 {
		if err := o.segments.CreateBatch(ctx, segments); err != nil {
			return nil, o.fail(ctx, episodeID, StagePersist, err)
		}
	}
	o.logStage(ctx, episodeID, StagePersist, domain.JSONMap{"segments": len(segments)})

	if err := o.episodes.UpdateStatus(ctx, episodeID, domain.EpisodeStatusCompleted); err != nil {
		return nil, o.fail(ctx, episodeID, StagePersist, err)
	}

	if o.marker != nil {
		if err := o.marker.MarkProcessed(episodeID, episode.SourceRef, episode.Title); err != nil {
			log.WithError(err).Warn("Could not record episode in dedup cache")
		}
	}

	log.WithFields(logger.Fields{
		"segments":            len(segments),
		logger.FieldDurationMs: time.Since(started).Milliseconds(),
	}).Info("Episode processing completed")

	return &Outcome{
		EpisodeID:     episodeID,
		SegmentCount:  len(segments),
		EmbeddedCount: embedded,
		IndexedCount:  indexed,
	}, nil
}

// acquire produces an audio URL the transcription engine can fetch.
// With object storage configured the audio is downloaded and uploaded;
// otherwise a short-lived direct stream URL is resolved.
func (o *Orchestrator) acquire(ctx context.Context, episode *domain.Episode) (string, error) {
	if o.objects == nil {
		return o.acquirer.DirectURL(ctx, episode.SourceRef)
	}

	res, err := o.acquirer.Download(ctx, episode.SourceRef, episode.ID)
	if err != nil {
		return "", err
	}
	defer res.Cleanup()

	f, err := os.Open(res.LocalPath)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	key := "audio/" + episode.ID + ".m4a"
	contentType := storage.AudioContentType(res.LocalPath)
	if err := o.objects.Upload(ctx, key, f, info.Size(), contentType); err != nil {
		return "", err
	}
	return o.objects.GetURL(key), nil
}

// embedSegments fills in embedding vectors in place. A failed embedding
// skips that segment's vector instead of failing the run.
func (o *Orchestrator) embedSegments(ctx context.Context, episodeID string, segments []domain.Segment) int {
	embedded := 0
	for i := range segments {
		vector, err := o.embedder.Embed(ctx, segments[i].Content)
		if err != nil {
			o.logger.WithFields(logger.Fields{
				logger.FieldEpisodeID: episodeID,
				"segment_id":          segments[i].ID,
			}).WithError(err).Warn("Embedding failed, segment kept without vector")
			continue
		}
		segments[i].Embedding = vector
		embedded++
	}
	return embedded
}

// indexSegments upserts embedded segments into the vector index.
// Indexing is best effort; the relational rows are the source of truth.
func (o *Orchestrator) indexSegments(ctx context.Context, segments []domain.Segment) int {
	if o.vectors == nil {
		return 0
	}
	indexed := 0
	for i := range segments {
		if segments[i].Embedding == nil {
			continue
		}
		payload := &repository.SegmentPayload{
			SegmentID:    segments[i].ID,
			EpisodeID:    segments[i].EpisodeID,
			Speaker:      segments[i].Speaker,
			Content:      segments[i].Content,
			StartSeconds: segments[i].StartSeconds,
			EndSeconds:   segments[i].EndSeconds,
		}
		if err := o.vectors.Upsert(ctx, segments[i].ID, segments[i].Embedding, payload); err != nil {
			o.logger.WithField("segment_id", segments[i].ID).WithError(err).
				Warn("Vector upsert failed")
			continue
		}
		indexed++
	}
	return indexed
}

func (o *Orchestrator) clearPrevious(ctx context.Context, episodeID string) error {
	if err := o.segments.DeleteByEpisode(ctx, episodeID); err != nil {
		return err
	}
	if o.vectors != nil {
		if err := o.vectors.DeleteByEpisode(ctx, episodeID); err != nil {
			o.logger.WithField(logger.FieldEpisodeID, episodeID).WithError(err).
				Warn("Could not clear previous vectors")
		}
	}
	return nil
}

// fail records the stage failure and moves the episode to failed.
// The original error is returned for the caller.
func (o *Orchestrator) fail(ctx context.Context, episodeID, stage string, cause error) error {
	o.logger.WithFields(logger.Fields{
		logger.FieldEpisodeID: episodeID,
		logger.FieldStage:     stage,
	}).WithError(cause).Error("Pipeline stage failed")

	if err := o.episodes.MarkFailed(ctx, episodeID, cause.Error()); err != nil {
		o.logger.WithField(logger.FieldEpisodeID, episodeID).WithError(err).
			Error("Could not mark episode failed")
	}
	if err := o.logs.Append(ctx, &domain.ProcessingLog{
		EpisodeID:    episodeID,
		Stage:        stage,
		Status:       domain.LogStatusFailed,
		ErrorMessage: cause.Error(),
	}); err != nil {
		o.logger.WithField(logger.FieldEpisodeID, episodeID).WithError(err).
			Error("Could not append failure log")
	}
	return cause
}

func (o *Orchestrator) logStage(ctx context.Context, episodeID, stage string, meta domain.JSONMap) {
	if err := o.logs.Append(ctx, &domain.ProcessingLog{
		EpisodeID: episodeID,
		Stage:     stage,
		Status:    domain.LogStatusCompleted,
		Metadata:  meta,
	}); err != nil {
		o.logger.WithFields(logger.Fields{
			logger.FieldEpisodeID: episodeID,
			logger.FieldStage:     stage,
		}).WithError(err).Warn("Could not append stage log")
	}
}
