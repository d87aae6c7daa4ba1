package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/AnantSomani/elara2/internal/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Processor runs the pipeline for one already-resolved episode.
type Processor interface {
	Process(ctx context.Context, episodeID string, opts Options) (*Outcome, error)
}

// RefProcessor takes one source reference end to end: dedup check,
// identity resolution, pipeline run.
type RefProcessor interface {
	ProcessRef(ctx context.Context, sourceRef string, opts Options) (*Outcome, error)
}

// ItemResult is the per-input outcome of a batch run, indexed to the
// input slice so callers can line results up with what they submitted.
type ItemResult struct {
	SourceRef string   `json:"source_ref"`
	EpisodeID string   `json:"episode_id,omitempty"`
	Outcome   *Outcome `json:"outcome,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// BatchResult is the summary of one batch run.
type BatchResult struct {
	BatchID   string       `json:"batch_id"`
	Items     []ItemResult `json:"items"`
	Succeeded int          `json:"succeeded"`
	Skipped   int          `json:"skipped"`
	Failed    int          `json:"failed"`
}

// Runner processes batches of source references with bounded
// concurrency. One failing item never affects its siblings.
type Runner struct {
	processor RefProcessor
	maxWeight int64
	logger    *logger.Logger
}

// NewRunner creates a Runner allowing at most maxConcurrent items in
// flight. Values below one are clamped to one.
func NewRunner(processor RefProcessor, maxConcurrent int, log *logger.Logger) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{
		processor: processor,
		maxWeight: int64(maxConcurrent),
		logger:    log,
	}
}

// Run processes every reference in refs, at most maxConcurrent at a
// time. The returned items are ordered like refs. Canceling ctx stops
// unstarted items; items already running finish their current stage
// before observing the cancellation.
func (r *Runner) Run(ctx context.Context, refs []string, opts Options) *BatchResult {
	return r.RunWithID(ctx, uuid.New().String(), refs, opts)
}

// RunWithID is Run with a caller-supplied batch id, for callers that
// hand the id out before the batch finishes.
func (r *Runner) RunWithID(ctx context.Context, batchID string, refs []string, opts Options) *BatchResult {
	log := r.logger.WithField(logger.FieldBatchID, batchID)
	log.WithField("items", len(refs)).Info("Batch run started")

	sem := semaphore.NewWeighted(r.maxWeight)
	items := make([]ItemResult, len(refs))

	var wg sync.WaitGroup
	for i, ref := range refs {
		items[i] = ItemResult{SourceRef: ref}

		if err := sem.Acquire(ctx, 1); err != nil {
			items[i].Error = err.Error()
			continue
		}
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			defer sem.Release(1)
			// A panicking item must not take down its siblings.
			defer func() {
				if rec := recover(); rec != nil {
					log.WithField(logger.FieldSourceRef, ref).
						Error(fmt.Sprintf("Item panicked: %v", rec))
					items[i] = ItemResult{SourceRef: ref, Error: fmt.Sprintf("panic: %v", rec)}
				}
			}()
			items[i] = r.runOne(ctx, ref, opts)
		}(i, ref)
	}
	wg.Wait()

	result := &BatchResult{BatchID: batchID, Items: items}
	for _, item := range items {
		switch {
		case item.Error != "":
			result.Failed++
		case item.Outcome != nil && item.Outcome.Skipped:
			result.Skipped++
		default:
			result.Succeeded++
		}
	}
	log.WithFields(logger.Fields{
		"succeeded": result.Succeeded,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	}).Info("Batch run finished")
	return result
}

func (r *Runner) runOne(ctx context.Context, ref string, opts Options) ItemResult {
	item := ItemResult{SourceRef: ref}

	outcome, err := r.processor.ProcessRef(ctx, ref, opts)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.EpisodeID = outcome.EpisodeID
	item.Outcome = outcome
	return item
}
