package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/logger"
	"github.com/AnantSomani/elara2/internal/media"
	"github.com/AnantSomani/elara2/internal/repository"
	"github.com/AnantSomani/elara2/internal/transcribe"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard})
}

type fakeEpisodes struct {
	mu       sync.Mutex
	episodes map[string]*domain.Episode
	fields   map[string]map[string]interface{}
	failed   map[string]string
}

func newFakeEpisodes(eps ...*domain.Episode) *fakeEpisodes {
	f := &fakeEpisodes{
		episodes: make(map[string]*domain.Episode),
		fields:   make(map[string]map[string]interface{}),
		failed:   make(map[string]string),
	}
	for _, ep := range eps {
		f.episodes[ep.ID] = ep
	}
	return f
}

func (f *fakeEpisodes) GetByID(_ context.Context, id string) (*domain.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.episodes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *ep
	return &copied, nil
}

func (f *fakeEpisodes) UpdateStatus(_ context.Context, id string, status domain.EpisodeStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.episodes[id].Status = status
	return nil
}

func (f *fakeEpisodes) UpdateFields(_ context.Context, id string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields[id] = fields
	if status, ok := fields["status"].(domain.EpisodeStatus); ok {
		f.episodes[id].Status = status
	}
	return nil
}

func (f *fakeEpisodes) MarkFailed(_ context.Context, id string, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.episodes[id].Status = domain.EpisodeStatusFailed
	f.failed[id] = errMsg
	return nil
}

type fakeSegments struct {
	mu      sync.Mutex
	created []domain.Segment
	deleted []string
}

func (f *fakeSegments) CreateBatch(_ context.Context, segments []domain.Segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, segments...)
	return nil
}

func (f *fakeSegments) DeleteByEpisode(_ context.Context, episodeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, episodeID)
	return nil
}

type fakeLogs struct {
	mu      sync.Mutex
	entries []domain.ProcessingLog
}

func (f *fakeLogs) Append(_ context.Context, entry *domain.ProcessingLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeLogs) byStage(stage string) []domain.ProcessingLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ProcessingLog
	for _, e := range f.entries {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

type fakeVectors struct {
	mu      sync.Mutex
	upserts map[string][]float32
	deleted []string
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{upserts: make(map[string][]float32)}
}

func (f *fakeVectors) Upsert(_ context.Context, segmentID string, vector []float32, _ *repository.SegmentPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts[segmentID] = vector
	return nil
}

func (f *fakeVectors) DeleteByEpisode(_ context.Context, episodeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, episodeID)
	return nil
}

type fakeMarker struct {
	mu     sync.Mutex
	marked []string
}

func (f *fakeMarker) MarkProcessed(episodeID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, episodeID)
	return nil
}

type fakeAcquirer struct {
	url string
	err error
}

func (f *fakeAcquirer) Download(_ context.Context, _, _ string) (*media.AcquireResult, error) {
	return nil, errors.New("download path not used in tests")
}

func (f *fakeAcquirer) DirectURL(_ context.Context, _ string) (string, error) {
	return f.url, f.err
}

type fakeTranscriber struct {
	result *transcribe.Result
	err    error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) (*transcribe.Result, error) {
	return f.result, f.err
}

type fakeEmbedder struct {
	failOn string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.failOn != "" && text == f.failOn {
		return nil, fmt.Errorf("embedding unavailable")
	}
	return []float32{0.1, 0.2}, nil
}

func (f *fakeEmbedder) Model() string { return "test-model" }

type fixtures struct {
	episodes *fakeEpisodes
	segments *fakeSegments
	logs     *fakeLogs
	vectors  *fakeVectors
	marker   *fakeMarker
	orch     *Orchestrator
}

func defaultResult() *transcribe.Result {
	return &transcribe.Result{
		ID:              "job-1",
		Text:            "welcome thanks",
		DurationSeconds: 120,
		Utterances: []transcribe.Utterance{
			{Speaker: "A", Text: "welcome to the show", StartMs: 0, EndMs: 2000},
			{Speaker: "B", Text: "thanks for having me", StartMs: 2000, EndMs: 4000},
		},
		Chapters: []transcribe.Chapter{
			{Headline: "Intro", StartMs: 0, EndMs: 4000},
		},
		Entities: []transcribe.Entity{
			{Type: "person", Text: "Ada", StartMs: 500},
		},
	}
}

func newFixtures(ep *domain.Episode, transcriber Transcriber, embedder Embedder) *fixtures {
	f := &fixtures{
		episodes: newFakeEpisodes(ep),
		segments: &fakeSegments{},
		logs:     &fakeLogs{},
		vectors:  newFakeVectors(),
		marker:   &fakeMarker{},
	}
	f.orch = NewOrchestrator(OrchestratorDeps{
		Episodes:    f.episodes,
		Segments:    f.segments,
		Logs:        f.logs,
		Vectors:     f.vectors,
		Marker:      f.marker,
		Acquirer:    &fakeAcquirer{url: "https://audio.example/ep.m4a"},
		Transcriber: transcriber,
		Embedder:    embedder,
		Logger:      testLogger(),
	})
	return f
}

func TestProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("full run completes the episode", func(t *testing.T) {
		ep := &domain.Episode{ID: "ep1", SourceRef: "ref1", Title: "Show", Status: domain.EpisodeStatusPending}
		f := newFixtures(ep, &fakeTranscriber{result: defaultResult()}, &fakeEmbedder{})

		outcome, err := f.orch.Process(ctx, "ep1", Options{})
		if err != nil {
			t.Fatalf("Process error = %v", err)
		}
		if outcome.Skipped {
			t.Fatal("run should not be skipped")
		}
		if outcome.SegmentCount != 2 || outcome.EmbeddedCount != 2 || outcome.IndexedCount != 2 {
			t.Errorf("outcome = %+v, want 2 segments embedded and indexed", outcome)
		}
		if f.episodes.episodes["ep1"].Status != domain.EpisodeStatusCompleted {
			t.Errorf("status = %q, want completed", f.episodes.episodes["ep1"].Status)
		}
		if len(f.segments.created) != 2 {
			t.Fatalf("segments created = %d, want 2", len(f.segments.created))
		}
		if f.segments.created[0].StartSeconds != 0 || f.segments.created[1].StartSeconds != 2 {
			t.Errorf("segment times not converted to seconds: %+v", f.segments.created)
		}
		if f.segments.created[0].Speaker != "Speaker A" {
			t.Errorf("speaker = %q, want %q", f.segments.created[0].Speaker, "Speaker A")
		}

		fields := f.episodes.fields["ep1"]
		if fields["transcript"] != "welcome thanks" {
			t.Errorf("transcript field = %v", fields["transcript"])
		}
		if fields["duration_seconds"] != 120 {
			t.Errorf("duration field = %v, want 120", fields["duration_seconds"])
		}

		for _, stage := range []string{StageAcquire, StageTranscribe, StageExtract, StageEmbed, StagePersist} {
			entries := f.logs.byStage(stage)
			if len(entries) != 1 || entries[0].Status != domain.LogStatusCompleted {
				t.Errorf("stage %s logs = %+v, want one completed entry", stage, entries)
			}
		}

		if len(f.marker.marked) != 1 || f.marker.marked[0] != "ep1" {
			t.Errorf("marker calls = %v, want [ep1]", f.marker.marked)
		}
	})

	t.Run("transcription failure marks the episode failed", func(t *testing.T) {
		ep := &domain.Episode{ID: "ep1", SourceRef: "ref1", Status: domain.EpisodeStatusPending}
		cause := &domain.ExternalServiceError{Service: "assemblyai", Err: errors.New("engine down")}
		f := newFixtures(ep, &fakeTranscriber{err: cause}, &fakeEmbedder{})

		_, err := f.orch.Process(ctx, "ep1", Options{})
		if !errors.Is(err, cause) {
			t.Fatalf("Process error = %v, want the transcription failure", err)
		}
		if f.episodes.episodes["ep1"].Status != domain.EpisodeStatusFailed {
			t.Errorf("status = %q, want failed", f.episodes.episodes["ep1"].Status)
		}
		if f.episodes.failed["ep1"] == "" {
			t.Error("failure message not recorded on episode")
		}
		entries := f.logs.byStage(StageTranscribe)
		if len(entries) != 1 || entries[0].Status != domain.LogStatusFailed {
			t.Errorf("transcribe logs = %+v, want one failed entry", entries)
		}
		if len(f.segments.created) != 0 {
			t.Error("no segments should persist after a transcription failure")
		}
	})

	t.Run("completed episode is skipped without force", func(t *testing.T) {
		ep := &domain.Episode{ID: "ep1", SourceRef: "ref1", Status: domain.EpisodeStatusCompleted}
		f := newFixtures(ep, &fakeTranscriber{result: defaultResult()}, &fakeEmbedder{})

		outcome, err := f.orch.Process(ctx, "ep1", Options{})
		if err != nil {
			t.Fatalf("Process error = %v", err)
		}
		if !outcome.Skipped {
			t.Fatal("completed episode should be skipped")
		}
		if len(f.segments.created) != 0 {
			t.Error("skipped run must not write segments")
		}
	})

	t.Run("failed episode reprocesses on plain resubmit", func(t *testing.T) {
		ep := &domain.Episode{ID: "ep1", SourceRef: "ref1", Status: domain.EpisodeStatusFailed}
		f := newFixtures(ep, &fakeTranscriber{result: defaultResult()}, &fakeEmbedder{})

		outcome, err := f.orch.Process(ctx, "ep1", Options{})
		if err != nil {
			t.Fatalf("Process error = %v", err)
		}
		if outcome.Skipped {
			t.Fatalf("failed episode was skipped (%q); want a fresh run", outcome.SkipReason)
		}
		if f.episodes.episodes["ep1"].Status != domain.EpisodeStatusCompleted {
			t.Errorf("status = %q, want completed after retry", f.episodes.episodes["ep1"].Status)
		}
		if len(f.segments.deleted) != 1 || f.segments.deleted[0] != "ep1" {
			t.Errorf("segment deletes = %v, want leftovers from the failed run cleared", f.segments.deleted)
		}
		if len(f.segments.created) != 2 {
			t.Errorf("segments created = %d, want 2", len(f.segments.created))
		}
	})

	t.Run("force reclaims an episode stuck at processing", func(t *testing.T) {
		ep := &domain.Episode{ID: "ep1", SourceRef: "ref1", Status: domain.EpisodeStatusProcessing}
		f := newFixtures(ep, &fakeTranscriber{result: defaultResult()}, &fakeEmbedder{})

		outcome, err := f.orch.Process(ctx, "ep1", Options{Force: true})
		if err != nil {
			t.Fatalf("Process error = %v", err)
		}
		if outcome.Skipped {
			t.Fatal("forced run should not be skipped")
		}
		if f.episodes.episodes["ep1"].Status != domain.EpisodeStatusCompleted {
			t.Errorf("status = %q, want completed after reclaim", f.episodes.episodes["ep1"].Status)
		}
	})

	t.Run("force reprocess clears previous output", func(t *testing.T) {
		ep := &domain.Episode{ID: "ep1", SourceRef: "ref1", Status: domain.EpisodeStatusCompleted}
		f := newFixtures(ep, &fakeTranscriber{result: defaultResult()}, &fakeEmbedder{})

		outcome, err := f.orch.Process(ctx, "ep1", Options{Force: true})
		if err != nil {
			t.Fatalf("Process error = %v", err)
		}
		if outcome.Skipped {
			t.Fatal("forced run should not be skipped")
		}
		if len(f.segments.deleted) != 1 || f.segments.deleted[0] != "ep1" {
			t.Errorf("segment deletes = %v, want [ep1]", f.segments.deleted)
		}
		if len(f.vectors.deleted) != 1 {
			t.Errorf("vector deletes = %v, want one", f.vectors.deleted)
		}
		if f.episodes.episodes["ep1"].Status != domain.EpisodeStatusCompleted {
			t.Errorf("status = %q, want completed after rerun", f.episodes.episodes["ep1"].Status)
		}
	})

	t.Run("missing artifacts still complete the episode", func(t *testing.T) {
		result := defaultResult()
		result.Chapters = nil
		result.Entities = nil
		ep := &domain.Episode{ID: "ep1", SourceRef: "ref1", Status: domain.EpisodeStatusPending}
		f := newFixtures(ep, &fakeTranscriber{result: result}, &fakeEmbedder{})

		outcome, err := f.orch.Process(ctx, "ep1", Options{})
		if err != nil {
			t.Fatalf("Process error = %v", err)
		}
		if outcome.Skipped {
			t.Fatal("run should not be skipped")
		}
		if f.episodes.episodes["ep1"].Status != domain.EpisodeStatusCompleted {
			t.Errorf("status = %q, want completed with empty artifacts", f.episodes.episodes["ep1"].Status)
		}
		fields := f.episodes.fields["ep1"]
		if chapters, ok := fields["chapters"].(domain.JSONArray); ok && len(chapters) != 0 {
			t.Errorf("chapters = %v, want empty", chapters)
		}
	})

	t.Run("in-flight episode is rejected", func(t *testing.T) {
		ep := &domain.Episode{ID: "ep1", SourceRef: "ref1", Status: domain.EpisodeStatusProcessing}
		f := newFixtures(ep, &fakeTranscriber{result: defaultResult()}, &fakeEmbedder{})

		_, err := f.orch.Process(ctx, "ep1", Options{})
		if !errors.Is(err, ErrInFlight) {
			t.Fatalf("error = %v, want ErrInFlight", err)
		}
	})

	t.Run("embedding failure keeps the segment without a vector", func(t *testing.T) {
		ep := &domain.Episode{ID: "ep1", SourceRef: "ref1", Status: domain.EpisodeStatusPending}
		f := newFixtures(ep, &fakeTranscriber{result: defaultResult()}, &fakeEmbedder{failOn: "welcome to the show"})

		outcome, err := f.orch.Process(ctx, "ep1", Options{})
		if err != nil {
			t.Fatalf("Process error = %v", err)
		}
		if outcome.SegmentCount != 2 {
			t.Errorf("segment count = %d, want 2", outcome.SegmentCount)
		}
		if outcome.EmbeddedCount != 1 {
			t.Errorf("embedded count = %d, want 1", outcome.EmbeddedCount)
		}
		if outcome.IndexedCount != 1 {
			t.Errorf("indexed count = %d, want 1", outcome.IndexedCount)
		}
		var withVector, withoutVector int
		for _, s := range f.segments.created {
			if s.Embedding == nil {
				withoutVector++
			} else {
				withVector++
			}
		}
		if withVector != 1 || withoutVector != 1 {
			t.Errorf("vectors: %d with, %d without; want 1 and 1", withVector, withoutVector)
		}
		if f.episodes.episodes["ep1"].Status != domain.EpisodeStatusCompleted {
			t.Error("episode should still complete when an embedding fails")
		}
	})
}

type writeJournal struct {
	mu     sync.Mutex
	events []string
}

func (j *writeJournal) add(event string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

type journalEpisodes struct {
	*fakeEpisodes
	journal *writeJournal
}

func (f *journalEpisodes) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	f.journal.add("fields")
	return f.fakeEpisodes.UpdateFields(ctx, id, fields)
}

func (f *journalEpisodes) UpdateStatus(ctx context.Context, id string, status domain.EpisodeStatus) error {
	f.journal.add("status:" + string(status))
	return f.fakeEpisodes.UpdateStatus(ctx, id, status)
}

type journalSegments struct {
	*fakeSegments
	journal *writeJournal
}

func (f *journalSegments) CreateBatch(ctx context.Context, segments []domain.Segment) error {
	f.journal.add("segments")
	return f.fakeSegments.CreateBatch(ctx, segments)
}

type journalLogs struct {
	*fakeLogs
	journal *writeJournal
}

func (f *journalLogs) Append(ctx context.Context, entry *domain.ProcessingLog) error {
	f.journal.add("log:" + entry.Stage)
	return f.fakeLogs.Append(ctx, entry)
}

func TestProcessPersistOrdering(t *testing.T) {
	journal := &writeJournal{}
	ep := &domain.Episode{ID: "ep1", SourceRef: "ref1", Status: domain.EpisodeStatusPending}
	orch := NewOrchestrator(OrchestratorDeps{
		Episodes:    &journalEpisodes{newFakeEpisodes(ep), journal},
		Segments:    &journalSegments{&fakeSegments{}, journal},
		Logs:        &journalLogs{&fakeLogs{}, journal},
		Marker:      &fakeMarker{},
		Acquirer:    &fakeAcquirer{url: "https://audio.example/ep.m4a"},
		Transcriber: &fakeTranscriber{result: defaultResult()},
		Embedder:    &fakeEmbedder{},
		Logger:      testLogger(),
	})

	if _, err := orch.Process(context.Background(), "ep1", Options{}); err != nil {
		t.Fatalf("Process error = %v", err)
	}

	// The item fields land first, then the segment batch, then the
	// persist log entry, and the status flips to completed last.
	keep := map[string]bool{
		"fields":           true,
		"segments":         true,
		"log:persist":      true,
		"status:completed": true,
	}
	var got []string
	for _, e := range journal.events {
		if keep[e] {
			got = append(got, e)
		}
	}
	want := "fields,segments,log:persist,status:completed"
	if strings.Join(got, ",") != want {
		t.Errorf("persist order = %v, want %s", got, want)
	}
}
