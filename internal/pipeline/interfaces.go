package pipeline

import (
	"context"
	"io"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/media"
	"github.com/AnantSomani/elara2/internal/repository"
	"github.com/AnantSomani/elara2/internal/transcribe"
)

// Stage names as recorded in processing logs.
const (
	StageAcquire    = "acquire"
	StageTranscribe = "transcribe"
	StageExtract    = "extract"
	StageEmbed      = "embed"
	StagePersist    = "persist"
)

// AudioAcquirer materializes episode audio.
type AudioAcquirer interface {
	Download(ctx context.Context, sourceRef, episodeID string) (*media.AcquireResult, error)
	DirectURL(ctx context.Context, sourceRef string) (string, error)
}

// Transcriber turns an audio URL into a diarized transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (*transcribe.Result, error)
}

// Embedder generates embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// EpisodeStore is the episode persistence surface the pipeline needs.
type EpisodeStore interface {
	GetByID(ctx context.Context, id string) (*domain.Episode, error)
	UpdateStatus(ctx context.Context, id string, status domain.EpisodeStatus) error
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

// SegmentStore persists transcript segments.
type SegmentStore interface {
	CreateBatch(ctx context.Context, segments []domain.Segment) error
	DeleteByEpisode(ctx context.Context, episodeID string) error
}

// LogStore records per-stage outcomes.
type LogStore interface {
	Append(ctx context.Context, entry *domain.ProcessingLog) error
}

// VectorStore indexes segment embeddings for semantic search.
type VectorStore interface {
	Upsert(ctx context.Context, segmentID string, vector []float32, payload *repository.SegmentPayload) error
	DeleteByEpisode(ctx context.Context, episodeID string) error
}

// ObjectStore uploads audio so the transcription engine can fetch it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	GetURL(key string) string
}

// ProcessedMarker records completed episodes in the dedup tier.
type ProcessedMarker interface {
	MarkProcessed(episodeID, sourceRef, title string) error
}
