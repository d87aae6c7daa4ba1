package service

import (
	"context"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/logger"
	"github.com/AnantSomani/elara2/internal/repository"
)

// QueryEmbedder embeds search queries.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs similarity search over indexed segments.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, episodeID string) ([]repository.VectorHit, error)
}

// SegmentFetcher loads segment rows by id.
type SegmentFetcher interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.Segment, error)
}

// SearchHit is one scored segment.
type SearchHit struct {
	Segment domain.Segment `json:"segment"`
	Score   float32        `json:"score"`
}

// SearchService answers semantic queries over transcript segments.
// The vector index returns candidates; the relational store supplies
// the authoritative rows.
type SearchService struct {
	embedder QueryEmbedder
	vectors  VectorSearcher
	segments SegmentFetcher
	logger   *logger.Logger
}

// NewSearchService wires a SearchService.
func NewSearchService(embedder QueryEmbedder, vectors VectorSearcher, segments SegmentFetcher, log *logger.Logger) *SearchService {
	return &SearchService{
		embedder: embedder,
		vectors:  vectors,
		segments: segments,
		logger:   log,
	}
}

// Search embeds query and returns the topK most similar segments,
// optionally scoped to one episode. Hits whose rows have since been
// deleted are dropped.
func (s *SearchService) Search(ctx context.Context, query string, topK int, episodeID string) ([]SearchHit, error) {
	if topK <= 0 {
		topK = 10
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := s.vectors.Search(ctx, vector, topK, episodeID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []SearchHit{}, nil
	}

	ids := make([]string, len(candidates))
	scores := make(map[string]float32, len(candidates))
	for i, c := range candidates {
		ids[i] = c.SegmentID
		scores[c.SegmentID] = c.Score
	}

	rows, err := s.segments.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Segment, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	hits := make([]SearchHit, 0, len(candidates))
	for _, c := range candidates {
		row, ok := byID[c.SegmentID]
		if !ok {
			continue
		}
		// Vectors are index-internal; no reason to ship them back.
		row.Embedding = nil
		hits = append(hits, SearchHit{Segment: row, Score: c.Score})
	}
	return hits, nil
}
