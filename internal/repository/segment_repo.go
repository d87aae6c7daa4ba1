package repository

import (
	"context"

	"github.com/AnantSomani/elara2/internal/domain"
	"gorm.io/gorm"
)

// SegmentRepository handles segment persistence. Segments are insert-only.
type SegmentRepository struct {
	db *gorm.DB
}

// NewSegmentRepository creates a new SegmentRepository.
func NewSegmentRepository(db *gorm.DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// CreateBatch inserts all segments for an episode in one statement.
func (r *SegmentRepository) CreateBatch(ctx context.Context, segments []domain.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&segments).Error; err != nil {
		return &domain.PersistenceError{Op: "create segments", Err: err}
	}
	return nil
}

// ListByEpisode returns an episode's segments ordered by start time.
func (r *SegmentRepository) ListByEpisode(ctx context.Context, episodeID string) ([]domain.Segment, error) {
	var segments []domain.Segment
	err := r.db.WithContext(ctx).
		Where("episode_id = ?", episodeID).
		Order("start_seconds ASC").
		Find(&segments).Error
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list segments", Err: err}
	}
	return segments, nil
}

// GetByIDs retrieves segments by primary key, used to hydrate vector search hits.
func (r *SegmentRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Segment, error) {
	if len(ids) == 0 {
		return []domain.Segment{}, nil
	}
	var segments []domain.Segment
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&segments).Error; err != nil {
		return nil, &domain.PersistenceError{Op: "get segments", Err: err}
	}
	return segments, nil
}

// CountByEpisode counts persisted segments for an episode.
func (r *SegmentRepository) CountByEpisode(ctx context.Context, episodeID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Segment{}).
		Where("episode_id = ?", episodeID).
		Count(&count).Error
	if err != nil {
		return 0, &domain.PersistenceError{Op: "count segments", Err: err}
	}
	return count, nil
}

// DeleteByEpisode removes all segments owned by an episode. Used only when
// the owning episode is deleted or force-reprocessed.
func (r *SegmentRepository) DeleteByEpisode(ctx context.Context, episodeID string) error {
	if err := r.db.WithContext(ctx).Delete(&domain.Segment{}, "episode_id = ?", episodeID).Error; err != nil {
		return &domain.PersistenceError{Op: "delete segments", Err: err}
	}
	return nil
}
