package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AnantSomani/elara2/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EpisodeRepository handles episode persistence.
type EpisodeRepository struct {
	db *gorm.DB
}

// NewEpisodeRepository creates a new EpisodeRepository.
func NewEpisodeRepository(db *gorm.DB) *EpisodeRepository {
	return &EpisodeRepository{db: db}
}

// CreateIfAbsent inserts the episode unless a row with its id already
// exists. The insert is atomic at the store (ON CONFLICT DO NOTHING), so
// concurrent creates for the same reference cannot produce duplicate rows.
// Returns the row that is in the store after the call.
func (r *EpisodeRepository) CreateIfAbsent(ctx context.Context, episode *domain.Episode) (*domain.Episode, error) {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(episode).Error; err != nil {
		return nil, &domain.PersistenceError{Op: "create episode", Err: err}
	}
	return r.GetByID(ctx, episode.ID)
}

// GetByID retrieves an episode by id. Returns domain.ErrNotFound for an
// unknown id, distinct from other store failures.
func (r *EpisodeRepository) GetByID(ctx context.Context, id string) (*domain.Episode, error) {
	var episode domain.Episode
	if err := r.db.WithContext(ctx).First(&episode, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.PersistenceError{Op: "get episode", Err: err}
	}
	return &episode, nil
}

// FindCompletedBySourceRef returns the episode for sourceRef only when its
// status is completed; domain.ErrNotFound otherwise.
func (r *EpisodeRepository) FindCompletedBySourceRef(ctx context.Context, sourceRef string) (*domain.Episode, error) {
	var episode domain.Episode
	err := r.db.WithContext(ctx).
		Where("source_ref = ? AND status = ?", sourceRef, domain.EpisodeStatusCompleted).
		First(&episode).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.PersistenceError{Op: "find completed episode", Err: err}
	}
	return &episode, nil
}

// UpdateStatus sets the episode status.
func (r *EpisodeRepository) UpdateStatus(ctx context.Context, id string, status domain.EpisodeStatus) error {
	err := r.db.WithContext(ctx).Model(&domain.Episode{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
	if err != nil {
		return &domain.PersistenceError{Op: "update status", Err: err}
	}
	return nil
}

// UpdateFields applies a partial update to an episode row.
func (r *EpisodeRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	err := r.db.WithContext(ctx).Model(&domain.Episode{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		return &domain.PersistenceError{Op: "update episode", Err: err}
	}
	return nil
}

// MarkFailed sets status=failed and captures the error text into the
// processing metadata blob.
func (r *EpisodeRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	meta := domain.JSONMap{
		"error":     errMsg,
		"failed_at": time.Now().UTC().Format(time.RFC3339),
	}
	return r.UpdateFields(ctx, id, map[string]interface{}{
		"status":              domain.EpisodeStatusFailed,
		"processing_metadata": meta,
	})
}

// Ping verifies store connectivity with a cheap query.
func (r *EpisodeRepository) Ping(ctx context.Context) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Episode{}).Limit(1).Count(&count).Error; err != nil {
		return &domain.PersistenceError{Op: "ping", Err: err}
	}
	return nil
}
