package repository

import (
	"context"

	"github.com/AnantSomani/elara2/internal/domain"
	"gorm.io/gorm"
)

// ProcessingLogRepository handles the append-only processing log.
type ProcessingLogRepository struct {
	db *gorm.DB
}

// NewProcessingLogRepository creates a new ProcessingLogRepository.
func NewProcessingLogRepository(db *gorm.DB) *ProcessingLogRepository {
	return &ProcessingLogRepository{db: db}
}

// Append writes one log entry.
func (r *ProcessingLogRepository) Append(ctx context.Context, entry *domain.ProcessingLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return &domain.PersistenceError{Op: "append processing log", Err: err}
	}
	return nil
}

// ListByEpisode returns log entries for an episode in insertion order.
func (r *ProcessingLogRepository) ListByEpisode(ctx context.Context, episodeID string) ([]domain.ProcessingLog, error) {
	var entries []domain.ProcessingLog
	err := r.db.WithContext(ctx).
		Where("episode_id = ?", episodeID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list processing logs", Err: err}
	}
	return entries, nil
}
