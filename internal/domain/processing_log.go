package domain

import "time"

// LogStatus is the recorded outcome of one pipeline stage.
type LogStatus string

const (
	LogStatusCompleted LogStatus = "completed"
	LogStatusFailed    LogStatus = "failed"
)

// ProcessingLog is an append-only record of a stage outcome for an episode.
type ProcessingLog struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EpisodeID    string    `gorm:"type:text;not null;index:idx_processing_logs_episode" json:"episode_id"`
	Stage        string    `gorm:"type:text;not null" json:"stage"`
	Status       LogStatus `gorm:"type:text;not null" json:"status"`
	ErrorMessage string    `gorm:"type:text" json:"error_message,omitempty"`
	Metadata     JSONMap   `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for ProcessingLog.
func (ProcessingLog) TableName() string {
	return "processing_logs"
}
