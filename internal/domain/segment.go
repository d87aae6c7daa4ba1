package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Vector stores an embedding as a JSON float array. A nil Vector means the
// segment was persisted without an embedding (per-segment generation failed).
type Vector []float32

// Value implements the driver.Valuer interface for database serialization.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Vector")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, v)
}

// Segment is a speaker-attributed span of transcript text with timing and
// an optional embedding. Segments are insert-only: created during a
// successful pipeline run, never mutated, deleted only with their episode.
type Segment struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	EpisodeID    string    `gorm:"type:text;not null;index:idx_segments_episode" json:"episode_id"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	Speaker      string    `gorm:"type:text" json:"speaker"`
	StartSeconds float64   `json:"start_seconds"`
	EndSeconds   float64   `json:"end_seconds"`
	Embedding    Vector    `gorm:"type:text" json:"embedding,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for Segment.
func (Segment) TableName() string {
	return "segments"
}
