package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// EpisodeStatus represents the processing status of an episode.
// Transitions move forward only (pending -> processing -> completed/failed).
// A failed run may be retried by resubmitting; completed episodes need a
// force reprocess, and force also reclaims a row stuck at processing
// after a crash.
type EpisodeStatus string

const (
	EpisodeStatusPending    EpisodeStatus = "pending"
	EpisodeStatusProcessing EpisodeStatus = "processing"
	EpisodeStatusCompleted  EpisodeStatus = "completed"
	EpisodeStatusFailed     EpisodeStatus = "failed"
)

// CanTransitionTo reports whether s may move to next.
func (s EpisodeStatus) CanTransitionTo(next EpisodeStatus, force bool) bool {
	switch s {
	case EpisodeStatusPending:
		return next == EpisodeStatusProcessing
	case EpisodeStatusProcessing:
		if next == EpisodeStatusCompleted || next == EpisodeStatusFailed {
			return true
		}
		return force && next == EpisodeStatusProcessing
	case EpisodeStatusCompleted:
		return force && next == EpisodeStatusProcessing
	case EpisodeStatusFailed:
		return next == EpisodeStatusProcessing
	}
	return false
}

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// JSONArray is a custom type for storing lists of JSON objects in the
// database. Used for chapters and entity mentions.
type JSONArray []interface{}

// Value implements the driver.Valuer interface for database serialization.
func (a JSONArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*a = JSONArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// JSONMap is a custom type for storing arbitrary JSON objects in the database.
// Used for processing metadata and structured-artifact blobs.
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan JSONMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Episode represents one unit of ingested content tracked end-to-end
// through the enrichment pipeline. The ID is stable: the parsed video id
// for URL submissions or a UUIDv5 of the feed GUID for feed submissions.
type Episode struct {
	ID                 string        `gorm:"type:text;primaryKey" json:"id"`
	SourceRef          string        `gorm:"type:text;not null;index:idx_episodes_source_ref" json:"source_ref"`
	Title              string        `gorm:"type:text" json:"title"`
	Description        string        `gorm:"type:text" json:"description"`
	DurationSeconds    int           `json:"duration_seconds"`
	AudioURL           string        `gorm:"type:text" json:"audio_url,omitempty"`
	Status             EpisodeStatus `gorm:"type:text;index:idx_episodes_status;default:pending" json:"status"`
	Transcript         string        `gorm:"type:text" json:"transcript,omitempty"`
	Chapters           JSONArray     `gorm:"type:text" json:"chapters,omitempty"`
	Entities           JSONArray     `gorm:"type:text" json:"entities,omitempty"`
	Speakers           StringArray   `gorm:"type:text" json:"speakers,omitempty"`
	ProcessingMetadata JSONMap       `gorm:"type:text" json:"processing_metadata,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Episode.
func (Episode) TableName() string {
	return "episodes"
}
