package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a status query for an unknown episode id.
var ErrNotFound = errors.New("episode not found")

// ReferenceParseError indicates a source reference that matched none of the
// recognized patterns. It fails only the single submission that carried it.
type ReferenceParseError struct {
	Ref string
}

func (e *ReferenceParseError) Error() string {
	return fmt.Sprintf("unrecognized source reference: %q", e.Ref)
}

// ExternalServiceError wraps a failure from acquisition, transcription,
// metadata, or embedding providers. Not retried by the core.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// PersistenceError wraps a durable-store write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConfigurationError indicates a missing required credential or setting.
// Fatal at process startup, never per-item.
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", e.Setting)
}
