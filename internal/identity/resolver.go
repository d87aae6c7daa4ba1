package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/logger"
	"github.com/google/uuid"
)

// referencePatterns are tried in order; the first match wins. They cover
// the YouTube URL shapes the system accepts plus a bare 11-character id.
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:youtu\.be/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:embed/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:shorts/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:vi/)([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`^([0-9A-Za-z_-]{11})$`),
}

// guidNamespace is the fixed UUIDv5 namespace for feed-supplied GUIDs.
var guidNamespace = uuid.MustParse("8e7c2f3a-5b16-4c1d-9f22-6d8a41e0b7c5")

// Resolve derives the stable episode id from a source reference.
// Returns a ReferenceParseError when no pattern matches.
func Resolve(sourceRef string) (string, error) {
	for _, pattern := range referencePatterns {
		if m := pattern.FindStringSubmatch(sourceRef); m != nil {
			return m[1], nil
		}
	}
	return "", &domain.ReferenceParseError{Ref: sourceRef}
}

// ResolveGUID derives a stable id for a feed-supplied globally unique id.
// The same GUID always maps to the same UUIDv5.
func ResolveGUID(guid string) (string, error) {
	if guid == "" {
		return "", &domain.ReferenceParseError{Ref: guid}
	}
	return uuid.NewSHA1(guidNamespace, []byte(guid)).String(), nil
}

// Metadata is best-effort descriptive metadata for an episode.
type Metadata struct {
	Title           string
	Description     string
	DurationSeconds int
}

// MetadataProvider looks up descriptive metadata for a source reference.
type MetadataProvider interface {
	Lookup(ctx context.Context, sourceRef string) (*Metadata, error)
}

// EpisodeStore is the slice of the store the resolver needs.
type EpisodeStore interface {
	GetByID(ctx context.Context, id string) (*domain.Episode, error)
	CreateIfAbsent(ctx context.Context, episode *domain.Episode) (*domain.Episode, error)
}

// Resolver resolves references to episode rows.
type Resolver struct {
	episodes EpisodeStore
	metadata MetadataProvider
	logger   *logger.Logger
}

// NewResolver creates a Resolver bound to a store and a metadata provider.
func NewResolver(episodes EpisodeStore, metadata MetadataProvider, log *logger.Logger) *Resolver {
	return &Resolver{episodes: episodes, metadata: metadata, logger: log}
}

// CreateResult reports what CreateOrFetch did. MetadataDegraded is true
// when the provider failed and placeholder metadata was used; the caller
// can inspect it instead of the failure being silently swallowed.
type CreateResult struct {
	ID               string
	Created          bool
	MetadataDegraded bool
}

// CreateOrFetch returns the id for sourceRef, inserting a pending episode
// row when none exists. Metadata lookup failures never fail the creation.
// The insert is atomic at the store, so sequential calls are idempotent.
func (r *Resolver) CreateOrFetch(ctx context.Context, sourceRef string) (*CreateResult, error) {
	id, err := Resolve(sourceRef)
	if err != nil {
		return nil, err
	}
	return r.createWithID(ctx, id, sourceRef, nil)
}

// CreateOrFetchGUID is the alternate-identity path for feed episodes that
// carry their own globally unique id and descriptive metadata.
func (r *Resolver) CreateOrFetchGUID(ctx context.Context, guid, enclosureURL string, meta *Metadata) (*CreateResult, error) {
	id, err := ResolveGUID(guid)
	if err != nil {
		return nil, err
	}
	return r.createWithID(ctx, id, enclosureURL, meta)
}

func (r *Resolver) createWithID(ctx context.Context, id, sourceRef string, meta *Metadata) (*CreateResult, error) {
	if existing, err := r.episodes.GetByID(ctx, id); err == nil {
		return &CreateResult{ID: existing.ID}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	degraded := false
	if meta == nil {
		m, err := r.metadata.Lookup(ctx, sourceRef)
		if err != nil {
			degraded = true
			r.logger.WithField(logger.FieldSourceRef, sourceRef).WithError(err).
				Warn("Metadata lookup failed, using placeholder values")
			m = &Metadata{Title: fmt.Sprintf("Episode from %s", sourceRef)}
		}
		meta = m
	}

	episode := &domain.Episode{
		ID:              id,
		SourceRef:       sourceRef,
		Title:           meta.Title,
		Description:     meta.Description,
		DurationSeconds: meta.DurationSeconds,
		Status:          domain.EpisodeStatusPending,
	}
	stored, err := r.episodes.CreateIfAbsent(ctx, episode)
	if err != nil {
		return nil, err
	}

	return &CreateResult{
		ID:               stored.ID,
		Created:          true,
		MetadataDegraded: degraded,
	}, nil
}
