package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/logger"
)

const cacheFileName = "processed_episodes.json"

// Entry records one completed episode in the local cache.
type Entry struct {
	EpisodeID   string    `json:"episode_id"`
	SourceRef   string    `json:"source_ref"`
	Title       string    `json:"title,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

type cacheFile struct {
	Entries map[string]Entry `json:"entries"`
}

// CompletedFinder is the slice of the store the cache consults on a miss.
type CompletedFinder interface {
	FindCompletedBySourceRef(ctx context.Context, sourceRef string) (*domain.Episode, error)
}

// Cache answers "was this source reference already fully processed"
// before any identity resolution or store round trip. The local tier is
// a JSON file keyed by source reference; the store is consulted on a
// miss and completed rows are backfilled so the next check stays local.
type Cache struct {
	mu       sync.Mutex
	path     string
	enabled  bool
	entries  map[string]Entry
	episodes CompletedFinder
	logger   *logger.Logger
}

// New loads the cache from dir, creating an empty one when no file
// exists yet. A disabled cache skips the local tier entirely.
func New(dir string, enabled bool, episodes CompletedFinder, log *logger.Logger) (*Cache, error) {
	c := &Cache{
		path:     filepath.Join(dir, cacheFileName),
		enabled:  enabled,
		entries:  make(map[string]Entry),
		episodes: episodes,
		logger:   log,
	}
	if !enabled {
		return c, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	if err := c.load(); err != nil {
		// A corrupt cache file is not fatal; start fresh and let
		// store lookups repopulate it.
		log.WithError(err).Warn("Could not load dedup cache, starting empty")
		c.entries = make(map[string]Entry)
	}
	return c, nil
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Entries != nil {
		c.entries = f.Entries
	}
	return nil
}

// save rewrites the whole file. The entry set is small (one row per
// completed episode) so a full rewrite is simpler than appending.
func (c *Cache) save() error {
	data, err := json.MarshalIndent(cacheFile{Entries: c.entries}, "", "  ")
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// CheckIfProcessed reports whether sourceRef was already processed to
// completion. Local hits answer immediately; otherwise the store is
// queried and a completed row is backfilled into the local tier.
func (c *Cache) CheckIfProcessed(ctx context.Context, sourceRef string) (*Entry, bool, error) {
	if c.enabled {
		c.mu.Lock()
		entry, ok := c.entries[sourceRef]
		c.mu.Unlock()
		if ok {
			return &entry, true, nil
		}
	}

	episode, err := c.episodes.FindCompletedBySourceRef(ctx, sourceRef)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	entry := Entry{
		EpisodeID:   episode.ID,
		SourceRef:   sourceRef,
		Title:       episode.Title,
		ProcessedAt: episode.UpdatedAt,
	}
	if c.enabled {
		if err := c.put(entry); err != nil {
			c.logger.WithField(logger.FieldSourceRef, sourceRef).WithError(err).
				Warn("Could not backfill dedup cache")
		}
	}
	return &entry, true, nil
}

// MarkProcessed records a completed episode in the local tier.
func (c *Cache) MarkProcessed(episodeID, sourceRef, title string) error {
	if !c.enabled {
		return nil
	}
	return c.put(Entry{
		EpisodeID:   episodeID,
		SourceRef:   sourceRef,
		Title:       title,
		ProcessedAt: time.Now().UTC(),
	})
}

func (c *Cache) put(entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.SourceRef] = entry
	return c.save()
}

// Stats summarizes the local tier for the admin endpoint.
type Stats struct {
	Enabled       bool    `json:"cache_enabled"`
	TotalCached   int     `json:"total_cached"`
	RecentEntries []Entry `json:"recent_entries"`
}

// Stats returns entry counts plus the most recently processed entries.
func (c *Cache) Stats(recentLimit int) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ProcessedAt.After(entries[j].ProcessedAt)
	})
	if recentLimit > 0 && len(entries) > recentLimit {
		entries = entries[:recentLimit]
	}
	return Stats{
		Enabled:       c.enabled,
		TotalCached:   len(c.entries),
		RecentEntries: entries,
	}
}
