package dedup

import (
	"context"
	"io"
	"testing"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/AnantSomani/elara2/internal/logger"
)

type fakeFinder struct {
	episodes map[string]*domain.Episode // keyed by source_ref
	calls    int
}

func (g *fakeFinder) FindCompletedBySourceRef(_ context.Context, sourceRef string) (*domain.Episode, error) {
	g.calls++
	ep, ok := g.episodes[sourceRef]
	if !ok || ep.Status != domain.EpisodeStatusCompleted {
		return nil, domain.ErrNotFound
	}
	return ep, nil
}

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Format: "text", Output: io.Discard})
}

func newTestCache(t *testing.T, finder *fakeFinder) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), true, finder, testLogger())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	return c
}

func TestCheckIfProcessed(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown reference", func(t *testing.T) {
		c := newTestCache(t, &fakeFinder{episodes: map[string]*domain.Episode{}})
		_, processed, err := c.CheckIfProcessed(ctx, "https://youtube.com/watch?v=missing0000")
		if err != nil {
			t.Fatalf("CheckIfProcessed error = %v", err)
		}
		if processed {
			t.Error("unknown reference reported as processed")
		}
	})

	t.Run("pending episode is not processed", func(t *testing.T) {
		finder := &fakeFinder{episodes: map[string]*domain.Episode{
			"ref1": {ID: "ep1", SourceRef: "ref1", Status: domain.EpisodeStatusPending},
		}}
		c := newTestCache(t, finder)
		_, processed, err := c.CheckIfProcessed(ctx, "ref1")
		if err != nil {
			t.Fatalf("CheckIfProcessed error = %v", err)
		}
		if processed {
			t.Error("pending episode reported as processed")
		}
	})

	t.Run("store hit backfills local tier", func(t *testing.T) {
		finder := &fakeFinder{episodes: map[string]*domain.Episode{
			"ref1": {ID: "ep1", SourceRef: "ref1", Title: "Done", Status: domain.EpisodeStatusCompleted},
		}}
		c := newTestCache(t, finder)

		entry, processed, err := c.CheckIfProcessed(ctx, "ref1")
		if err != nil {
			t.Fatalf("first check error = %v", err)
		}
		if !processed {
			t.Fatal("completed episode not reported as processed")
		}
		if entry.EpisodeID != "ep1" || entry.Title != "Done" {
			t.Errorf("entry = %+v, want ep1/Done", entry)
		}
		if finder.calls != 1 {
			t.Fatalf("store calls = %d, want 1", finder.calls)
		}

		// Second check must be answered locally.
		_, processed, err = c.CheckIfProcessed(ctx, "ref1")
		if err != nil {
			t.Fatalf("second check error = %v", err)
		}
		if !processed {
			t.Error("backfilled reference not reported as processed")
		}
		if finder.calls != 1 {
			t.Errorf("store calls after backfill = %d, want 1", finder.calls)
		}
	})
}

func TestMarkProcessedSurvivesReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	finder := &fakeFinder{episodes: map[string]*domain.Episode{}}

	c, err := New(dir, true, finder, testLogger())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}
	if err := c.MarkProcessed("ep1", "ref1", "Saved Episode"); err != nil {
		t.Fatalf("MarkProcessed error = %v", err)
	}

	reloaded, err := New(dir, true, finder, testLogger())
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	entry, processed, err := reloaded.CheckIfProcessed(ctx, "ref1")
	if err != nil {
		t.Fatalf("CheckIfProcessed error = %v", err)
	}
	if !processed {
		t.Fatal("entry lost across reload")
	}
	if entry.EpisodeID != "ep1" {
		t.Errorf("episode id = %q, want %q", entry.EpisodeID, "ep1")
	}
	if finder.calls != 0 {
		t.Errorf("store calls = %d, want 0", finder.calls)
	}
}

func TestDisabledCacheSkipsLocalTier(t *testing.T) {
	ctx := context.Background()
	finder := &fakeFinder{episodes: map[string]*domain.Episode{
		"ref1": {ID: "ep1", SourceRef: "ref1", Status: domain.EpisodeStatusCompleted},
	}}
	c, err := New(t.TempDir(), false, finder, testLogger())
	if err != nil {
		t.Fatalf("New error = %v", err)
	}

	for i := 0; i < 2; i++ {
		_, processed, err := c.CheckIfProcessed(ctx, "ref1")
		if err != nil {
			t.Fatalf("CheckIfProcessed error = %v", err)
		}
		if !processed {
			t.Fatal("completed episode not reported as processed")
		}
	}
	if finder.calls != 2 {
		t.Errorf("store calls = %d, want 2 (no local tier when disabled)", finder.calls)
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, &fakeFinder{episodes: map[string]*domain.Episode{}})
	for _, id := range []string{"ep1", "ep2", "ep3"} {
		if err := c.MarkProcessed(id, "ref-"+id, "Title "+id); err != nil {
			t.Fatalf("MarkProcessed(%q) error = %v", id, err)
		}
	}

	stats := c.Stats(2)
	if !stats.Enabled {
		t.Error("stats should report cache enabled")
	}
	if stats.TotalCached != 3 {
		t.Errorf("total cached = %d, want 3", stats.TotalCached)
	}
	if len(stats.RecentEntries) != 2 {
		t.Errorf("recent entries = %d, want 2", len(stats.RecentEntries))
	}
}
