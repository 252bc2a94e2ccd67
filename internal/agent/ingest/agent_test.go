package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/feedsift/internal/models"
	"github.com/feedsift/internal/source"
	"github.com/feedsift/internal/storage"
	"github.com/feedsift/internal/storage/sqlite"
	"github.com/feedsift/pkg/logger"
)

// fakeSource serves a fixed listing, or errors when failing is set
type fakeSource struct {
	name    string
	feedID  int64
	drafts  []models.EntryDraft
	failing bool
}

func (f *fakeSource) Name() string  { return f.name }
func (f *fakeSource) FeedID() int64 { return f.feedID }

func (f *fakeSource) Fetch(ctx context.Context) ([]models.EntryDraft, error) {
	if f.failing {
		return nil, errors.New("connection refused")
	}
	return f.drafts, nil
}

func (f *fakeSource) HealthCheck(ctx context.Context) error {
	if f.failing {
		return errors.New("connection refused")
	}
	return nil
}

func newTestRepo(t *testing.T) *sqlite.Repository {
	t.Helper()

	repo, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if err := repo.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return repo
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "disabled"})
}

func draft(feedID int64, externalID, title string) models.EntryDraft {
	return models.EntryDraft{
		FeedID:      feedID,
		ExternalID:  externalID,
		FeedName:    "Fake Feed",
		Title:       title,
		URL:         "https://example.com/" + externalID,
		PublishedAt: time.Now().UTC(),
	}
}

func TestRunDedupAcrossRuns(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	src := &fakeSource{name: "fake", feedID: 1, drafts: []models.EntryDraft{
		draft(1, "100", "A"),
		draft(1, "101", "B"),
	}}
	manager := source.NewManager()
	manager.Register(src)

	agent := NewAgent(manager, repo, testLogger())

	first, err := agent.Run(ctx)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.NewCount != 2 || first.Duplicates != 0 {
		t.Fatalf("unexpected first run: %+v", first)
	}

	// Overlapping listing: one old item, one new
	src.drafts = append(src.drafts, draft(1, "102", "C"))
	second, err := agent.Run(ctx)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.NewCount != 1 || second.Duplicates != 2 {
		t.Fatalf("unexpected second run: %+v", second)
	}

	entries, err := repo.ListEntries(ctx, storage.EntryFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 stored entries, got %d", len(entries))
	}
}

func TestRunMergesMultipleSources(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	manager := source.NewManager()
	manager.Register(&fakeSource{name: "one", feedID: 1, drafts: []models.EntryDraft{draft(1, "100", "A")}})
	manager.Register(&fakeSource{name: "two", feedID: 2, drafts: []models.EntryDraft{draft(2, "100", "B")}})

	agent := NewAgent(manager, repo, testLogger())

	result, err := agent.Run(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// Same external id on different feeds is two distinct entries
	if result.NewCount != 2 {
		t.Fatalf("expected 2 new entries, got %d", result.NewCount)
	}
}

func TestRunAllSourcesFailed(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	src := &fakeSource{name: "fake", feedID: 1, failing: true}
	manager := source.NewManager()
	manager.Register(src)

	agent := NewAgent(manager, repo, testLogger())

	if _, err := agent.Run(ctx); !errors.Is(err, ErrSourceFetch) {
		t.Fatalf("expected ErrSourceFetch, got %v", err)
	}
	if agent.ConsecutiveFailures() != 1 {
		t.Fatalf("expected 1 consecutive failure, got %d", agent.ConsecutiveFailures())
	}

	if _, err := agent.Run(ctx); !errors.Is(err, ErrSourceFetch) {
		t.Fatalf("expected ErrSourceFetch, got %v", err)
	}
	if agent.ConsecutiveFailures() != 2 {
		t.Fatalf("expected 2 consecutive failures, got %d", agent.ConsecutiveFailures())
	}

	// A clean run resets the streak
	src.failing = false
	src.drafts = []models.EntryDraft{draft(1, "100", "A")}
	if _, err := agent.Run(ctx); err != nil {
		t.Fatalf("recovery run failed: %v", err)
	}
	if agent.ConsecutiveFailures() != 0 {
		t.Fatalf("expected failure streak reset, got %d", agent.ConsecutiveFailures())
	}
}

func TestRunPartialSourceFailure(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	manager := source.NewManager()
	manager.Register(&fakeSource{name: "up", feedID: 1, drafts: []models.EntryDraft{draft(1, "100", "A")}})
	manager.Register(&fakeSource{name: "down", feedID: 2, failing: true})

	agent := NewAgent(manager, repo, testLogger())

	result, err := agent.Run(ctx)
	if err != nil {
		t.Fatalf("partial failure should not abort the run: %v", err)
	}
	if result.NewCount != 1 {
		t.Fatalf("expected the healthy source's entry, got %d new", result.NewCount)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 fetch error recorded, got %d", len(result.Errors))
	}
	if agent.ConsecutiveFailures() != 1 {
		t.Fatalf("partial failure should count toward the streak, got %d", agent.ConsecutiveFailures())
	}
}
