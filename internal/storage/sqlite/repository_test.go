package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/feedsift/internal/models"
	"github.com/feedsift/internal/storage"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if err := repo.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return repo
}

func makeDraft(feedID int64, externalID, title string, publishedAt time.Time) models.EntryDraft {
	return models.EntryDraft{
		FeedID:      feedID,
		ExternalID:  externalID,
		FeedName:    "Test Feed",
		Title:       title,
		URL:         "https://example.com/" + externalID,
		Content:     "<p>content of " + title + "</p>",
		Author:      "tester",
		PublishedAt: publishedAt,
	}
}

func TestInsertIfAbsentDedup(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first, wasNew, err := repo.InsertIfAbsent(ctx, makeDraft(1, "100", "X", now))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if !wasNew {
		t.Fatal("expected first insert to be new")
	}

	// Same identity, different content: existing row wins untouched
	redelivered := makeDraft(1, "100", "X edited", now)
	redelivered.Content = "completely different content"
	second, wasNew, err := repo.InsertIfAbsent(ctx, redelivered)
	if err != nil {
		t.Fatalf("second insert failed: %v", err)
	}
	if wasNew {
		t.Fatal("expected second insert to dedup")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same entry, got %d and %d", first.ID, second.ID)
	}
	if second.Content != first.Content {
		t.Fatalf("content was overwritten on re-fetch: %q", second.Content)
	}
	if second.Title != "X" {
		t.Fatalf("title was overwritten on re-fetch: %q", second.Title)
	}

	// Same external id on a different feed is a distinct entry
	_, wasNew, err = repo.InsertIfAbsent(ctx, makeDraft(2, "100", "Y", now))
	if err != nil {
		t.Fatalf("insert on second feed failed: %v", err)
	}
	if !wasNew {
		t.Fatal("expected distinct identity on another feed to insert")
	}
}

func TestMarkClassifiedSetsAllFields(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	entry, _, err := repo.InsertIfAbsent(ctx, makeDraft(1, "1", "A", time.Now().UTC()))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if entry.Classified() {
		t.Fatal("fresh entry must be unclassified")
	}

	interest := "ai"
	updated, err := repo.MarkClassified(ctx, entry.ID, &interest, true, "• worth reading")
	if err != nil {
		t.Fatalf("mark classified failed: %v", err)
	}

	if updated.ProcessedAt == nil {
		t.Fatal("processed_at not set")
	}
	if updated.Interest == nil || *updated.Interest != "ai" {
		t.Fatalf("interest not set: %v", updated.Interest)
	}
	if updated.IsSignal == nil || !*updated.IsSignal {
		t.Fatal("is_signal not set")
	}
	if updated.Reasoning == nil || *updated.Reasoning != "• worth reading" {
		t.Fatal("reasoning not set")
	}
	if updated.Signal() != models.SignalYes {
		t.Fatalf("expected signal state, got %s", updated.Signal())
	}
}

func TestMarkClassifiedMissingEntry(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)

	_, err := repo.MarkClassified(context.Background(), 9999, nil, false, "r")
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRequeueRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	entry, _, err := repo.InsertIfAbsent(ctx, makeDraft(1, "1", "A", time.Now().UTC()))
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	interest := "dev"
	if _, err := repo.MarkClassified(ctx, entry.ID, &interest, false, "r"); err != nil {
		t.Fatalf("mark classified failed: %v", err)
	}

	if err := repo.Requeue(ctx, entry.ID); err != nil {
		t.Fatalf("requeue failed: %v", err)
	}

	unprocessed := false
	entries, err := repo.ListEntries(ctx, storage.EntryFilter{Processed: &unprocessed, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != entry.ID {
		t.Fatalf("requeued entry missing from unprocessed list: %v", entries)
	}
	if entries[0].Interest != nil || entries[0].IsSignal != nil || entries[0].Reasoning != nil {
		t.Fatal("requeue left classification residue")
	}

	// Classify again: entry moves back to the processed side
	if _, err := repo.MarkClassified(ctx, entry.ID, nil, true, "r2"); err != nil {
		t.Fatalf("reclassify failed: %v", err)
	}
	processed := true
	entries, err = repo.ListEntries(ctx, storage.EntryFilter{Processed: &processed, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one processed entry, got %d", len(entries))
	}
	unproc, err := repo.ListEntries(ctx, storage.EntryFilter{Processed: &unprocessed, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(unproc) != 0 {
		t.Fatalf("expected no unprocessed entries, got %d", len(unproc))
	}
}

func TestRequeueMissingEntry(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)

	if err := repo.Requeue(context.Background(), 9999); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequeueSinceWindow(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	recent, _, _ := repo.InsertIfAbsent(ctx, makeDraft(1, "recent", "Recent", now.Add(-1*time.Hour)))
	old, _, _ := repo.InsertIfAbsent(ctx, makeDraft(1, "old", "Old", now.Add(-72*time.Hour)))

	for _, e := range []*models.Entry{recent, old} {
		if _, err := repo.MarkClassified(ctx, e.ID, nil, false, "r"); err != nil {
			t.Fatalf("mark classified failed: %v", err)
		}
	}

	count, err := repo.RequeueSince(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("requeue since failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 requeued entry, got %d", count)
	}

	got, err := repo.GetEntry(ctx, old.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Classified() {
		t.Fatal("entry outside the window was requeued")
	}
}

func TestRequeueKeepsReadAt(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	entry, _, _ := repo.InsertIfAbsent(ctx, makeDraft(1, "1", "A", time.Now().UTC()))
	if _, err := repo.MarkClassified(ctx, entry.ID, nil, true, "r"); err != nil {
		t.Fatalf("mark classified failed: %v", err)
	}
	if _, err := repo.MarkRead(ctx, entry.ID); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}

	if err := repo.Requeue(ctx, entry.ID); err != nil {
		t.Fatalf("requeue failed: %v", err)
	}

	got, err := repo.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ReadAt == nil {
		t.Fatal("requeue cleared read_at")
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	entry, _, _ := repo.InsertIfAbsent(ctx, makeDraft(1, "1", "A", time.Now().UTC()))

	first, err := repo.MarkRead(ctx, entry.ID)
	if err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if first.ReadAt == nil {
		t.Fatal("read_at not set")
	}

	second, err := repo.MarkRead(ctx, entry.ID)
	if err != nil {
		t.Fatalf("second mark read failed: %v", err)
	}
	if second.ReadAt == nil || !second.ReadAt.Equal(*first.ReadAt) {
		t.Fatalf("read_at changed on repeat call: %v vs %v", first.ReadAt, second.ReadAt)
	}
}

func TestMarkReadMissingEntry(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)

	_, err := repo.MarkRead(context.Background(), 9999)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrdering(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	// Two entries share a published_at; ties break by id ascending
	a, _, _ := repo.InsertIfAbsent(ctx, makeDraft(1, "a", "A", now))
	b, _, _ := repo.InsertIfAbsent(ctx, makeDraft(1, "b", "B", now))
	c, _, _ := repo.InsertIfAbsent(ctx, makeDraft(1, "c", "C", now.Add(time.Hour)))

	entries, err := repo.ListEntries(ctx, storage.EntryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].ID != c.ID {
		t.Fatalf("expected newest first, got %d", entries[0].ID)
	}
	if entries[1].ID != a.ID || entries[2].ID != b.ID {
		t.Fatalf("tie not broken by id ascending: %d, %d", entries[1].ID, entries[2].ID)
	}
}

func TestListFilters(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a, _, _ := repo.InsertIfAbsent(ctx, makeDraft(1, "a", "A", now))
	b, _, _ := repo.InsertIfAbsent(ctx, makeDraft(2, "b", "B", now))

	ai := "ai"
	if _, err := repo.MarkClassified(ctx, a.ID, &ai, true, "r"); err != nil {
		t.Fatalf("mark classified failed: %v", err)
	}
	dev := "dev"
	if _, err := repo.MarkClassified(ctx, b.ID, &dev, false, "r"); err != nil {
		t.Fatalf("mark classified failed: %v", err)
	}

	entries, err := repo.ListEntries(ctx, storage.EntryFilter{Interest: &ai, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != a.ID {
		t.Fatalf("interest filter mismatch: %v", entries)
	}

	signal := true
	entries, err = repo.ListEntries(ctx, storage.EntryFilter{IsSignal: &signal, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != a.ID {
		t.Fatalf("signal filter mismatch: %v", entries)
	}

	feed := int64(2)
	entries, err = repo.ListEntries(ctx, storage.EntryFilter{FeedID: &feed, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != b.ID {
		t.Fatalf("feed filter mismatch: %v", entries)
	}
}

func TestUnclassifiedEligibility(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Default process_after is 24h back: the stale entry is held back
	fresh, _, _ := repo.InsertIfAbsent(ctx, makeDraft(1, "fresh", "Fresh", now))
	if _, _, err := repo.InsertIfAbsent(ctx, makeDraft(1, "stale", "Stale", now.Add(-48*time.Hour))); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	entries, err := repo.UnclassifiedEntries(ctx, 10)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != fresh.ID {
		t.Fatalf("process_after gating failed: %v", entries)
	}

	// Widening process_after makes the stale entry eligible too
	cutoff := now.Add(-72 * time.Hour).Format(time.RFC3339)
	if err := repo.SetSetting(ctx, models.SettingProcessAfter, cutoff); err != nil {
		t.Fatalf("set setting failed: %v", err)
	}

	entries, err = repo.UnclassifiedEntries(ctx, 10)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 eligible entries, got %d", len(entries))
	}

	// Classified entries drop out of the selection
	if _, err := repo.MarkClassified(ctx, fresh.ID, nil, false, "r"); err != nil {
		t.Fatalf("mark classified failed: %v", err)
	}
	entries, err = repo.UnclassifiedEntries(ctx, 10)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 eligible entry, got %d", len(entries))
	}
}

func TestInterestCRUD(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	interest := &models.Interest{Key: "gamedev", Label: "Game Dev"}
	if err := repo.CreateInterest(ctx, interest); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err := repo.CreateInterest(ctx, &models.Interest{Key: "gamedev", Label: "Duplicate"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate key, got %v", err)
	}

	label := "Games"
	updated, err := repo.UpdateInterest(ctx, "gamedev", &label, nil)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Label != "Games" {
		t.Fatalf("label not updated: %q", updated.Label)
	}

	if _, err := repo.UpdateInterest(ctx, "nope", &label, nil); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.DeleteInterest(ctx, "gamedev"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := repo.DeleteInterest(ctx, "gamedev"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteInterestLeavesEntries(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.CreateInterest(ctx, &models.Interest{Key: "rust", Label: "Rust"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	entry, _, _ := repo.InsertIfAbsent(ctx, makeDraft(1, "1", "A", time.Now().UTC()))
	rust := "rust"
	if _, err := repo.MarkClassified(ctx, entry.ID, &rust, true, "r"); err != nil {
		t.Fatalf("mark classified failed: %v", err)
	}

	if err := repo.DeleteInterest(ctx, "rust"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// The entry keeps its now-dangling key
	entries, err := repo.ListEntries(ctx, storage.EntryFilter{Interest: &rust, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].InterestKey() != "rust" {
		t.Fatalf("entry lost its interest key after registry delete: %v", entries)
	}
}

func TestSettingsLayering(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	// Seeded/default value resolves
	model, err := repo.GetSetting(ctx, models.SettingModel)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if model != models.DefaultModel {
		t.Fatalf("expected default model, got %q", model)
	}

	// Stored row overrides
	if err := repo.SetSetting(ctx, models.SettingModel, "claude-opus-4-20250514"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	model, err = repo.GetSetting(ctx, models.SettingModel)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if model != "claude-opus-4-20250514" {
		t.Fatalf("override not applied: %q", model)
	}

	// Unknown keys resolve to empty without error
	value, err := repo.GetSetting(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != "" {
		t.Fatalf("expected empty value for unknown key, got %q", value)
	}

	all, err := repo.AllSettings(ctx)
	if err != nil {
		t.Fatalf("all settings failed: %v", err)
	}
	if all[models.SettingModel] != "claude-opus-4-20250514" {
		t.Fatalf("all settings missing override: %v", all)
	}
	if all[models.SettingSyncInterval] == "" {
		t.Fatal("all settings missing default sync interval")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a, _, _ := repo.InsertIfAbsent(ctx, makeDraft(1, "a", "A", now))
	repo.InsertIfAbsent(ctx, makeDraft(1, "b", "B", now))
	repo.InsertIfAbsent(ctx, makeDraft(1, "old", "Old", now.Add(-48*time.Hour)))

	if _, err := repo.MarkClassified(ctx, a.ID, nil, true, "r"); err != nil {
		t.Fatalf("mark classified failed: %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalEntries != 3 {
		t.Fatalf("expected 3 total, got %d", stats.TotalEntries)
	}
	// The 48h-old entry is behind process_after and not counted
	if stats.Unclassified != 1 {
		t.Fatalf("expected 1 unclassified, got %d", stats.Unclassified)
	}
	if stats.Signal != 1 {
		t.Fatalf("expected 1 signal, got %d", stats.Signal)
	}
}
