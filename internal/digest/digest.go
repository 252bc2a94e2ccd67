package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/feeds"

	"github.com/feedsift/internal/config"
	"github.com/feedsift/internal/models"
	"github.com/feedsift/internal/storage"
	"github.com/feedsift/pkg/logger"
)

// Builder computes read-side projections over classified entries. Both the
// digest and the output feed are recomputed from current store state on
// every call; nothing is cached or materialized.
type Builder struct {
	repository storage.Repository
	output     config.OutputConfig
	log        *logger.Logger
}

// NewBuilder creates a digest builder
func NewBuilder(repository storage.Repository, output config.OutputConfig, log *logger.Logger) *Builder {
	return &Builder{
		repository: repository,
		output:     output,
		log:        log.WithComponent("digest"),
	}
}

// Group is one digest section: an interest and its entries, newest first
type Group struct {
	InterestKey   string // "" for the uncategorized group
	InterestLabel string
	Entries       []*models.Entry
}

// Options tune the digest window
type Options struct {
	Since        time.Duration // how far back to look, default 48h
	PerInterest  int           // max entries per group, default 10
	IncludeNoise bool          // include non-signal entries too
}

// OtherLabel names the group holding uncategorized entries. Entries whose
// interest key was deleted from the registry land here as well.
const OtherLabel = "Other"

// Digest groups signal entries by interest, in registry order, with a
// trailing group for uncategorized and dangling-key entries.
func (b *Builder) Digest(ctx context.Context, opts Options) ([]Group, error) {
	if opts.Since <= 0 {
		opts.Since = 48 * time.Hour
	}
	if opts.PerInterest <= 0 {
		opts.PerInterest = 10
	}

	interests, err := b.repository.ListInterests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load interests: %w", err)
	}

	processed := true
	since := time.Now().UTC().Add(-opts.Since)
	var signal *bool
	if !opts.IncludeNoise {
		yes := true
		signal = &yes
	}

	var groups []Group
	registered := make(map[string]bool, len(interests))

	for _, interest := range interests {
		registered[interest.Key] = true

		key := interest.Key
		entries, err := b.repository.ListEntries(ctx, storage.EntryFilter{
			Processed: &processed,
			Interest:  &key,
			IsSignal:  signal,
			Since:     &since,
			Limit:     opts.PerInterest,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list entries for %s: %w", key, err)
		}
		if len(entries) == 0 {
			continue
		}
		groups = append(groups, Group{
			InterestKey:   interest.Key,
			InterestLabel: interest.Label,
			Entries:       entries,
		})
	}

	other, err := b.uncategorized(ctx, registered, signal, since, opts.PerInterest)
	if err != nil {
		return nil, err
	}
	if len(other) > 0 {
		groups = append(groups, Group{
			InterestKey:   "",
			InterestLabel: OtherLabel,
			Entries:       other,
		})
	}

	b.log.Debug().Int("groups", len(groups)).Msg("Digest computed")

	return groups, nil
}

// uncategorized collects processed entries whose interest is null or whose
// key is no longer in the registry (dangling after an interest delete).
func (b *Builder) uncategorized(ctx context.Context, registered map[string]bool, signal *bool, since time.Time, limit int) ([]*models.Entry, error) {
	processed := true
	entries, err := b.repository.ListEntries(ctx, storage.EntryFilter{
		Processed: &processed,
		IsSignal:  signal,
		Since:     &since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list uncategorized entries: %w", err)
	}

	var other []*models.Entry
	for _, entry := range entries {
		if entry.Interest != nil && registered[*entry.Interest] {
			continue
		}
		other = append(other, entry)
		if len(other) >= limit {
			break
		}
	}
	return other, nil
}

// OutputFeed renders the signal entries as an RSS document, newest first,
// with each item's body carrying the classification reasoning.
func (b *Builder) OutputFeed(ctx context.Context) (string, error) {
	processed := true
	signal := true
	limit := b.output.MaxItems
	if limit <= 0 {
		limit = 50
	}

	entries, err := b.repository.ListEntries(ctx, storage.EntryFilter{
		Processed: &processed,
		IsSignal:  &signal,
		Limit:     limit,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list signal entries: %w", err)
	}

	feed := &feeds.Feed{
		Title:       b.output.Title,
		Link:        &feeds.Link{Href: b.output.Link},
		Description: "Signal entries surfaced by feedsift",
		Author:      &feeds.Author{Name: b.output.Author},
		Created:     time.Now().UTC(),
	}

	for _, entry := range entries {
		item := &feeds.Item{
			Title:       entry.Title,
			Link:        &feeds.Link{Href: entry.URL},
			Id:          fmt.Sprintf("%d:%s", entry.FeedID, entry.ExternalID),
			Created:     entry.PublishedAt,
			Description: itemBody(entry),
		}
		if entry.Author != "" {
			item.Author = &feeds.Author{Name: entry.Author}
		}
		feed.Items = append(feed.Items, item)
	}

	rss, err := feed.ToRss()
	if err != nil {
		return "", fmt.Errorf("failed to render feed: %w", err)
	}
	return rss, nil
}

// itemBody renders an output item body: the reasoning bullets first, then
// the original content.
func itemBody(entry *models.Entry) string {
	body := ""
	if entry.Reasoning != nil && *entry.Reasoning != "" {
		body = *entry.Reasoning
	}
	if entry.Content != "" {
		if body != "" {
			body += "\n\n"
		}
		body += entry.Content
	}
	return body
}
