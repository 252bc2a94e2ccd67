package rss

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/feedsift/internal/config"
	"github.com/feedsift/internal/models"
	"github.com/feedsift/internal/source"
	"github.com/feedsift/pkg/logger"
	"github.com/feedsift/pkg/ratelimit"
)

// Source implements source.FeedSource for RSS/Atom feeds
type Source struct {
	id      int64
	name    string
	url     string
	parser  *gofeed.Parser
	limiter *ratelimit.MultiLimiter
	log     *logger.Logger
}

// New creates a new RSS source for a single feed
func New(feed config.FeedSource, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	return &Source{
		id:      feed.ID,
		name:    feed.Name,
		url:     feed.URL,
		parser:  gofeed.NewParser(),
		limiter: limiter,
		log:     log.WithFeed(feed.Name),
	}
}

// NewMultiple creates RSS sources for every configured feed
func NewMultiple(cfg config.FeedsConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) []*Source {
	sources := make([]*Source, 0, len(cfg.Sources))
	for _, feed := range cfg.Sources {
		sources = append(sources, New(feed, limiter, log))
	}
	return sources
}

// Name returns the source name
func (s *Source) Name() string {
	return s.name
}

// FeedID returns the stable feed identifier
func (s *Source) FeedID() int64 {
	return s.id
}

// Fetch retrieves the current feed listing as entry drafts. The remote GUID
// becomes the external_id; items without one fall back to the link.
func (s *Source) Fetch(ctx context.Context) ([]models.EntryDraft, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterFeed); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	s.log.Debug().Str("url", s.url).Msg("Fetching feed")

	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", s.name, err)
	}

	drafts := make([]models.EntryDraft, 0, len(feed.Items))

	for _, item := range feed.Items {
		externalID := item.GUID
		if externalID == "" {
			externalID = item.Link
		}
		if externalID == "" {
			continue
		}

		publishedAt := time.Now().UTC()
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		}

		author := ""
		if item.Author != nil {
			author = item.Author.Name
		}

		drafts = append(drafts, models.EntryDraft{
			FeedID:      s.id,
			ExternalID:  externalID,
			FeedName:    s.name,
			Title:       item.Title,
			URL:         item.Link,
			Content:     itemContent(item),
			Author:      author,
			PublishedAt: publishedAt,
		})
	}

	s.log.Info().
		Int("count", len(drafts)).
		Msg("Fetched feed items")

	return drafts, nil
}

// HealthCheck verifies the feed is accessible
func (s *Source) HealthCheck(ctx context.Context) error {
	_, err := s.parser.ParseURLWithContext(s.url, ctx)
	return err
}

// itemContent prefers the full content block, falling back to the summary
func itemContent(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

// Ensure Source implements source.FeedSource
var _ source.FeedSource = (*Source)(nil)
