package source

import (
	"context"

	"github.com/feedsift/internal/models"
)

// FeedSource defines the contract for remote feed listings. No completeness
// across calls is assumed; dedup at the entry store is the safety net
// against re-delivery.
type FeedSource interface {
	// Name returns the unique name of this source
	Name() string

	// FeedID returns the stable feed identifier used in entry identity
	FeedID() int64

	// Fetch retrieves the current listing of remote items
	Fetch(ctx context.Context) ([]models.EntryDraft, error)

	// HealthCheck verifies the source is accessible
	HealthCheck(ctx context.Context) error
}

// Manager manages multiple feed sources
type Manager struct {
	sources []FeedSource
}

// NewManager creates a new source manager
func NewManager() *Manager {
	return &Manager{
		sources: make([]FeedSource, 0),
	}
}

// Register adds a source to the manager
func (m *Manager) Register(source FeedSource) {
	m.sources = append(m.sources, source)
}

// GetSources returns all registered sources
func (m *Manager) GetSources() []FeedSource {
	return m.sources
}

// GetSourceByName returns a source by name
func (m *Manager) GetSourceByName(name string) FeedSource {
	for _, s := range m.sources {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// FetchAll fetches drafts from all sources concurrently
func (m *Manager) FetchAll(ctx context.Context) ([]models.EntryDraft, []error) {
	type result struct {
		drafts []models.EntryDraft
		err    error
	}

	results := make(chan result, len(m.sources))

	for _, source := range m.sources {
		go func(s FeedSource) {
			drafts, err := s.Fetch(ctx)
			results <- result{drafts: drafts, err: err}
		}(source)
	}

	var allDrafts []models.EntryDraft
	var errors []error

	for range m.sources {
		r := <-results
		if r.err != nil {
			errors = append(errors, r.err)
		} else {
			allDrafts = append(allDrafts, r.drafts...)
		}
	}

	return allDrafts, errors
}
