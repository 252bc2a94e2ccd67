package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/feedsift/internal/source"
	"github.com/feedsift/internal/storage"
	"github.com/feedsift/pkg/logger"
)

// ErrSourceFetch indicates the feed source listing could not be retrieved.
// The run is aborted; entries inserted before the failure stay durable and
// the next scheduled run retries.
var ErrSourceFetch = errors.New("source fetch failed")

// Agent pulls the feed source listing and dedup-inserts entries. Safe to
// invoke concurrently with itself: dedup relies on the conflict-safe insert,
// not on locking, so a manual trigger racing the scheduled run is harmless.
type Agent struct {
	sourceManager *source.Manager
	repository    storage.Repository
	log           *logger.Logger

	consecutiveFailures atomic.Int64
}

// NewAgent creates a new ingestion agent
func NewAgent(sourceManager *source.Manager, repository storage.Repository, log *logger.Logger) *Agent {
	return &Agent{
		sourceManager: sourceManager,
		repository:    repository,
		log:           log.WithComponent("ingest"),
	}
}

// RunResult contains the results of an ingestion run
type RunResult struct {
	ItemsFetched int
	NewCount     int
	Duplicates   int
	Errors       []error
	Duration     time.Duration
}

// Run executes one ingestion pass
func (a *Agent) Run(ctx context.Context) (*RunResult, error) {
	startTime := time.Now()
	result := &RunResult{}

	drafts, fetchErrors := a.sourceManager.FetchAll(ctx)
	result.Errors = append(result.Errors, fetchErrors...)
	result.ItemsFetched = len(drafts)

	if len(fetchErrors) > 0 && len(drafts) == 0 {
		a.consecutiveFailures.Add(1)
		a.log.Error().
			Int("errors", len(fetchErrors)).
			Int64("consecutive_failures", a.consecutiveFailures.Load()).
			Msg("All feed sources failed")
		result.Duration = time.Since(startTime)
		return result, fmt.Errorf("%w: %v", ErrSourceFetch, fetchErrors[0])
	}

	for _, draft := range drafts {
		_, wasNew, err := a.repository.InsertIfAbsent(ctx, draft)
		if err != nil {
			a.log.Warn().
				Err(err).
				Str("title", draft.Title).
				Msg("Failed to insert entry")
			result.Errors = append(result.Errors, err)
			continue
		}
		if wasNew {
			result.NewCount++
		} else {
			result.Duplicates++
		}
	}

	if len(fetchErrors) > 0 {
		a.consecutiveFailures.Add(1)
	} else {
		a.consecutiveFailures.Store(0)
	}

	result.Duration = time.Since(startTime)

	a.log.Info().
		Int("fetched", result.ItemsFetched).
		Int("new", result.NewCount).
		Int("duplicates", result.Duplicates).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("Ingestion completed")

	return result, nil
}

// ConsecutiveFailures reports how many runs in a row have had fetch errors
func (a *Agent) ConsecutiveFailures() int64 {
	return a.consecutiveFailures.Load()
}
