package storage

import (
	"context"
	"errors"
	"time"

	"github.com/feedsift/internal/models"
)

// Sentinel errors surfaced by repository implementations
var (
	// ErrNotFound indicates a referenced entry or interest does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate interest key on create, or a
	// classification write whose target entry vanished
	ErrConflict = errors.New("conflict")
)

// Repository defines the interface for data persistence
type Repository interface {
	// Entry operations
	InsertIfAbsent(ctx context.Context, draft models.EntryDraft) (*models.Entry, bool, error)
	GetEntry(ctx context.Context, id uint) (*models.Entry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]*models.Entry, error)
	UnclassifiedEntries(ctx context.Context, limit int) ([]*models.Entry, error)
	MarkClassified(ctx context.Context, id uint, interest *string, isSignal bool, reasoning string) (*models.Entry, error)
	Requeue(ctx context.Context, id uint) error
	RequeueSince(ctx context.Context, window time.Duration) (int64, error)
	MarkRead(ctx context.Context, id uint) (*models.Entry, error)
	Stats(ctx context.Context) (*Stats, error)

	// Interest operations
	CreateInterest(ctx context.Context, interest *models.Interest) error
	GetInterest(ctx context.Context, key string) (*models.Interest, error)
	ListInterests(ctx context.Context) ([]*models.Interest, error)
	UpdateInterest(ctx context.Context, key string, label, description *string) (*models.Interest, error)
	DeleteInterest(ctx context.Context, key string) error

	// Runtime settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	AllSettings(ctx context.Context) (map[string]string, error)

	// Maintenance
	Close() error
	Migrate() error
}

// EntryFilter defines filtering options for entries. Filters compose as
// conjunctions; nil pointers mean "don't filter on this".
type EntryFilter struct {
	Processed *bool
	Interest  *string
	IsSignal  *bool
	FeedID    *int64
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// DefaultEntryFilter returns a filter with sensible defaults
func DefaultEntryFilter() EntryFilter {
	return EntryFilter{Limit: 100}
}

// Stats holds basic operational counts. Unclassified respects the
// process_after threshold, matching what the classification job will see.
type Stats struct {
	TotalEntries int64 `json:"total_entries"`
	Unclassified int64 `json:"unclassified"`
	Signal       int64 `json:"signal"`
}
