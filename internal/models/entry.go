package models

import (
	"time"
)

// Signal is the tri-state classification verdict for an entry. It exists so
// the "fully classified or fully unclassified" invariant is visible in the
// type system even though the column is a nullable boolean.
type Signal int

const (
	SignalUnclassified Signal = iota
	SignalYes
	SignalNo
)

// String returns a human-readable name for the signal state
func (s Signal) String() string {
	switch s {
	case SignalYes:
		return "signal"
	case SignalNo:
		return "noise"
	default:
		return "unclassified"
	}
}

// Entry represents one ingested article/post. Identity is the
// (feed_id, external_id) pair; content fields are set once at insert and
// never overwritten by re-fetches. Classification fields move together:
// either all null (unclassified) or all set (classified).
type Entry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	FeedID      int64     `gorm:"uniqueIndex:idx_entries_identity;not null" json:"feed_id"`
	ExternalID  string    `gorm:"uniqueIndex:idx_entries_identity;size:255;not null" json:"external_id"`
	FeedName    string    `gorm:"size:255" json:"feed_name"`
	Title       string    `gorm:"size:500" json:"title"`
	URL         string    `gorm:"size:2048" json:"url"`
	Content     string    `gorm:"type:text" json:"content"`
	Author      string    `gorm:"size:255" json:"author"`
	PublishedAt time.Time `gorm:"index" json:"published_at"`
	FetchedAt   time.Time `gorm:"autoCreateTime" json:"fetched_at"`

	// Classification fields, written atomically by MarkClassified
	ProcessedAt *time.Time `gorm:"index" json:"processed_at"`
	Interest    *string    `gorm:"size:100;index" json:"interest"`
	IsSignal    *bool      `gorm:"index" json:"is_signal"`
	Reasoning   *string    `gorm:"type:text" json:"reasoning"`

	// Engagement field, set once and never cleared
	ReadAt *time.Time `json:"read_at"`
}

// Signal returns the tri-state classification verdict
func (e *Entry) Signal() Signal {
	if e.IsSignal == nil {
		return SignalUnclassified
	}
	if *e.IsSignal {
		return SignalYes
	}
	return SignalNo
}

// Classified returns true if the entry has been through classification
func (e *Entry) Classified() bool {
	return e.ProcessedAt != nil
}

// Read returns true once the entry has been marked read
func (e *Entry) Read() bool {
	return e.ReadAt != nil
}

// InterestKey returns the interest key or "" when uncategorized
func (e *Entry) InterestKey() string {
	if e.Interest == nil {
		return ""
	}
	return *e.Interest
}

// EntryDraft represents a remote feed item before it is persisted as an Entry
type EntryDraft struct {
	FeedID      int64
	ExternalID  string
	FeedName    string
	Title       string
	URL         string
	Content     string
	Author      string
	PublishedAt time.Time
}
