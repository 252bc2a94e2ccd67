package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/feedsift/internal/models"
	"github.com/feedsift/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations and seeds defaults on a fresh database
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(
		&models.Entry{},
		&models.Interest{},
		&models.Setting{},
	); err != nil {
		return err
	}
	return r.seed()
}

// seed populates the interests and settings tables on first run
func (r *Repository) seed() error {
	var interestCount int64
	if err := r.db.Model(&models.Interest{}).Count(&interestCount).Error; err != nil {
		return err
	}
	if interestCount == 0 {
		defaults := models.DefaultInterests()
		if err := r.db.Create(&defaults).Error; err != nil {
			return err
		}
	}

	for key, value := range models.DefaultSettings() {
		var existing models.Setting
		err := r.db.Where("key = ?", key).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := r.db.Create(&models.Setting{Key: key, Value: value}).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Entry operations

// InsertIfAbsent inserts an entry by its (feed_id, external_id) identity.
// On conflict the existing row is returned untouched; re-fetched content
// never overwrites what was stored first.
func (r *Repository) InsertIfAbsent(ctx context.Context, draft models.EntryDraft) (*models.Entry, bool, error) {
	entry := &models.Entry{
		FeedID:      draft.FeedID,
		ExternalID:  draft.ExternalID,
		FeedName:    draft.FeedName,
		Title:       draft.Title,
		URL:         draft.URL,
		Content:     draft.Content,
		Author:      draft.Author,
		PublishedAt: draft.PublishedAt,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "feed_id"}, {Name: "external_id"}},
		DoNothing: true,
	}).Create(entry)
	if result.Error != nil {
		return nil, false, result.Error
	}

	if result.RowsAffected == 0 {
		var existing models.Entry
		if err := r.db.WithContext(ctx).
			Where("feed_id = ? AND external_id = ?", draft.FeedID, draft.ExternalID).
			First(&existing).Error; err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}

	return entry, true, nil
}

func (r *Repository) GetEntry(ctx context.Context, id uint) (*models.Entry, error) {
	var entry models.Entry
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) ListEntries(ctx context.Context, filter storage.EntryFilter) ([]*models.Entry, error) {
	var entries []*models.Entry
	query := r.db.WithContext(ctx).Model(&models.Entry{})

	if filter.Processed != nil {
		if *filter.Processed {
			query = query.Where("processed_at IS NOT NULL")
		} else {
			query = query.Where("processed_at IS NULL")
		}
	}
	if filter.Interest != nil {
		query = query.Where("interest = ?", *filter.Interest)
	}
	if filter.IsSignal != nil {
		query = query.Where("is_signal = ?", *filter.IsSignal)
	}
	if filter.FeedID != nil {
		query = query.Where("feed_id = ?", *filter.FeedID)
	}
	if filter.Since != nil {
		query = query.Where("published_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("published_at < ?", *filter.Until)
	}

	// Deterministic ordering: ties on published_at break by id
	query = query.Order("published_at DESC").Order("id ASC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// UnclassifiedEntries returns entries eligible for classification, oldest
// fetch first. Entries published before the process_after threshold are
// skipped so same-day content can batch up.
func (r *Repository) UnclassifiedEntries(ctx context.Context, limit int) ([]*models.Entry, error) {
	var entries []*models.Entry
	query := r.db.WithContext(ctx).Model(&models.Entry{}).
		Where("processed_at IS NULL")

	if cutoff, ok := r.processAfter(ctx); ok {
		query = query.Where("published_at >= ?", cutoff)
	}

	query = query.Order("fetched_at ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkClassified atomically writes all four classification fields. A nil
// interest means the classifier matched nothing. Returns ErrConflict when
// the entry no longer exists.
func (r *Repository) MarkClassified(ctx context.Context, id uint, interest *string, isSignal bool, reasoning string) (*models.Entry, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.Entry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"interest":     interest,
			"is_signal":    isSignal,
			"reasoning":    reasoning,
			"processed_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, storage.ErrConflict
	}
	return r.GetEntry(ctx, id)
}

// Requeue clears the classification fields of one entry back to the
// unclassified state. read_at is untouched.
func (r *Repository) Requeue(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&models.Entry{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"interest":     nil,
			"is_signal":    nil,
			"reasoning":    nil,
			"processed_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RequeueSince clears classification for all entries published inside the
// window, returning how many were requeued.
func (r *Repository) RequeueSince(ctx context.Context, window time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-window)
	result := r.db.WithContext(ctx).Model(&models.Entry{}).
		Where("published_at >= ?", cutoff).
		Updates(map[string]interface{}{
			"interest":     nil,
			"is_signal":    nil,
			"reasoning":    nil,
			"processed_at": nil,
		})
	return result.RowsAffected, result.Error
}

// MarkRead sets read_at if unset. Repeated calls are no-ops returning the
// same state.
func (r *Repository) MarkRead(ctx context.Context, id uint) (*models.Entry, error) {
	result := r.db.WithContext(ctx).Model(&models.Entry{}).
		Where("id = ? AND read_at IS NULL", id).
		Update("read_at", time.Now().UTC())
	if result.Error != nil {
		return nil, result.Error
	}
	return r.GetEntry(ctx, id)
}

// Stats reports basic operational counts for visibility. Unclassified
// respects process_after, matching the classification job's selection.
func (r *Repository) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{}

	if err := r.db.WithContext(ctx).Model(&models.Entry{}).
		Count(&stats.TotalEntries).Error; err != nil {
		return nil, err
	}

	unclassified := r.db.WithContext(ctx).Model(&models.Entry{}).
		Where("processed_at IS NULL")
	if cutoff, ok := r.processAfter(ctx); ok {
		unclassified = unclassified.Where("published_at >= ?", cutoff)
	}
	if err := unclassified.Count(&stats.Unclassified).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&models.Entry{}).
		Where("is_signal = ?", true).
		Count(&stats.Signal).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// processAfter resolves the process_after setting into a cutoff time
func (r *Repository) processAfter(ctx context.Context) (time.Time, bool) {
	value, err := r.GetSetting(ctx, models.SettingProcessAfter)
	if err != nil || value == "" {
		return time.Time{}, false
	}
	cutoff, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return cutoff, true
}

// Interest operations

func (r *Repository) CreateInterest(ctx context.Context, interest *models.Interest) error {
	var existing models.Interest
	err := r.db.WithContext(ctx).Where("key = ?", interest.Key).First(&existing).Error
	if err == nil {
		return storage.ErrConflict
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return r.db.WithContext(ctx).Create(interest).Error
}

func (r *Repository) GetInterest(ctx context.Context, key string) (*models.Interest, error) {
	var interest models.Interest
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&interest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &interest, nil
}

func (r *Repository) ListInterests(ctx context.Context) ([]*models.Interest, error) {
	var interests []*models.Interest
	if err := r.db.WithContext(ctx).Order("label ASC").Find(&interests).Error; err != nil {
		return nil, err
	}
	return interests, nil
}

func (r *Repository) UpdateInterest(ctx context.Context, key string, label, description *string) (*models.Interest, error) {
	interest, err := r.GetInterest(ctx, key)
	if err != nil {
		return nil, err
	}
	if label != nil {
		interest.Label = *label
	}
	if description != nil {
		interest.Description = *description
	}
	if err := r.db.WithContext(ctx).Save(interest).Error; err != nil {
		return nil, err
	}
	return interest, nil
}

// DeleteInterest removes an interest from the registry. Entries referencing
// the key are deliberately left alone; readers treat the dangling key as
// uncategorized.
func (r *Repository) DeleteInterest(ctx context.Context, key string) error {
	result := r.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Interest{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Runtime settings

// GetSetting resolves a setting through the layered defaults: a stored row
// wins, otherwise the compiled-in default, otherwise "".
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error
	if err == nil {
		return setting.Value, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	return models.DefaultSettings()[key], nil
}

func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
}

func (r *Repository) AllSettings(ctx context.Context) (map[string]string, error) {
	settings := models.DefaultSettings()
	var rows []models.Setting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		settings[row.Key] = row.Value
	}
	return settings, nil
}

// Ensure Repository implements storage.Repository
var _ storage.Repository = (*Repository)(nil)
