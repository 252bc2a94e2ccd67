package models

import (
	"time"
)

// Setting is a row in the flat key/value runtime configuration table.
// Values are opaque strings interpreted by whichever job consumes them.
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"uniqueIndex;size:100;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Runtime setting keys
const (
	SettingClassificationPrompt = "classification_prompt"
	SettingModel                = "model"
	SettingSyncInterval         = "sync_interval_minutes"
	SettingProcessAfter         = "process_after"
)
