package models

import (
	"time"
)

// Interest represents a user-defined classification label. The key is the
// stable identifier referenced by entries and by the classification prompt;
// label and description are presentation/prompt text. Deleting an interest
// leaves referencing entries untouched - their key dangles and readers treat
// it as uncategorized.
type Interest struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Key         string    `gorm:"uniqueIndex;size:100;not null" json:"key"`
	Label       string    `gorm:"size:255;not null" json:"label"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
