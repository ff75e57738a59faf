package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityRecord is one document of the portal activity collection. Variant fields live in
// Payload exactly as the writing screen produced them.
type ActivityRecord struct {
	ID        string            `gorm:"primaryKey;size:64" json:"id"`
	Type      string            `gorm:"size:64;index" json:"type"`
	Payload   datatypes.JSONMap `gorm:"type:json" json:"payload"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ActivityRead marks a record as read by one viewer. Rows are only ever inserted.
type ActivityRead struct {
	RecordID string    `gorm:"primaryKey;size:64" json:"record_id"`
	ViewerID string    `gorm:"primaryKey;size:128" json:"viewer_id"`
	ReadAt   time.Time `json:"read_at"`
}
