package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserProfile mirrors the users/{uid} document read when resolving a viewer.
type UserProfile struct {
	UID              string            `gorm:"primaryKey;size:128" json:"uid"`
	Name             string            `gorm:"size:255" json:"name"`
	Email            string            `gorm:"size:255" json:"email"`
	Role             string            `gorm:"size:32" json:"role"`
	Permissions      datatypes.JSONMap `gorm:"type:json" json:"permissions"`
	CanVerifyUsers   *bool             `json:"can_verify_users,omitempty"`
	IsVerified       bool              `gorm:"default:false" json:"is_verified"`
	VerificationDate *time.Time        `json:"verification_date,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
