package models

import (
	"time"

	"gorm.io/gorm"
)

// EarnedBadge records a catalog badge awarded to a user. Rows are never deleted.
type EarnedBadge struct {
	gorm.Model
	UserID   uint      `json:"user_id" gorm:"uniqueIndex:idx_user_badge"`
	BadgeID  string    `json:"badge_id" gorm:"uniqueIndex:idx_user_badge"`
	EarnedAt time.Time `json:"earned_at"`
}
