package models

import (
	"time"

	"gorm.io/gorm"
)

// LeaderboardSnapshot stores the all-time individual rank of a user at a point in time.
// Rows written by one snapshot run share a Batch.
type LeaderboardSnapshot struct {
	gorm.Model
	Batch   string    `gorm:"index"`
	TakenAt time.Time `gorm:"index"`
	UserID  uint      `gorm:"index"`
	Score   int
	Rank    int
}
