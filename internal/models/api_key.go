package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// APIKey lets a classroom kiosk act as the staff member who issued it. Only
// the SHA-256 of the key is stored; Hint keeps the last characters for display.
type APIKey struct {
	ID         uint       `gorm:"primaryKey"`
	UserID     uint       `gorm:"index;not null"`
	User       User       `gorm:"constraint:OnDelete:CASCADE"`
	Name       string     `gorm:"size:64;not null"`
	KeyHash    string     `gorm:"size:64;uniqueIndex;not null"`
	Hint       string     `gorm:"size:8"`
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
}

func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Expired reports whether the key is past its expiry at now.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
