package models

import (
	"time"

	"github.com/ecolearn/ecolearn-api/internal/scoring"
	"gorm.io/gorm"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleNGO     Role = "ngo"
	RoleAdmin   Role = "admin"
)

// IsStaff reports whether the role may verify completions and manage tasks.
func (r Role) IsStaff() bool {
	return r == RoleTeacher || r == RoleNGO || r == RoleAdmin
}

type User struct {
	gorm.Model
	DiscordID    *string `gorm:"uniqueIndex"`
	Username     string  `gorm:"uniqueIndex"`
	Email        string  `gorm:"uniqueIndex:idx_users_email,where:email <> ''"`
	PasswordHash string  `json:"-"`
	Role         Role    `gorm:"default:student"`
	School       string  `gorm:"index"`
	Class        string
	Avatar       string
	EcoPoints    int
	TotalPoints  int `gorm:"index"`
	Streak       int
	LastLogin    *time.Time
	// LastAwardedAt is when the current TotalPoints was reached; earlier wins ties.
	LastAwardedAt *time.Time
	Version       int           `gorm:"not null;default:0"`
	Badges        []EarnedBadge `gorm:"foreignKey:UserID"`
}

// Level is always derived from TotalPoints.
func (u User) Level() int {
	return scoring.CalculateLevel(u.TotalPoints)
}

func (u User) HasAffiliation() bool {
	return u.School != ""
}
