package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CompletionStatus string

const (
	StatusPending  CompletionStatus = "pending"
	StatusVerified CompletionStatus = "verified"
	StatusRejected CompletionStatus = "rejected"
)

type TaskCompletion struct {
	gorm.Model
	UserID          uint                          `gorm:"index"`
	User            User                          `gorm:"foreignKey:UserID"`
	TaskID          uint                          `gorm:"index"`
	Task            EcoTask                       `gorm:"foreignKey:TaskID"`
	Status          CompletionStatus              `gorm:"index"`
	Evidence        datatypes.JSONType[Evidence]
	VerifierID      *uint
	VerifiedAt      *time.Time `gorm:"index"`
	PointsAwarded   int
	RejectionReason string
	// VerifiedKey is set only while verified; its unique index stops a task
	// from being credited twice to the same user.
	VerifiedKey *string `gorm:"uniqueIndex"`
}

func VerifiedKeyFor(userID, taskID uint) *string {
	k := fmt.Sprintf("%d:%d", userID, taskID)
	return &k
}
