package models

import (
	"gorm.io/gorm"
)

type TaskCategory string

const (
	CategoryRecycling    TaskCategory = "recycling"
	CategoryEnergy       TaskCategory = "energy"
	CategoryWater        TaskCategory = "water"
	CategoryTreePlanting TaskCategory = "tree-planting"
	CategoryPollution    TaskCategory = "pollution"
)

type VerificationMethod string

const (
	VerifyQRCode  VerificationMethod = "qr-code"
	VerifyPhoto   VerificationMethod = "photo"
	VerifyTeacher VerificationMethod = "teacher-verify"
	VerifyQuiz    VerificationMethod = "quiz"
)

type EcoTask struct {
	gorm.Model
	Slug               string `gorm:"uniqueIndex"`
	Title              string
	Description        string
	Category           TaskCategory       `gorm:"index"`
	Points             int
	VerificationMethod VerificationMethod
	// QRPayload is the last payload generated for this task, if any.
	QRPayload string
	Latitude  *float64
	Longitude *float64
	Active    bool
}
