package models

import "time"

// VerificationAttempt logs one identity check. Only the score and outcome
// are kept; the raw embedding is discarded unless the attempt enrolled.
type VerificationAttempt struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"index"`
	StudentID  string `gorm:"index"`
	Mode       string `gorm:"size:16"` // enroll | verify | random
	Distance   float64
	Similarity float64
	Match      bool
	Reason     string
	AttemptAt  time.Time `gorm:"index"`
	CreatedAt  time.Time
}
