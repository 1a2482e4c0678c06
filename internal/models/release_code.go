package models

import "time"

// ReleaseCode is a one-time code a proctor issues so a locked session can be
// force-submitted. Consumed exactly once.
type ReleaseCode struct {
	ID        uint       `gorm:"primaryKey"`
	IssuedBy  uint       // user ID of the proctor/admin who generated it
	SessionID string     `gorm:"index"` // session the code releases
	Code      string     `gorm:"uniqueIndex"`
	UsedAt    *time.Time `gorm:"index"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
