package models

import (
	"encoding/json"
	"time"
)

// ViolationEvent is one appended ledger record. Never updated after insert.
type ViolationEvent struct {
	ID          uint            `gorm:"primaryKey"`
	EventID     string          `gorm:"uniqueIndex"`
	SessionID   string          `gorm:"index"`
	Type        string          `gorm:"index;size:64"`
	Severity    string          `gorm:"size:16"`
	Metadata    json.RawMessage `gorm:"type:jsonb"`
	EvidenceRef string
	DetectedAt  time.Time `gorm:"index"`
	CreatedAt   time.Time
}
