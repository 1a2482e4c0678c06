package models

import (
	"encoding/json"
	"time"
)

// ProctoringSession mirrors a live session's state for dashboards and audit.
// The orchestrator is the only writer.
type ProctoringSession struct {
	ID              uint            `gorm:"primaryKey"`
	SessionID       string          `gorm:"uniqueIndex"`
	StudentID       string          `gorm:"index"`
	ExamRef         string          `gorm:"index"`
	State           string          `gorm:"index"`
	IntegrityScore  int
	CriticalCount   int
	Counts          json.RawMessage `gorm:"type:jsonb"` // per-type violation counters
	AlertCount      int
	CameraLive      bool
	LastSilentCheck *time.Time
	StartedAt       time.Time
	Deadline        *time.Time
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
