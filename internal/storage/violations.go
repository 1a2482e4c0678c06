package storage

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vigilo/proctor_backend_v1/internal/ledger"
	"github.com/vigilo/proctor_backend_v1/internal/models"
	"github.com/vigilo/proctor_backend_v1/internal/proctor"
)

var (
	_ proctor.IdentityStore     = (*IdentityStore)(nil)
	_ proctor.EvidenceStore     = (*EvidenceStore)(nil)
	_ proctor.ViolationRecorder = (*ViolationRecorder)(nil)
	_ proctor.SessionStore      = (*SessionStore)(nil)
)

// ViolationRecorder appends ledger events to the audit table.
type ViolationRecorder struct {
	DB *gorm.DB
}

func (r *ViolationRecorder) Append(ctx context.Context, sessionID string, ev ledger.Event) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		meta = []byte("{}")
	}
	rec := models.ViolationEvent{
		EventID:     ev.ID,
		SessionID:   sessionID,
		Type:        string(ev.Type),
		Severity:    string(ev.Severity),
		Metadata:    meta,
		EvidenceRef: ev.EvidenceRef,
		DetectedAt:  ev.At,
	}
	return r.DB.WithContext(ctx).Create(&rec).Error
}

// SessionStore upserts session snapshots keyed by session id.
type SessionStore struct {
	DB *gorm.DB
}

func (s *SessionStore) Save(ctx context.Context, snap proctor.Snapshot) error {
	counts, err := json.Marshal(snap.Counts)
	if err != nil {
		counts = []byte("{}")
	}
	rec := models.ProctoringSession{
		SessionID:      snap.SessionID,
		StudentID:      snap.StudentID,
		ExamRef:        snap.ExamRef,
		State:          string(snap.State),
		IntegrityScore: snap.IntegrityScore,
		CriticalCount:  snap.CriticalCount,
		Counts:         counts,
		AlertCount:     snap.AlertCount,
		CameraLive:     snap.CameraLive,
		StartedAt:      snap.StartedAt,
		EndedAt:        snap.EndedAt,
	}
	if !snap.LastSilentCheck.IsZero() {
		t := snap.LastSilentCheck
		rec.LastSilentCheck = &t
	}
	if !snap.Deadline.IsZero() {
		d := snap.Deadline
		rec.Deadline = &d
	}
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		UpdateAll: true,
	}).Create(&rec).Error
}
