package ws

import (
	"time"

	"github.com/vigilo/proctor_backend_v1/internal/ledger"
	"github.com/vigilo/proctor_backend_v1/internal/proctor"
)

// Notifier fans orchestrator callbacks out over both hubs.
type Notifier struct {
	Hubs *Hubs
}

var _ proctor.Notifier = (*Notifier)(nil)

func (n *Notifier) SessionUpdated(snap proctor.Snapshot) {
	if n == nil || n.Hubs == nil {
		return
	}
	n.Hubs.Proctor.Broadcast(sessionPayload(snap, nil))

	switch snap.State {
	case proctor.StateLocked:
		now := time.Now().UTC()
		n.Hubs.Student.Notify(snap.StudentID, StudentMessage{
			Type:           "locked",
			State:          string(snap.State),
			IntegrityScore: snap.IntegrityScore,
			LockedAt:       &now,
			Message:        "session locked by repeated critical violations",
		})
	case proctor.StateEnded:
		n.Hubs.Student.Notify(snap.StudentID, StudentMessage{
			Type:           "session_ended",
			State:          string(snap.State),
			IntegrityScore: snap.IntegrityScore,
		})
	}
}

func (n *Notifier) ViolationRecorded(snap proctor.Snapshot, ev ledger.Event) {
	if n == nil || n.Hubs == nil {
		return
	}
	// Violations go to the proctor side only. The examinee hears about a
	// lockout through the SessionUpdated callback fired once on the
	// locking event.
	n.Hubs.Proctor.Broadcast(sessionPayload(snap, &ev))
}

func sessionPayload(snap proctor.Snapshot, ev *ledger.Event) SessionPayload {
	counts := make(map[string]int, len(snap.Counts))
	for t, c := range snap.Counts {
		counts[string(t)] = c
	}
	p := SessionPayload{
		SessionID:      snap.SessionID,
		StudentID:      snap.StudentID,
		ExamRef:        snap.ExamRef,
		State:          string(snap.State),
		IntegrityScore: snap.IntegrityScore,
		CriticalCount:  snap.CriticalCount,
		Counts:         counts,
		CameraLive:     snap.CameraLive,
		UpdatedAt:      time.Now().UTC(),
	}
	if ev != nil {
		p.Violation = &ViolationPayload{
			EventID:     ev.ID,
			Type:        string(ev.Type),
			Severity:    string(ev.Severity),
			Metadata:    ev.Metadata,
			EvidenceRef: ev.EvidenceRef,
			DetectedAt:  ev.At,
		}
	}
	return p
}
