package ledger

import (
	"sync"
	"testing"
	"time"
)

func TestSeverityTable(t *testing.T) {
	tests := []struct {
		typ  ViolationType
		want Severity
	}{
		{TypeObjectDetected, SeverityCritical},
		{TypeMultiPerson, SeverityCritical},
		{TypeIdentityMismatch, SeverityCritical},
		{TypeAIAlert, SeverityCritical},
		{TypeTabSwitch, SeverityWarning},
		{TypeFullscreenExit, SeverityWarning},
		{TypeGazeAway, SeverityWarning},
		{TypeFaceNotDetected, SeverityWarning},
		{TypeKeyboardShortcut, SeverityInfo},
		{TypeRightClick, SeverityInfo},
		{TypeUnclassified, SeverityInfo},
	}
	for _, tt := range tests {
		if got := SeverityOf(tt.typ); got != tt.want {
			t.Errorf("SeverityOf(%s): got %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestRecord_UnknownTypeGoesToUnclassified(t *testing.T) {
	l := New(3)
	out := l.Record(ViolationType("something_new"), nil, "", time.Now())
	if out.Event.Type != TypeUnclassified {
		t.Errorf("unknown type: got %s, want unclassified", out.Event.Type)
	}
	if l.Counts()[TypeUnclassified] != 1 {
		t.Error("unclassified counter not incremented")
	}
}

func TestLockout_ThirdCriticalLocks(t *testing.T) {
	l := New(3)
	now := time.Now().UTC()

	out1 := l.Record(TypeObjectDetected, nil, "", now)
	out2 := l.Record(TypeMultiPerson, nil, "", now)
	if out1.Locked || out2.Locked {
		t.Fatal("locked before threshold")
	}
	if l.State() != StateMonitoring {
		t.Fatalf("state: got %s, want monitoring", l.State())
	}

	out3 := l.Record(TypeIdentityMismatch, nil, "", now)
	if !out3.Locked {
		t.Error("third critical event did not lock")
	}
	if l.State() != StateLocked {
		t.Errorf("state: got %s, want locked", l.State())
	}
	if l.LockedAt() == nil {
		t.Error("lockedAt not set")
	}
}

func TestLockout_TerminalAndIdempotent(t *testing.T) {
	l := New(3)
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		l.Record(TypeObjectDetected, nil, "", now)
	}
	lockedAt := l.LockedAt()

	out := l.Record(TypeObjectDetected, nil, "", now.Add(time.Minute))
	if out.Evaluated {
		t.Error("event after lockout was evaluated")
	}
	if out.Locked {
		t.Error("event after lockout reported a new lock")
	}
	if got := len(l.Events()); got != 4 {
		t.Errorf("events after lockout must still append: got %d, want 4", got)
	}
	if l.CriticalCount() != 4 {
		t.Errorf("critical counter must stay monotonic: got %d, want 4", l.CriticalCount())
	}
	if l.LockedAt() != lockedAt {
		t.Error("lockedAt changed after terminal lock")
	}
}

func TestWarningsDoNotLock(t *testing.T) {
	l := New(3)
	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		l.Record(TypeTabSwitch, nil, "", now)
	}
	if l.State() != StateMonitoring {
		t.Errorf("warnings locked the session: state %s", l.State())
	}
}

func TestSubmissionSuppression(t *testing.T) {
	l := New(3)
	now := time.Now().UTC()
	l.Record(TypeObjectDetected, nil, "", now)
	l.Record(TypeMultiPerson, nil, "", now)
	l.BeginSubmission()

	out := l.Record(TypeObjectDetected, nil, "", now)
	if out.Evaluated {
		t.Error("event after submission was evaluated")
	}
	if l.State() != StateMonitoring {
		t.Errorf("submission-time event locked the session: %s", l.State())
	}
	if got := len(l.Events()); got != 3 {
		t.Errorf("audit log after submission: got %d events, want 3", got)
	}
}

func TestIntegrityScore(t *testing.T) {
	l := New(3)
	now := time.Now().UTC()
	if got := l.IntegrityScore(); got != 100 {
		t.Fatalf("fresh score: got %d, want 100", got)
	}
	l.Record(TypeObjectDetected, nil, "", now)   // -25
	l.Record(TypeTabSwitch, nil, "", now)        // -10
	l.Record(TypeKeyboardShortcut, nil, "", now) // -2
	if got := l.IntegrityScore(); got != 63 {
		t.Errorf("score: got %d, want 63", got)
	}
}

func TestIntegrityScore_FloorsAtZero(t *testing.T) {
	l := New(100) // keep it unlocked so events keep being evaluated
	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		l.Record(TypeObjectDetected, nil, "", now)
	}
	if got := l.IntegrityScore(); got != 0 {
		t.Errorf("score: got %d, want floor 0", got)
	}
}

func TestRecord_ConcurrentCountersConsistent(t *testing.T) {
	l := New(1000)
	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record(TypeTabSwitch, nil, "", time.Now())
		}()
	}
	wg.Wait()
	if got := l.Counts()[TypeTabSwitch]; got != n {
		t.Errorf("concurrent counter: got %d, want %d", got, n)
	}
	if got := len(l.Events()); got != n {
		t.Errorf("concurrent event log: got %d, want %d", got, n)
	}
}

func TestEventsAreOrderedAndImmutable(t *testing.T) {
	l := New(3)
	base := time.Now().UTC()
	l.Record(TypeTabSwitch, map[string]string{"k": "1"}, "", base)
	l.Record(TypeRightClick, nil, "", base.Add(time.Second))

	events := l.Events()
	if events[0].Type != TypeTabSwitch || events[1].Type != TypeRightClick {
		t.Error("events not in arrival order")
	}
	// Mutating the returned slice must not affect the ledger.
	events[0].Type = TypeObjectDetected
	if l.Events()[0].Type != TypeTabSwitch {
		t.Error("returned events share backing storage with the ledger")
	}
}
