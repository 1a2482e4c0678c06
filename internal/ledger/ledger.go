package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ViolationType enumerates every signal the engine classifies. Codes coming
// off the wire that match nothing map to TypeUnclassified instead of being
// dropped.
type ViolationType string

const (
	TypeTabSwitch        ViolationType = "tab_switch"
	TypeFullscreenExit   ViolationType = "fullscreen_exit"
	TypeGazeAway         ViolationType = "gaze_away"
	TypeObjectDetected   ViolationType = "object_detected"
	TypeFaceNotDetected  ViolationType = "face_not_detected"
	TypeMultiPerson      ViolationType = "multi_person"
	TypeAIAlert          ViolationType = "ai_alert"
	TypeKeyboardShortcut ViolationType = "keyboard_shortcut"
	TypeRightClick       ViolationType = "right_click"
	TypeIdentityMismatch ViolationType = "identity_mismatch"
	TypeUnclassified     ViolationType = "unclassified"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// severityTable is the fixed classification policy. Hand-tuned constants,
// not learned parameters.
var severityTable = map[ViolationType]Severity{
	TypeObjectDetected:   SeverityCritical,
	TypeMultiPerson:      SeverityCritical,
	TypeIdentityMismatch: SeverityCritical,
	TypeAIAlert:          SeverityCritical,
	TypeTabSwitch:        SeverityWarning,
	TypeFullscreenExit:   SeverityWarning,
	TypeGazeAway:         SeverityWarning,
	TypeFaceNotDetected:  SeverityWarning,
	TypeKeyboardShortcut: SeverityInfo,
	TypeRightClick:       SeverityInfo,
	TypeUnclassified:     SeverityInfo,
}

// SeverityOf returns the fixed severity for a violation type.
func SeverityOf(t ViolationType) Severity {
	if s, ok := severityTable[t]; ok {
		return s
	}
	return SeverityInfo
}

// KnownType reports whether t is part of the closed enumeration.
func KnownType(t ViolationType) bool {
	_, ok := severityTable[t]
	return ok
}

// Event is one recorded violation. Immutable once appended.
type Event struct {
	ID          string
	Type        ViolationType
	Severity    Severity
	Metadata    map[string]string
	EvidenceRef string
	At          time.Time
}

// State of the ledger's per-session machine.
type State string

const (
	StateMonitoring State = "monitoring"
	StateLocked     State = "locked"
)

// Integrity score deductions per severity, floored at zero. Reporting only;
// the lockout decision is threshold-on-count.
const (
	baseScore         = 100
	criticalDeduction = 25
	warningDeduction  = 10
	infoDeduction     = 2
)

// DefaultLockThreshold is the number of critical events that locks a session.
const DefaultLockThreshold = 3

// Outcome describes what recording one event did.
type Outcome struct {
	Event     Event
	Evaluated bool // false when recorded for audit only
	Locked    bool // true when this event triggered the lockout
}

// Ledger is the append-only violation log and lockout state machine for one
// session. All mutation is serialized internally; counters only grow.
type Ledger struct {
	mu            sync.Mutex
	state         State
	lockThreshold int
	counts        map[ViolationType]int
	criticalCount int
	events        []Event
	submitted     bool
	lockedAt      *time.Time
}

func New(lockThreshold int) *Ledger {
	if lockThreshold <= 0 {
		lockThreshold = DefaultLockThreshold
	}
	return &Ledger{
		state:         StateMonitoring,
		lockThreshold: lockThreshold,
		counts:        make(map[ViolationType]int),
	}
}

// Record classifies and appends one event. Events always append and always
// increment counters (the log is the audit trail), but lockout evaluation
// stops permanently once the ledger is locked or submission has begun.
func (l *Ledger) Record(t ViolationType, meta map[string]string, evidenceRef string, at time.Time) Outcome {
	if !KnownType(t) {
		t = TypeUnclassified
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	ev := Event{
		ID:          uuid.NewString(),
		Type:        t,
		Severity:    SeverityOf(t),
		Metadata:    meta,
		EvidenceRef: evidenceRef,
		At:          at,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, ev)
	l.counts[t]++
	if ev.Severity == SeverityCritical {
		l.criticalCount++
	}

	if l.state == StateLocked || l.submitted {
		return Outcome{Event: ev}
	}

	out := Outcome{Event: ev, Evaluated: true}
	if ev.Severity == SeverityCritical && l.criticalCount >= l.lockThreshold {
		l.state = StateLocked
		now := at
		l.lockedAt = &now
		out.Locked = true
	}
	return out
}

// BeginSubmission suppresses all further lockout evaluation. Events that
// arrive afterwards are audit-only, so the act of submitting can never look
// like a violation.
func (l *Ledger) BeginSubmission() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitted = true
}

func (l *Ledger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Ledger) Locked() bool {
	return l.State() == StateLocked
}

func (l *Ledger) LockedAt() *time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lockedAt
}

// CriticalCount returns the number of critical events recorded so far.
func (l *Ledger) CriticalCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.criticalCount
}

// Counts returns a copy of the per-type counters.
func (l *Ledger) Counts() map[ViolationType]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[ViolationType]int, len(l.counts))
	for k, v := range l.counts {
		out[k] = v
	}
	return out
}

// Events returns a copy of the event log in arrival order.
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// IntegrityScore derives the cumulative score from the fixed deduction
// formula. Decoupled from the lockout rule so tuning one cannot silently
// change the other.
func (l *Ledger) IntegrityScore() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	score := baseScore
	for _, ev := range l.events {
		switch ev.Severity {
		case SeverityCritical:
			score -= criticalDeduction
		case SeverityWarning:
			score -= warningDeduction
		default:
			score -= infoDeduction
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}
