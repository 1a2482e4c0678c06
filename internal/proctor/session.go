package proctor

import (
	"sync"
	"time"

	"github.com/vigilo/proctor_backend_v1/internal/camera"
	"github.com/vigilo/proctor_backend_v1/internal/capture"
	"github.com/vigilo/proctor_backend_v1/internal/ledger"
)

// SessionState is the orchestrator-level lifecycle state.
type SessionState string

const (
	StateInitializing     SessionState = "initializing"
	StateAwaitingIdentity SessionState = "awaiting_identity_check"
	StateActive           SessionState = "active"
	StateLocked           SessionState = "locked"
	StateSubmitting       SessionState = "submitting"
	StateEnded            SessionState = "ended"
)

// validTransitions encodes the lifecycle machine. awaiting_identity_check
// loops back to itself on capture retry, which needs no transition. It can
// also lock directly: worker alerts are evaluated before activation, so the
// third critical may land while the identity gate is still open.
var validTransitions = map[SessionState][]SessionState{
	StateInitializing:     {StateAwaitingIdentity, StateEnded},
	StateAwaitingIdentity: {StateActive, StateLocked, StateEnded},
	StateActive:           {StateLocked, StateSubmitting, StateEnded},
	StateLocked:           {StateSubmitting, StateEnded},
	StateSubmitting:       {StateEnded},
}

// Session is one examinee's proctoring session. Only the orchestrator
// mutates it.
type Session struct {
	ID        string
	StudentID string
	ExamRef   string

	ledger      *ledger.Ledger
	feed        *camera.Feed
	coordinator *capture.Coordinator
	tasks       *TaskGroup

	mu              sync.Mutex
	state           SessionState
	stored          []float64
	storedImageRef  string
	lastSilentCheck time.Time
	lastMismatchAt  time.Time
	alertCount      int
	lastQuality     capture.Quality
	startedAt       time.Time
	deadline        time.Time
	endedAt         *time.Time
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session to next if the lifecycle machine allows it.
func (s *Session) transition(next SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, allowed := range validTransitions[s.state] {
		if allowed == next {
			s.state = next
			if next == StateEnded {
				now := time.Now().UTC()
				s.endedAt = &now
			}
			return nil
		}
	}
	return ErrInvalidState
}

// Feed exposes the session's camera resource to the transport layer.
func (s *Session) Feed() *camera.Feed {
	return s.feed
}

func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *Session) storedEmbedding() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored
}

func (s *Session) setEnrollment(embedding []float64, imageRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = embedding
	s.storedImageRef = imageRef
}

func (s *Session) bumpAlertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertCount++
	return s.alertCount
}

func (s *Session) setQuality(q capture.Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuality = q
}

// mismatchAllowed applies the notification cooldown: the same mismatch may
// not repeat more often than the window. When allowed, the timestamp
// advances so concurrent checks cannot double-fire.
func (s *Session) mismatchAllowed(now time.Time, cooldown time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastMismatchAt.IsZero() && now.Sub(s.lastMismatchAt) < cooldown {
		return false
	}
	s.lastMismatchAt = now
	return true
}

func (s *Session) markSilentCheck(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSilentCheck = now
}

// Snapshot is an immutable view of a session for reporting, persistence,
// and dashboard broadcasts.
type Snapshot struct {
	SessionID       string
	StudentID       string
	ExamRef         string
	State           SessionState
	IntegrityScore  int
	CriticalCount   int
	Counts          map[ledger.ViolationType]int
	AlertCount      int
	CameraLive      bool
	Quality         capture.Quality
	LastSilentCheck time.Time
	StartedAt       time.Time
	Deadline        time.Time
	EndedAt         *time.Time
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	state := s.state
	alertCount := s.alertCount
	quality := s.lastQuality
	lastSilent := s.lastSilentCheck
	startedAt := s.startedAt
	deadline := s.deadline
	endedAt := s.endedAt
	s.mu.Unlock()

	return Snapshot{
		SessionID:       s.ID,
		StudentID:       s.StudentID,
		ExamRef:         s.ExamRef,
		State:           state,
		IntegrityScore:  s.ledger.IntegrityScore(),
		CriticalCount:   s.ledger.CriticalCount(),
		Counts:          s.ledger.Counts(),
		AlertCount:      alertCount,
		CameraLive:      s.feed.Live(time.Now().UTC()),
		Quality:         quality,
		LastSilentCheck: lastSilent,
		StartedAt:       startedAt,
		Deadline:        deadline,
		EndedAt:         endedAt,
	}
}
