package camera

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrFeedClosed       = errors.New("camera: feed closed")
	ErrFeedBusy         = errors.New("camera: feed already borrowed")
	ErrNoFrame          = errors.New("camera: no frame available")
	ErrPermissionDenied = errors.New("camera: permission denied")
	ErrNoDevice         = errors.New("camera: no camera device")
)

// Status is the client-reported state of the physical camera.
type Status string

const (
	StatusUnknown          Status = "unknown"
	StatusOK               Status = "ok"
	StatusPermissionDenied Status = "permission_denied"
	StatusNoDevice         Status = "no_device"
)

// Frame is one camera frame pushed by the exam client.
type Frame struct {
	JPEG       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Feed is the per-session camera resource. The exam client pushes its most
// recent frame here; the engine reads the latest one. Enrollment and
// verification borrow the feed exclusively and must release it so ambient
// monitoring can resume. Liveness is derived from frame staleness so a dead
// client-side track is detected before any reattach.
type Feed struct {
	mu         sync.Mutex
	latest     *Frame
	status     Status
	staleAfter time.Duration
	borrowed   bool
	closed     bool
}

func NewFeed(staleAfter time.Duration) *Feed {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Second
	}
	return &Feed{status: StatusUnknown, staleAfter: staleAfter}
}

// Push stores a new latest frame. Frames pushed after Close are dropped.
func (f *Feed) Push(frame Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now().UTC()
	}
	f.latest = &frame
	f.status = StatusOK
}

// SetStatus records the client-reported camera status.
func (f *Feed) SetStatus(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.status = s
}

func (f *Feed) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Latest returns the most recent frame, if any.
func (f *Feed) Latest() (Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return Frame{}, ErrFeedClosed
	}
	if f.latest == nil {
		return Frame{}, ErrNoFrame
	}
	return *f.latest, nil
}

// Live reports whether the feed has a fresh frame at the given instant.
func (f *Feed) Live(now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.latest == nil || f.status != StatusOK {
		return false
	}
	return now.Sub(f.latest.CapturedAt) <= f.staleAfter
}

// Borrow takes exclusive use of the feed for a capture attempt.
func (f *Feed) Borrow() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFeedClosed
	}
	if f.borrowed {
		return ErrFeedBusy
	}
	f.borrowed = true
	return nil
}

// Release hands the feed back to ambient monitoring. Safe to call when not
// borrowed.
func (f *Feed) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.borrowed = false
}

// Borrowed reports whether a capture currently owns the feed.
func (f *Feed) Borrowed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.borrowed
}

// Close shuts the feed permanently as part of session teardown.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.latest = nil
}

func (f *Feed) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
